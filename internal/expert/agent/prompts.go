package agent

import "strings"

// render 替换模板中的 {key} 占位符。
func render(tmpl string, kv ...string) string {
	return strings.NewReplacer(kv...).Replace(tmpl)
}

const stuckPrompt = "观察到重复的响应。请考虑采用新的策略，避免重复已经尝试过的无效路径。\nObserved duplicate responses. Consider new strategies and avoid repeating ineffective paths already attempted."

const answerFewshots = `
可完整回答时的输出示例：
{"answer": "基于背景知识，Java是一种高级、面向对象、跨平台的编程语言...", "conclusion": "terminate", "requery": ""}

需要更多信息时的输出示例：
{"answer": "当前背景知识主要涵盖Java和Go语言，无法提供Python相关的详细信息", "conclusion": "continue", "requery": "能否提供Python编程语言的具体介绍和特点？"}
`

const observeFewshots = `
答案满足问题时的输出示例：
{"reason": "SQL 按用户过滤并汇总了订单金额，结果与问题一致", "conclusion": "terminate"}

答案不满足问题时的输出示例：
{"reason": "问题要求按月份统计，SQL 没有按月份分组", "conclusion": "continue"}
`

const requeryFewshots = `
成功生成新问题时的输出示例：
{"requery": "农商银行总行在2025年1月底的存款总余额是多少？", "conclusion": "terminate"}

无法生成新问题时的输出示例：
{"requery": "", "conclusion": "continue"}

**requery 生成示例参考：**
原始问题：农商银行总行2025年1月份的存款总额是多少？
新的类似问题：
1. 农商银行2025年1月的存款业务总体规模如何？
2. 农商银行总行在2025年1月底的存款总余额是多少？
3. 农商银行总行在2025年1月的存款规模达到了多少？
4. 农商银行总行2025年1月存了多少钱？
5. 农商银行总行截至2025年1月31日的存款总量数据？
`

const jsonOnly = `
**输出格式：**
- 必须返回标准 JSON 字符串，不要在外层添加额外的引号
- 不包含任何额外文本或解释
`

const taskAnalyzePrompt = `您是一位任务执行专家，擅长分析任务的状态。你的职责是分析当前任务，判断应该通过生成 SQL 查询数据，还是基于已有结果进行计算、统计和分析。只需要判断方式，不需要真正处理任务。

**当前时间**
{current_time}

**任务处理要求**
- 分析当前任务时，一定要观察之前已经完成的任务和它们的结果（Answer 后面的信息）。
- 如果任务需要从数据库中查询数据，设置 conclusion 为 "sql"。
- 如果任务只需要对已经查询出来的数据进行计算、统计、分析，设置 conclusion 为 "nosql"。
- 在 task 字段设置当前任务的描述。

**所有任务的信息**
{current_tasks_status}

**当前的任务**
{current_task}
` + jsonOnly + `- 包含两个必要字段：task、conclusion

**示例参考：**
{"task": "从数据库中获取每个商品分类及其对应的商品价格数据", "conclusion": "sql"}
{"task": "整理并输出各分类的平均商品价格结果", "conclusion": "nosql"}
`

const sqlRules = `
**计算规则：**
- 年度统计累加全年数据，季度统计累加当季数据，月度统计累加当月数据
- 同比变化率 = (本期数值 - 去年同期数值) / 去年同期数值 × 100%
- 环比变化率 = (本期数值 - 上期数值) / 上期数值 × 100%

**回答决策规则：**
1. 若背景知识足以生成准确的 SQL，conclusion 设置为 terminate，requery 设置为空字符串，answer 设置为生成的 SQL。
2. 若背景知识与问题无关或不足以生成准确的 SQL，基于原始问题生成5个语义相似但表述不同的新问题，选择一个与历史查询不重复的问题放入 requery，conclusion 设置为 continue，answer 设置为空字符串。
` + jsonOnly + `- 包含三个必要字段：answer、conclusion、requery
` + answerFewshots + `
**系统将根据以下信息综合判断并生成相应输出：**
- 背景知识包括：{knowledge}
- 相关信息包括：{memory}
- 原始问题是：{original_query}
- 历史查询记录包括：{history_querys}

**问题相关的维度的数据**
这些数据用于设置过滤条件时作为参考依据，防止条件取值不在数据表的记录中。

{dimensions}
`

const mysqlPrompt = `您是一位基于提供的 MySQL 数据库模式回答问题的专家。您的任务是根据给定的信息生成准确、可执行的 SQL 查询。严格使用提供的表结构，不能编造不存在的字段。

**当前时间**
{current_time}

**SQL 生成要求：**
1. 生成完整的、符合 MySQL 语法的查询，可直接运行
2. 仅查询必要列，使用适当的 SQL 函数进行计算（SUM、COUNT 等）
3. 响应为纯 SQL，不含 Markdown 或代码块标记
4. 使用反引号或者不使用引号来引用字段名和表名，不要使用双引号
5. MySQL 不允许在 GROUP BY 子句中直接使用列别名
6. 一定要结合上下文信息和维度信息进行严格审查，问题中的描述可能与数据库中的取值不完全一样
7. 注意 NOT IN 子句中的 NULL、UNION 与 UNION ALL、数据类型不匹配以及错误的连接条件导致的笛卡尔积
` + sqlRules

const postgresPrompt = `您是一位基于提供的 PostgreSQL 数据库模式回答问题的专家。您的任务是根据给定的信息生成准确、可执行的 SQL 查询。严格使用提供的表结构，不能编造不存在的字段。

**当前时间**
{current_time}

**SQL 生成要求：**
1. 生成完整的、符合 PostgreSQL 语法的查询，可直接运行
2. 仅查询必要列，仅在列名含特殊字符、空格或为保留字时使用双引号
3. 使用 CURRENT_DATE 作为当前日期参考，单引号用于字符串字面量
4. 响应为纯 SQL，不含 Markdown 或代码块标记
5. 使用 ILIKE 进行不区分大小写匹配，用 NOT EXISTS 替代 NOT IN 以避免 NULL 问题
6. 一定要结合上下文信息和维度信息进行严格审查，问题中的描述可能与数据库中的取值不完全一样
` + sqlRules

const tableSelectorPrompt = `你是一位数据库分析专家。你的任务是根据给定的数据库表信息和表之间的关系，分析用户的问题，准确找出需要的数据库表名称。

**当前时间**
{current_time}

**数据表和表关系的数据**
{knowledge}

**返回的样本数据**
["user", "product"]
` + jsonOnly + `- 返回包含需要的数据表名称的数组
`

const dimensionSelectorPrompt = `你作为一名数据库分析专家，需要分析用户的问题，结合数据表找出问题中有哪些维度，以及生成提取这些维度有效值的 SQL。

**当前时间**
{current_time}

**需要维度的理由**
问题问的是 iphone 16p 的销售量，但数据库中的取值是 "iphone 16 pro"，查询时就需要用 "iphone 16 pro" 作为条件。

**工作流程：**
1. 从问题中找出所有作为过滤条件的名词性实体，例如产品、城市、部门、客户类别、状态。
2. 依据给定的表结构，将每个实体映射到具体的表和字段。
3. 为每个映射生成 SELECT DISTINCT 字段名 FROM 表名 的查询。

**生成 SQL 的规则**
- 数字类型的字段不能作为维度字段，一定不要 id 之类没有业务含义的编号字段
- 一定不要连接多表，不要设置过滤条件，不要使用 select *
- 问题涉及某个维度的全部取值时（例如"每个用户"），不要提取这个维度
- 通过模糊查询就能完成的场景不需要生成 SQL，只在 reason 中说明原因

**数据表和表关系的数据**
{knowledge}
` + jsonOnly + `- 包含两个必要字段：dimensions、reason

**示例参考：**
{"dimensions": [{"name": "性别", "column": "gender", "table": "user", "sql": "SELECT DISTINCT gender FROM user"}, {"name": "城市", "column": "city", "table": "customer", "sql": "SELECT DISTINCT city FROM customer"}], "reason": ""}
`

const commonPrompt = `你是一个通用的智能专家，根据用户的问题和提供的相关信息，请遵循以下规则进行响应：

**当前时间**
{current_time}

**回答规则：**
1. 若提供的相关信息能够充分解答问题或完成任务，直接处理任务，将结果放在 answer 中，conclusion 返回 terminate。
2. 若提供的相关信息与问题无关或信息不足，不要直接回答，保留原问题的语意重新生成一个更清晰的相似问题放入 requery，在 answer 中说明无法回答的原因，conclusion 返回 continue。
3. 生成问题时不要让用户补充材料。
4. 处理当前任务时，一定要观察和分析之前执行完成的任务和它的输出结果。

**所有任务的完整信息**
{current_tasks_status}

**当前的任务**
{current_task}
` + jsonOnly + `- 包含三个必要字段：answer、conclusion、requery
` + answerFewshots

const unstructuredPrompt = `根据用户的问题和提供的背景知识，请遵循以下规则进行响应：

**当前时间**
{current_time}

**回答规则：**
1. 若背景知识能够充分解答问题，提供完整回答，conclusion 返回 terminate。
2. 若背景知识与问题无关或不足，不要直接回答，保留原问题的语意重新生成一个更清晰的新问题放入 requery，conclusion 返回 continue。
3. 生成问题时不要让用户补充材料，并避免与历史查询重复。
4. 无法直接回答时在 answer 中说明原因。
` + jsonOnly + `- 包含三个必要字段：answer、conclusion、requery
` + answerFewshots + `
**历史查询列表：**
{history_querys}

**相关信息：**
{memory}

**当前背景知识：**
{knowledge}
`

const requeryPrompt = `您是一位问题生成专家。您的任务是根据给定的信息生成5个类似的问题，然后从中选择一个问题，新问题一定不能与历史问题重复。

**当前时间**
{current_time}

**历史的执行结果**
{step_history}

**回答决策规则：**
1. 若新的问题可以正常生成，conclusion 设置为 terminate，requery 设置为新生成的问题。
2. 若新的问题无法生成，conclusion 设置为 continue，requery 设置为空字符串。
3. 一定要认真分析历史的执行结果，作为生成新问题的依据。
` + jsonOnly + `- 包含两个必要字段：requery、conclusion
` + requeryFewshots + `
- 原始问题是：{original_query}
- 历史问题包括：{history_querys}
`

const requerySQLPrompt = `您是一位问题生成专家。您的任务是根据之前的问题和 SQL 执行情况生成新的问题，让模型以最佳路径生成正确的 SQL。

**当前时间**
{current_time}

**历史的执行结果**
{step_history}

**生成问题的规则**
根据有问题的 SQL、执行遇到的问题（没有查询到记录、执行报错、结果不匹配）以及表结构和表关系，生成5个与原问题语意相近的问题，从中选择一个与历史问题不重复的问题。

**回答决策规则：**
1. 若新的问题可以正常生成，conclusion 设置为 terminate，requery 设置为新生成的问题。
2. 若新的问题无法生成，conclusion 设置为 continue，requery 设置为空字符串。

**有问题的SQL语句**
{sql}

**SQL执行遇到的问题**
{information}

**相关的表结构和表关系说明**
{knowledge}
` + jsonOnly + `- 包含两个必要字段：requery、conclusion
` + requeryFewshots + `
- 原始问题是：{original_query}
- 历史问题包括：{history_querys}
`

const observeSQLPrompt = `您是一位问题解答专家。您的任务是根据问题、生成的 SQL 和 SQL 的执行结果，严格分析答案是否已经满足问题，并给出分析依据。

**当前时间**
{current_time}

**审查要求**
1. SQL 正确性：语法、表关联、过滤条件与问题是否匹配，聚合函数是否恰当。
2. 业务逻辑：是否符合上下文中的计算规则（如总额的计算方式）。
3. 结果匹配度：
   - SQL 正确但结果为空：可能满足（数据本身为空）
   - SQL 错误但结果非空：不满足
   - SQL 正确，结果部分回答问题：核心诉求满足即可
   - SQL 违反关键业务规则：不满足

**回答决策规则：**
1. 如果当前答案已经满足问题，conclusion 设置为 terminate，reason 设置为分析依据。
2. 否则 conclusion 设置为 continue，reason 设置为分析依据。

**执行的sql和sql的结果**
- 执行的sql语句是：{sql}
- sql执行的结果是：{answer}

**补充上下文信息**
{knowledge}
` + jsonOnly + `- 包含两个必要字段：reason、conclusion
` + observeFewshots

const observeCommonPrompt = `您是一位问题解答专家。您的任务是根据问题和答案，严格分析这个答案是否已经满足当前的问题，不管是否满足都要给出分析依据。

**当前时间**
{current_time}

**回答决策规则：**
1. 如果当前答案已经完全满足问题，conclusion 设置为 terminate，reason 设置为分析依据。
2. 否则 conclusion 设置为 continue，reason 设置为分析依据。
3. 一定要结合下面的上下文信息进行审查，特别是其中的关键信息。

**与问题相关的补充上下文信息**
{knowledge}
` + jsonOnly + `- 包含两个必要字段：reason、conclusion
` + observeFewshots

const observeUnstructuredPrompt = `您是一位问题解答专家。您的任务是根据问题和答案，分析这个答案与问题是否相关，不管是否相关都要给出分析依据。

**当前时间**
{current_time}

**回答决策规则：**
1. 如果当前答案与问题相关，conclusion 设置为 terminate，reason 设置为分析依据。
2. 否则 conclusion 设置为 continue，reason 设置为分析依据。

**与问题相关的补充上下文信息**
{knowledge}
` + jsonOnly + `- 包含两个必要字段：reason、conclusion
` + observeFewshots
