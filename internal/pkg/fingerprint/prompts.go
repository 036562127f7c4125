package fingerprint

const summaryPrompt = `Please generate a highly condensed summary fingerprint for the following text, requirements:

**Core Objectives:**
- Extract the most essential information kernel of the text to form a content fingerprint with high discriminative power
- Retain key facts, core viewpoints, and important data

**Technical Specifications:**
- Strictly control to around 500 words (within the 400-500 word range)
- Use high information density expression
- Use purely factual language, avoid any subjective evaluation

**Processing Requirements:**
- Remove all decorative words and redundant descriptions
- Focus on the unique information characteristics of the text
- Ensure the summary accurately represents the core content of the original text

Text to be processed:
%s

Please output the summary fingerprint directly, no additional explanation needed.
`

const relationshipPrompt = `Organize the relationships between the tables.

The output reference example is as follows, no other information needs to be output, display using markdown table format:

**Specific Relationship Details**

| Relationship Type | Master Table → Detail Table | Association Fields | Constraint Name |
|------------|-------------------------|---------------------------|--------------------|
| **Self-referencing** | categories → categories | parent_id → category_id | categories_ibfk_1 |
| **One-to-Many** | orders → order_items | order_id → order_id | order_items_ibfk_1 |
| **One-to-Many** | users → orders | user_id → user_id | orders_ibfk_1 |

Specific data required for analysis:
%s
`

const tablesSummaryPrompt = `You are a database expert, your task has two parts:
The first task is to use about 200 words to summarize the core business capabilities responsible for all data tables based on the table names and field meanings.
The second task is to extract key information from all data tables, including table names, table fields and comments, extract each table independently, and then display with line breaks.

**Principles for Extracting Key Information**
1. Keep field names and annotations, do not keep other field definitions.
2. Keep table annotations.
3. Do not keep non-business meaning items like primary key, auto-increment, not null, optional, default current timestamp, decimal number.

**Output Requirements**
First output the summary part, then output the extracted part.

**Specific data required for analysis:**
%s
`

const agentInfoPrompt = `You are a helpful analysis assistant. The following content is data for an intelligent agent.

**your target job**

1. You need to define a agent name and agent description in English based on the table definitions and data for an agent.

2. The name should be a program variable with the first letter capitalized. Finally, output the name and description in JSON format.

3. The name must contain a clear business domain definition. For example, it should be like "Loan Assistant" or "Borrowing Assistant", rather than vague terms like "Financial Assistant" which lack specific business meaning.

**sample data**

{
    "name": "LoanAdvisorAgent",
    "description": "A professional intelligent advisor specializing in banking loan business analysis. Capable of assessing loan portfolio quality, identifying credit risk concentrations and monitoring lending trends across branches."
}

{
    "name": "CreditAnalyzerAgent",
    "description": "A specialized credit risk assessment expert that evaluates institutional credit health through analysis of balance sheets, deposit structures, and loan data."
}

The specific content is as follows:
`
