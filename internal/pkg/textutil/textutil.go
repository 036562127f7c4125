// Package textutil 提供指纹、切块与排序使用的文本处理工具函数。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 默认切块参数。
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// MD5 计算字符串的 MD5 十六进制摘要（32 位）。
func MD5(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，长度不一致或零向量返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Truncate 截断字符串到指定的最大 Unicode 字符数。
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// SplitIntoChunks 将文本分割成重叠的块。
// chunkSize 是每个块的大小（Unicode 字符数），overlap 是块之间的重叠大小。
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 || text == "" {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	step := chunkSize - overlap
	for i := 0; i < len(runes); i += step {
		end := min(i+chunkSize, len(runes))
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// NormalizeSpace 折叠连续空白并去掉首尾空白。
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokens 将文本拆成小写词元；CJK 字符逐字成词。
func Tokens(s string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			out = append(out, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

// Overlap 返回 query 词元在 text 中出现的比例，范围 [0, 1]。
func Overlap(query, text string) float64 {
	q := Tokens(query)
	if len(q) == 0 {
		return 0
	}
	set := make(map[string]struct{})
	for _, t := range Tokens(text) {
		set[t] = struct{}{}
	}

	seen := make(map[string]struct{}, len(q))
	hit := 0
	for _, t := range q {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(seen))
}
