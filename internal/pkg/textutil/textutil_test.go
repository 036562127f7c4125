package textutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/dataagent/internal/pkg/textutil"
)

func TestMD5(t *testing.T) {
	assert.Equal(t, "098f6bcd4621d373cade4e832627b4f6", textutil.MD5("test"))
	assert.Len(t, textutil.MD5(""), 32)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"相同向量", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"正交向量", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"相反向量", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"空向量", nil, nil, 0},
		{"长度不匹配", []float32{1, 2}, []float32{1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, textutil.CosineSimilarity(tt.a, tt.b), 1e-4)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "你好", textutil.Truncate("你好世界", 2))
	assert.Equal(t, "abc", textutil.Truncate("abc", 5))
	assert.Equal(t, "", textutil.Truncate("abc", 0))
}

func TestSplitIntoChunks(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := textutil.SplitIntoChunks(text, 1000, 200)
	// 步长 800：0-1000, 800-1800, 1600-2500
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[2], 900)

	assert.Equal(t, []string{"short"}, textutil.SplitIntoChunks("short", 1000, 200))
	assert.Nil(t, textutil.SplitIntoChunks("", 1000, 200))
	assert.Nil(t, textutil.SplitIntoChunks("abc", 0, 0))
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", textutil.NormalizeSpace("  a\n\tb   c "))
}

func TestTokensAndOverlap(t *testing.T) {
	assert.Equal(t, []string{"订", "单", "total_amount", "2024"}, textutil.Tokens("订单 Total_Amount, 2024!"))

	assert.InDelta(t, 1.0, textutil.Overlap("orders total", "Total of all ORDERS"), 1e-9)
	assert.InDelta(t, 0.5, textutil.Overlap("orders users", "orders only"), 1e-9)
	assert.Zero(t, textutil.Overlap("", "anything"))
}
