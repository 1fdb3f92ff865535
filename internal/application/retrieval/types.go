package retrieval

import (
	"fmt"
)

// Index 一次运行构建出的知识库句柄
type Index struct {
	RunID  string
	Chunks []string
}

// ChunkID 片段主键，同一运行同一序号恒定
func ChunkID(runID string, ordinal int) string {
	return fmt.Sprintf("%s-%d", runID, ordinal)
}

// ScoredChunk 检索结果，Score 为跨步骤累计分
type ScoredChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Texts 仅返回文本
func Texts(chunks []ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
