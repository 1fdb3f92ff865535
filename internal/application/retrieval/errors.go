package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量索引未配置
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
	// ErrDimensionMismatch 向量维度与索引不一致
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
