// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionChunks 原文片段集合，所有运行共用，按 run_id 过滤
	CollectionChunks = "novel_chunks"

	fieldID      = "id"
	fieldRunID   = "run_id"
	fieldOrdinal = "ordinal"
	fieldText    = "text"
	fieldVector  = "vector"
)

// ChunksSchema 片段 Collection Schema，dim 由嵌入模型决定
func ChunksSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionChunks,
		Description:    "Novel chunks for per-run semantic retrieval",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldRunID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldOrdinal,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldText,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// Chunk 片段数据结构
type Chunk struct {
	ID      string
	RunID   string
	Ordinal int64
	Text    string
	Vector  []float32
}

// schemaDim 读取已有集合的向量维度，未找到返回 0
func schemaDim(schema *entity.Schema) int {
	if schema == nil {
		return 0
	}
	for _, f := range schema.Fields {
		if f.Name != fieldVector {
			continue
		}
		dim, _ := strconv.Atoi(f.TypeParams["dim"])
		return dim
	}
	return 0
}
