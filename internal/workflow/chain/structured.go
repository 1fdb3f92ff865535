package chain

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"

	"novel2video/internal/domain/entity"
	wfnode "novel2video/internal/workflow/node"
	workflowport "novel2video/internal/workflow/port"
	workflowprompt "novel2video/internal/workflow/prompt"
	apperrors "novel2video/pkg/errors"
)

// Structured 结构化输出链：按 T 生成 JSON Schema 约束输出，
// 解析失败或字段校验失败均视为契约违例
type Structured[T any] struct {
	g *generator
}

// NewStructured 创建结构化输出链
func NewStructured[T any](factory workflowport.ChatModelFactory, prompts *workflowprompt.Registry, id workflowprompt.PromptID, provider string) *Structured[T] {
	return &Structured[T]{g: &generator{
		factory:        factory,
		prompts:        prompts,
		id:             id,
		provider:       provider,
		responseFormat: SchemaOf[T](),
	}}
}

// Invoke 调用模型并返回解析、校验后的结果
func (s *Structured[T]) Invoke(ctx context.Context, in *Input) (T, error) {
	var zero T
	raw, err := s.g.generate(ctx, in)
	if err != nil {
		return zero, err
	}
	return Parse[T](raw)
}

// Parse 从模型输出中截取 JSON 并解析为 T
func Parse[T any](raw string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(wfnode.ExtractJSONObject(raw)), &v); err != nil {
		return v, apperrors.ErrSchemaViolation.WithDetail(wfnode.TruncateByRunes(raw, 200)).WithError(err)
	}
	if err := entity.Validate(v); err != nil {
		return v, err
	}
	return v, nil
}

var schemaCache sync.Map

// SchemaOf 反射 T 的 JSON Schema，结果按类型缓存
func SchemaOf[T any]() map[string]any {
	var v T
	t := reflect.TypeOf(v)
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(map[string]any)
	}

	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	b, err := r.Reflect(v).MarshalJSON()
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	delete(m, "$schema")
	delete(m, "$id")
	schemaCache.Store(t, m)
	return m
}
