package chain

import (
	"context"
	"strings"

	workflowport "novel2video/internal/workflow/port"
	workflowprompt "novel2video/internal/workflow/prompt"
)

// Text 纯文本输出链（压缩、聚合、改写、剧本）
type Text struct {
	g *generator
}

// NewText 创建文本链，provider 为空使用默认提供方
func NewText(factory workflowport.ChatModelFactory, prompts *workflowprompt.Registry, id workflowprompt.PromptID, provider string) *Text {
	return &Text{g: &generator{factory: factory, prompts: prompts, id: id, provider: provider}}
}

// Invoke 返回去除首尾空白的模型输出
func (t *Text) Invoke(ctx context.Context, vars map[string]any) (string, error) {
	out, err := t.g.generate(ctx, &Input{Vars: vars})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
