package agent

import (
	"context"

	wfnode "novel2video/internal/workflow/node"
)

// CompressChunk 压缩单个原文块
func (a *Agents) CompressChunk(ctx context.Context, chunk string) (string, error) {
	return a.compressChunk.Invoke(ctx, map[string]any{"chunk": chunk})
}

// Aggregate 消除相邻压缩块间的重叠
func (a *Agents) Aggregate(ctx context.Context, chunks []string) (string, error) {
	return a.aggregate.Invoke(ctx, map[string]any{"chunks": wfnode.Separated(chunks)})
}

// RewritePortrait 合成场景立绘提示词
func (a *Agents) RewritePortrait(ctx context.Context, identifier, staticFeatures, dynamicFeatures, style string) (string, error) {
	return a.rewrite.Invoke(ctx, map[string]any{
		"identifier":       identifier,
		"static_features":  staticFeatures,
		"dynamic_features": dynamicFeatures,
		"style":            style,
	})
}

// PlanScript 由创意生成剧本
func (a *Agents) PlanScript(ctx context.Context, idea, requirement, style string) (string, error) {
	return a.plan.Invoke(ctx, map[string]any{"idea": idea, "requirement": requirement, "style": style})
}

// EnhanceScript 润色剧本
func (a *Agents) EnhanceScript(ctx context.Context, script string) (string, error) {
	return a.enhance.Invoke(ctx, map[string]any{"script": script})
}
