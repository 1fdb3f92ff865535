package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"

	"novel2video/internal/application/merge"
	"novel2video/internal/application/selection"
	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/service"
)

func limit[T any](ctx context.Context, sem *semaphore.Weighted, fn func() (T, error)) (T, error) {
	var zero T
	if err := sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer sem.Release(1)
	return fn()
}

// limitedAgents 对可能并发的文本调用施加 chat 并发上限
type limitedAgents struct {
	Agents
	sem *semaphore.Weighted
}

func (a limitedAgents) CompressChunk(ctx context.Context, chunk string) (string, error) {
	return limit(ctx, a.sem, func() (string, error) { return a.Agents.CompressChunk(ctx, chunk) })
}

func (a limitedAgents) NextScene(ctx context.Context, event entity.Event, relevant []string, history []entity.Scene) (entity.Scene, error) {
	return limit(ctx, a.sem, func() (entity.Scene, error) { return a.Agents.NextScene(ctx, event, relevant, history) })
}

func (a limitedAgents) NextShot(ctx context.Context, script string, characters []string, history []entity.Shot) (entity.Shot, error) {
	return limit(ctx, a.sem, func() (entity.Shot, error) { return a.Agents.NextShot(ctx, script, characters, history) })
}

func (a limitedAgents) MergeScenes(ctx context.Context, eventIndex int, scenes []entity.Scene) ([]merge.MergedCharacter, error) {
	return limit(ctx, a.sem, func() ([]merge.MergedCharacter, error) { return a.Agents.MergeScenes(ctx, eventIndex, scenes) })
}

func (a limitedAgents) SelectBest(ctx context.Context, refs []entity.Reference, target string, candidates []string) (selection.Judgment, error) {
	return limit(ctx, a.sem, func() (selection.Judgment, error) { return a.Agents.SelectBest(ctx, refs, target, candidates) })
}

func (a limitedAgents) SelectReferences(ctx context.Context, refs []entity.Reference, frame string) (entity.ReferenceSelection, error) {
	return limit(ctx, a.sem, func() (entity.ReferenceSelection, error) { return a.Agents.SelectReferences(ctx, refs, frame) })
}

func (a limitedAgents) ExtractCharacters(ctx context.Context, script string) ([]entity.ScriptCharacter, error) {
	return limit(ctx, a.sem, func() ([]entity.ScriptCharacter, error) { return a.Agents.ExtractCharacters(ctx, script) })
}

func (a limitedAgents) RewritePortrait(ctx context.Context, identifier, staticFeatures, dynamicFeatures, style string) (string, error) {
	return limit(ctx, a.sem, func() (string, error) {
		return a.Agents.RewritePortrait(ctx, identifier, staticFeatures, dynamicFeatures, style)
	})
}

type limitedEmbedder struct {
	service.Embedder
	sem *semaphore.Weighted
}

// LimitEmbedder 为嵌入协作方施加并发上限，n<=0 时原样返回
func LimitEmbedder(e service.Embedder, n int) service.Embedder {
	if n <= 0 {
		return e
	}
	return limitedEmbedder{Embedder: e, sem: semaphore.NewWeighted(int64(n))}
}

func (e limitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return limit(ctx, e.sem, func() ([][]float32, error) { return e.Embedder.Embed(ctx, texts) })
}
