package pipeline

import (
	"context"

	"novel2video/internal/application/compress"
	"novel2video/internal/application/extract"
	"novel2video/internal/application/merge"
	"novel2video/internal/application/selection"
	"novel2video/internal/domain/entity"
)

// ReferenceSelector 从参考池中为帧挑选参考图并给出生成提示词
type ReferenceSelector interface {
	SelectReferences(ctx context.Context, refs []entity.Reference, frame string) (entity.ReferenceSelection, error)
}

// CharacterExtractor 无小说级登记表时从剧本抽取角色
type CharacterExtractor interface {
	ExtractCharacters(ctx context.Context, script string) ([]entity.ScriptCharacter, error)
}

// PortraitRewriter 将静态与动态特征改写为单一的立绘提示词
type PortraitRewriter interface {
	RewritePortrait(ctx context.Context, identifier, staticFeatures, dynamicFeatures, style string) (string, error)
}

// ScriptWriter 创意到剧本
type ScriptWriter interface {
	PlanScript(ctx context.Context, idea, requirement, style string) (string, error)
	EnhanceScript(ctx context.Context, script string) (string, error)
}

// Agents 流水线依赖的全部文本协作方
type Agents interface {
	compress.Summarizer
	extract.EventGenerator
	extract.SceneGenerator
	extract.ShotGenerator
	merge.SceneMerger
	merge.NovelMatcher
	selection.Judge
	ReferenceSelector
	CharacterExtractor
	PortraitRewriter
	ScriptWriter
}
