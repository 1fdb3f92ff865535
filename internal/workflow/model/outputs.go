// Package model 定义工作流的结构化输出外壳（JSON 根必须为对象）
package model

import (
	"novel2video/internal/application/merge"
	"novel2video/internal/domain/entity"
)

// SceneMergeOutput 场景到事件的合并结果
type SceneMergeOutput struct {
	Characters []merge.MergedCharacter `json:"characters" validate:"dive"`
}

// NovelMergeOutput 事件到小说的归属判定
type NovelMergeOutput struct {
	Decisions []merge.NovelDecision `json:"decisions" validate:"dive"`
}

// ScriptCharactersOutput 剧本角色抽取结果
type ScriptCharactersOutput struct {
	Characters []entity.ScriptCharacter `json:"characters" validate:"dive"`
}

// MergeSceneView 提交给合并模型的场景视图
type MergeSceneView struct {
	SceneIndex int                  `json:"scene_index"`
	Script     string               `json:"script"`
	Characters []MergeCharacterView `json:"characters"`
}

// MergeCharacterView 场景内角色视图
type MergeCharacterView struct {
	IdentifierInScene string  `json:"identifier_in_scene"`
	StaticFeatures    string  `json:"static_features"`
	DynamicFeatures   *string `json:"dynamic_features,omitempty"`
}

// NewMergeSceneViews 按场景位置构建视图，scene_index 为位置序号
func NewMergeSceneViews(scenes []entity.Scene) []MergeSceneView {
	out := make([]MergeSceneView, len(scenes))
	for i, s := range scenes {
		v := MergeSceneView{SceneIndex: i, Script: s.Script}
		for _, c := range s.Characters {
			v.Characters = append(v.Characters, MergeCharacterView{
				IdentifierInScene: c.IdentifierInScene,
				StaticFeatures:    c.StaticFeatures,
				DynamicFeatures:   c.DynamicFeatures,
			})
		}
		out[i] = v
	}
	return out
}
