package entity

import (
	"fmt"

	apperrors "novel2video/pkg/errors"
)

// Environment 场景环境
type Environment struct {
	Slugline    string `json:"slugline" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// CharacterInScene 场景内角色
type CharacterInScene struct {
	Index             int     `json:"index" validate:"gte=0"`
	IdentifierInScene string  `json:"identifier_in_scene" validate:"required"`
	IsVisible         bool    `json:"is_visible"`
	StaticFeatures    string  `json:"static_features" validate:"required"`
	DynamicFeatures   *string `json:"dynamic_features"`
}

// Scene 事件内的一个连续时空片段
type Scene struct {
	Idx         int                `json:"idx" validate:"gte=0"`
	IsLast      bool               `json:"is_last"`
	Environment Environment        `json:"environment"`
	Characters  []CharacterInScene `json:"characters" validate:"dive"`
	Script      string             `json:"script" validate:"required"`
}

func (s Scene) Position() int { return s.Idx }
func (s Scene) Last() bool    { return s.IsLast }

// Check 场景内交叉约束：角色序号连续、标识唯一、不可见角色无动态特征
func (s Scene) Check() error {
	seen := make(map[string]struct{}, len(s.Characters))
	for i, c := range s.Characters {
		if c.Index != i {
			return apperrors.ErrSchemaViolation.WithDetail(
				fmt.Sprintf("scene %d: character %q has index %d at position %d", s.Idx, c.IdentifierInScene, c.Index, i))
		}
		if _, dup := seen[c.IdentifierInScene]; dup {
			return apperrors.ErrSchemaViolation.WithDetail(
				fmt.Sprintf("scene %d: duplicate character identifier %q", s.Idx, c.IdentifierInScene))
		}
		seen[c.IdentifierInScene] = struct{}{}
		if !c.IsVisible && c.DynamicFeatures != nil {
			return apperrors.ErrSchemaViolation.WithDetail(
				fmt.Sprintf("scene %d: invisible character %q carries dynamic features", s.Idx, c.IdentifierInScene))
		}
	}
	return nil
}

// CharacterByIdentifier 构建场景内标识到角色的索引
func (s Scene) CharacterByIdentifier() map[string]CharacterInScene {
	m := make(map[string]CharacterInScene, len(s.Characters))
	for _, c := range s.Characters {
		m[c.IdentifierInScene] = c
	}
	return m
}
