// Package merge 实现跨粒度角色合并：场景到事件，事件到小说
package merge

import (
	"context"
	"fmt"
	"sort"

	"novel2video/internal/domain/entity"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/retry"
)

// SceneAppearance 角色在某个场景中的出场及所用标识
type SceneAppearance struct {
	SceneIndex        int    `json:"scene_index" validate:"gte=0"`
	IdentifierInScene string `json:"identifier_in_scene" validate:"required"`
}

// MergedCharacter 身份合并协作方返回的事件级角色
type MergedCharacter struct {
	IdentifierInEvent string            `json:"identifier_in_event" validate:"required"`
	StaticFeatures    string            `json:"static_features" validate:"required"`
	ActiveScenes      []SceneAppearance `json:"active_scenes" validate:"min=1,dive"`
}

// SceneMerger 将同一事件内各场景的角色按身份合并
type SceneMerger interface {
	MergeScenes(ctx context.Context, eventIndex int, scenes []entity.Scene) ([]MergedCharacter, error)
}

// NovelMatcher 为每个事件级角色判定其在小说级登记表中的归属
type NovelMatcher interface {
	MatchNovel(ctx context.Context, eventIndex int, registry []entity.CharacterInNovel, chars []entity.CharacterInEvent) ([]NovelDecision, error)
}

// Merger 角色合并器
type Merger struct {
	scenes SceneMerger
	novel  NovelMatcher
	retry  retry.Policy
}

// NewMerger 创建合并器
func NewMerger(scenes SceneMerger, novel NovelMatcher, policy retry.Policy) *Merger {
	if policy.MaxAttempts == 0 {
		policy = retry.Default()
	}
	return &Merger{scenes: scenes, novel: novel, retry: policy}
}

// MergeInEvent 一次调用合并整个事件的场景角色，并对结果做强制校验。
// 校验失败视为契约违例，按重试策略重新请求后仍失败则返回错误。
func (m *Merger) MergeInEvent(ctx context.Context, eventIndex int, scenes []entity.Scene) ([]entity.CharacterInEvent, error) {
	total := 0
	for _, s := range scenes {
		total += len(s.Characters)
	}
	if total == 0 {
		return []entity.CharacterInEvent{}, nil
	}

	return retry.Do(ctx, "merge.scenes", m.retry, func(ctx context.Context) ([]entity.CharacterInEvent, error) {
		merged, err := m.scenes.MergeScenes(ctx, eventIndex, scenes)
		if err != nil {
			return nil, err
		}
		return BuildEventCharacters(eventIndex, scenes, merged)
	})
}

// BuildEventCharacters 校验合并结果并转换为事件级角色：
// 引用的 (场景, 标识) 必须真实存在，源场景中的每个 (场景, 标识) 恰好出现一次。
func BuildEventCharacters(eventIndex int, scenes []entity.Scene, merged []MergedCharacter) ([]entity.CharacterInEvent, error) {
	type pair struct {
		scene int
		id    string
	}

	source := make(map[pair]bool)
	for pos, s := range scenes {
		for _, c := range s.Characters {
			source[pair{pos, c.IdentifierInScene}] = false
		}
	}

	out := make([]entity.CharacterInEvent, 0, len(merged))
	identifiers := make(map[string]struct{}, len(merged))
	for i, mc := range merged {
		if err := entity.Validate(mc); err != nil {
			return nil, err
		}
		if _, dup := identifiers[mc.IdentifierInEvent]; dup {
			return nil, invalid(eventIndex, "duplicate event identifier %q", mc.IdentifierInEvent)
		}
		identifiers[mc.IdentifierInEvent] = struct{}{}

		active := make(map[int]string, len(mc.ActiveScenes))
		for _, a := range mc.ActiveScenes {
			p := pair{a.SceneIndex, a.IdentifierInScene}
			seen, ok := source[p]
			if !ok {
				return nil, invalid(eventIndex, "character %q references %q in scene %d, which does not exist",
					mc.IdentifierInEvent, a.IdentifierInScene, a.SceneIndex)
			}
			if seen {
				return nil, invalid(eventIndex, "%q in scene %d is assigned more than once", a.IdentifierInScene, a.SceneIndex)
			}
			if prev, clash := active[a.SceneIndex]; clash {
				return nil, invalid(eventIndex, "character %q maps scene %d to both %q and %q",
					mc.IdentifierInEvent, a.SceneIndex, prev, a.IdentifierInScene)
			}
			source[p] = true
			active[a.SceneIndex] = a.IdentifierInScene
		}

		out = append(out, entity.CharacterInEvent{
			Index:             i,
			IdentifierInEvent: mc.IdentifierInEvent,
			ActiveScenes:      active,
			StaticFeatures:    mc.StaticFeatures,
		})
	}

	var dropped []pair
	for p, seen := range source {
		if !seen {
			dropped = append(dropped, p)
		}
	}
	if len(dropped) > 0 {
		sort.Slice(dropped, func(i, j int) bool {
			if dropped[i].scene != dropped[j].scene {
				return dropped[i].scene < dropped[j].scene
			}
			return dropped[i].id < dropped[j].id
		})
		return nil, invalid(eventIndex, "%q in scene %d is not covered by any merged character",
			dropped[0].id, dropped[0].scene)
	}
	return out, nil
}

func invalid(eventIndex int, format string, args ...any) error {
	return apperrors.ErrMergeInvalid.WithDetail(fmt.Sprintf("event %d: ", eventIndex) + fmt.Sprintf(format, args...))
}
