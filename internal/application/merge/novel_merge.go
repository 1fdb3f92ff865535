package merge

import (
	"context"
	"fmt"
	"sort"

	"novel2video/internal/domain/entity"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/retry"
)

// NovelDecision 单个事件级角色的归属判定，IndexInNovel 为 -1 表示新角色
type NovelDecision struct {
	IndexInEvent      int    `json:"index_in_event" validate:"gte=0"`
	IndexInNovel      int    `json:"index_in_novel" validate:"gte=-1"`
	IdentifierInNovel string `json:"identifier_in_novel" validate:"required"`
	ModifiedFeatures  string `json:"modified_features" validate:"required"`
}

// NewCharacter 表示新角色的哨兵值
const NewCharacter = -1

// MergeIntoNovel 将一个事件的角色并入小说级登记表。输入登记表不会被修改。
func (m *Merger) MergeIntoNovel(ctx context.Context, eventIndex int, registry []entity.CharacterInNovel, chars []entity.CharacterInEvent) ([]entity.CharacterInNovel, error) {
	if len(chars) == 0 {
		return entity.CloneRegistry(registry), nil
	}
	return retry.Do(ctx, "merge.novel", m.retry, func(ctx context.Context) ([]entity.CharacterInNovel, error) {
		decisions, err := m.novel.MatchNovel(ctx, eventIndex, registry, chars)
		if err != nil {
			return nil, err
		}
		return ApplyDecisions(eventIndex, registry, chars, decisions)
	})
}

// Fold 按事件顺序依次合并，事件 N 看到的是事件 N-1 合并后的登记表。
// events 的键为事件序号，值为该事件的角色列表；order 给出折叠顺序。
func (m *Merger) Fold(ctx context.Context, registry []entity.CharacterInNovel, order []int, events map[int][]entity.CharacterInEvent, after func(eventIndex int, registry []entity.CharacterInNovel) error) ([]entity.CharacterInNovel, error) {
	current := entity.CloneRegistry(registry)
	for _, ev := range order {
		next, err := m.MergeIntoNovel(ctx, ev, current, events[ev])
		if err != nil {
			return current, err
		}
		current = next
		if after != nil {
			if err := after(ev, current); err != nil {
				return current, err
			}
		}
	}
	return current, nil
}

// ApplyDecisions 校验并应用判定：每个事件角色恰好判定一次，
// 已有角色序号必须合法且不被重复认领，新角色标识不得与已有标识冲突。
func ApplyDecisions(eventIndex int, registry []entity.CharacterInNovel, chars []entity.CharacterInEvent, decisions []NovelDecision) ([]entity.CharacterInNovel, error) {
	if len(decisions) != len(chars) {
		return nil, invalid(eventIndex, "got %d decisions for %d event characters", len(decisions), len(chars))
	}

	sorted := make([]NovelDecision, len(decisions))
	copy(sorted, decisions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].IndexInEvent < sorted[j].IndexInEvent })

	identifiers := make(map[string]struct{}, len(registry)+len(chars))
	for _, c := range registry {
		identifiers[c.IdentifierInNovel] = struct{}{}
	}

	decided := make(map[int]struct{}, len(chars))
	claimed := make(map[int]int)
	for _, d := range sorted {
		if err := entity.Validate(d); err != nil {
			return nil, err
		}
		if d.IndexInEvent >= len(chars) {
			return nil, invalid(eventIndex, "decision references event character %d of %d", d.IndexInEvent, len(chars))
		}
		if _, dup := decided[d.IndexInEvent]; dup {
			return nil, invalid(eventIndex, "event character %d decided more than once", d.IndexInEvent)
		}
		decided[d.IndexInEvent] = struct{}{}

		if d.IndexInNovel == NewCharacter {
			if _, clash := identifiers[d.IdentifierInNovel]; clash {
				return nil, apperrors.ErrSchemaViolation.WithDetail(
					fmt.Sprintf("event %d: new character identifier %q collides with an existing one", eventIndex, d.IdentifierInNovel))
			}
			identifiers[d.IdentifierInNovel] = struct{}{}
			continue
		}
		if d.IndexInNovel >= len(registry) {
			return nil, invalid(eventIndex, "novel index %d out of range [0, %d)", d.IndexInNovel, len(registry))
		}
		if other, dup := claimed[d.IndexInNovel]; dup {
			return nil, invalid(eventIndex, "event characters %d and %d both matched novel character %d",
				other, d.IndexInEvent, d.IndexInNovel)
		}
		claimed[d.IndexInNovel] = d.IndexInEvent
	}

	out := entity.CloneRegistry(registry)
	for _, d := range sorted {
		local := chars[d.IndexInEvent].IdentifierInEvent
		if d.IndexInNovel == NewCharacter {
			out = append(out, entity.CharacterInNovel{
				Index:             len(out),
				IdentifierInNovel: d.IdentifierInNovel,
				ActiveEvents:      map[int]string{eventIndex: local},
				StaticFeatures:    d.ModifiedFeatures,
			})
			continue
		}
		c := &out[d.IndexInNovel]
		c.StaticFeatures = d.ModifiedFeatures
		c.ActiveEvents[eventIndex] = local
	}
	return out, nil
}
