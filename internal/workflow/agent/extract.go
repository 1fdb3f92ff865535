package agent

import (
	"context"
	"fmt"

	"novel2video/internal/application/merge"
	"novel2video/internal/domain/entity"
	"novel2video/internal/workflow/chain"
	wfmodel "novel2video/internal/workflow/model"
	wfnode "novel2video/internal/workflow/node"
	apperrors "novel2video/pkg/errors"
)

// NextEvent 抽取下一个事件
func (a *Agents) NextEvent(ctx context.Context, novel string, history []entity.Event) (entity.Event, error) {
	return a.events.Invoke(ctx, &chain.Input{Vars: map[string]any{
		"novel":   novel,
		"history": wfnode.JSONBlock(history),
	}})
}

// NextScene 抽取事件的下一个场景
func (a *Agents) NextScene(ctx context.Context, event entity.Event, relevant []string, history []entity.Scene) (entity.Scene, error) {
	return a.scenes.Invoke(ctx, &chain.Input{Vars: map[string]any{
		"event":    wfnode.JSONBlock(event),
		"relevant": wfnode.NumberedBlock(relevant),
		"history":  wfnode.JSONBlock(history),
	}})
}

// NextShot 抽取剧本的下一个镜头
func (a *Agents) NextShot(ctx context.Context, script string, characters []string, history []entity.Shot) (entity.Shot, error) {
	return a.shots.Invoke(ctx, &chain.Input{Vars: map[string]any{
		"script":     script,
		"characters": wfnode.NumberedBlock(characters),
		"history":    wfnode.JSONBlock(history),
	}})
}

// ExtractCharacters 从剧本抽取角色，序号须连续
func (a *Agents) ExtractCharacters(ctx context.Context, script string) ([]entity.ScriptCharacter, error) {
	out, err := a.scriptChars.Invoke(ctx, &chain.Input{Vars: map[string]any{"script": script}})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(out.Characters))
	for i, c := range out.Characters {
		if c.Index != i {
			return nil, apperrors.ErrIndexMismatch.WithDetail(fmt.Sprintf("character %q has index %d at %d", c.Identifier, c.Index, i))
		}
		if _, dup := seen[c.Identifier]; dup {
			return nil, apperrors.ErrSchemaViolation.WithDetail("duplicate character identifier " + c.Identifier)
		}
		seen[c.Identifier] = struct{}{}
	}
	return out.Characters, nil
}

// MergeScenes 合并同一事件内的场景角色
func (a *Agents) MergeScenes(ctx context.Context, eventIndex int, scenes []entity.Scene) ([]merge.MergedCharacter, error) {
	out, err := a.mergeScenes.Invoke(ctx, &chain.Input{Vars: map[string]any{
		"event_index": eventIndex,
		"scenes":      wfnode.JSONBlock(wfmodel.NewMergeSceneViews(scenes)),
	}})
	if err != nil {
		return nil, err
	}
	return out.Characters, nil
}

// MatchNovel 判定事件角色在小说登记表中的归属
func (a *Agents) MatchNovel(ctx context.Context, eventIndex int, registry []entity.CharacterInNovel, chars []entity.CharacterInEvent) ([]merge.NovelDecision, error) {
	out, err := a.mergeNovel.Invoke(ctx, &chain.Input{Vars: map[string]any{
		"event_index": eventIndex,
		"registry":    wfnode.JSONBlock(registry),
		"characters":  wfnode.JSONBlock(chars),
	}})
	if err != nil {
		return nil, err
	}
	return out.Decisions, nil
}
