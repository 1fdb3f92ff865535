package agent

import (
	"context"
	"fmt"

	"novel2video/internal/application/selection"
	"novel2video/internal/domain/entity"
	"novel2video/internal/workflow/chain"
	wfnode "novel2video/internal/workflow/node"
	apperrors "novel2video/pkg/errors"
)

func describe(refs []entity.Reference) ([]string, []string) {
	desc := make([]string, len(refs))
	paths := make([]string, len(refs))
	for i, r := range refs {
		desc[i] = r.Description
		paths[i] = r.Path
	}
	return desc, paths
}

// SelectReferences 为一帧挑选参考图并生成图像提示词，refs 的 Path 为本地路径
func (a *Agents) SelectReferences(ctx context.Context, refs []entity.Reference, frame string) (entity.ReferenceSelection, error) {
	desc, paths := describe(refs)
	sel, err := a.references.Invoke(ctx, &chain.Input{
		Vars:   map[string]any{"frame": frame, "references": wfnode.NumberedBlock(desc)},
		Images: paths,
	})
	if err != nil {
		return sel, err
	}
	for _, idx := range sel.RefIndices {
		if idx >= len(refs) {
			return sel, apperrors.ErrSchemaViolation.WithDetail(fmt.Sprintf("reference index %d out of %d", idx, len(refs)))
		}
	}
	return sel, nil
}

var _ selection.Judge = (*Agents)(nil)

// SelectBest 评审候选图片，参考图在前、候选在后附入消息
func (a *Agents) SelectBest(ctx context.Context, refs []entity.Reference, target string, candidates []string) (selection.Judgment, error) {
	desc, paths := describe(refs)
	return a.judge.Invoke(ctx, &chain.Input{
		Vars: map[string]any{
			"target":     target,
			"references": wfnode.NumberedBlock(desc),
			"count":      len(candidates),
		},
		Images: append(paths, candidates...),
	})
}
