package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"novel2video/internal/application/resume"
	"novel2video/internal/application/selection"
	"novel2video/internal/domain/entity"
	"novel2video/pkg/retry"
)

// portraitDescription 立绘描述，与图片同名保存
type portraitDescription struct {
	Identifier     string `json:"identifier"`
	StaticFeatures string `json:"static_features"`
	Prompt         string `json:"prompt"`
}

func portraitPrompt(style, features string) string {
	return fmt.Sprintf("%s. Full-body character portrait, front view, plain white background. %s",
		strings.TrimSuffix(strings.TrimSpace(style), "."), features)
}

func castDescription(identifier, static string, dynamic *string) string {
	if dynamic == nil || *dynamic == "" {
		return identifier + ": " + static
	}
	return identifier + ": " + static + " " + *dynamic
}

// basePortraits 为每个小说级角色生成基础立绘
func (p *Pipeline) basePortraits(ctx context.Context, registry []entity.CharacterInNovel) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, c := range registry {
		g.Go(func() error {
			if err := p.basePortrait(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("portrait %q: %w", c.IdentifierInNovel, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Pipeline) basePortrait(ctx context.Context, c entity.CharacterInNovel) error {
	prompt := portraitPrompt(p.cfg.Style, c.StaticFeatures)
	if _, err := resume.Unit(ctx, p.store, "portrait_description", resume.BasePortraitDescriptionKey(c.Index),
		func(context.Context) (portraitDescription, error) {
			return portraitDescription{Identifier: c.IdentifierInNovel, StaticFeatures: c.StaticFeatures, Prompt: prompt}, nil
		}); err != nil {
		return err
	}

	key, err := p.selector.GenerateAndSelect(ctx, selection.Request{
		Target:       c.IdentifierInNovel + ": " + c.StaticFeatures,
		Prompt:       prompt,
		Size:         p.cfg.PortraitSize,
		CandidateDir: resume.BasePortraitCandidateDir(c.Index),
		SaveKey:      resume.BasePortraitKey(c.Index),
	})
	if err != nil {
		return err
	}
	p.mirror(ctx, key)
	return nil
}

// scenePortrait 场景立绘：不可见或无动态特征时复制基础立绘，否则以基础立绘为参考重新生成
func (p *Pipeline) scenePortrait(ctx context.Context, e, s int, c entity.CharacterInScene, nc entity.CharacterInNovel) (string, error) {
	key := resume.ScenePortraitKey(e, s, c.Index)
	base := resume.BasePortraitKey(nc.Index)

	if !c.IsVisible || c.DynamicFeatures == nil || strings.TrimSpace(*c.DynamicFeatures) == "" {
		err := resume.Artifact(ctx, p.store, "scene_portrait", key, func(ctx context.Context) error {
			return p.store.Copy(ctx, base, key)
		})
		return key, err
	}

	ok, err := p.store.Exists(ctx, key)
	if err != nil || ok {
		return key, err
	}
	prompt, err := retry.Do(ctx, "rewrite_portrait", p.cfg.Retry, func(ctx context.Context) (string, error) {
		return p.agents.RewritePortrait(ctx, c.IdentifierInScene, nc.StaticFeatures, *c.DynamicFeatures, p.cfg.Style)
	})
	if err != nil {
		return "", err
	}
	ref := entity.Reference{
		Path:        p.store.Path(base),
		Description: nc.IdentifierInNovel + ": " + nc.StaticFeatures,
		Portrait:    true,
	}
	if _, err := p.selector.GenerateAndSelect(ctx, selection.Request{
		Target:       castDescription(c.IdentifierInScene, nc.StaticFeatures, c.DynamicFeatures),
		Prompt:       prompt,
		Refs:         []entity.Reference{ref},
		Size:         p.cfg.PortraitSize,
		CandidateDir: resume.ScenePortraitCandidateDir(e, s, c.Index),
		SaveKey:      key,
	}); err != nil {
		return "", err
	}
	p.mirror(ctx, key)
	return key, nil
}

// scriptCast 无登记表时从剧本抽取角色并生成立绘
func (p *Pipeline) scriptCast(ctx context.Context, dir, script string) ([]CastMember, error) {
	chars, err := resume.Unit(ctx, p.store, "script_characters", resume.ScriptCharactersKey(dir),
		func(ctx context.Context) ([]entity.ScriptCharacter, error) {
			return retry.Do(ctx, "extract_characters", p.cfg.Retry, func(ctx context.Context) ([]entity.ScriptCharacter, error) {
				return p.agents.ExtractCharacters(ctx, script)
			})
		})
	if err != nil {
		return nil, err
	}

	cast := make([]CastMember, len(chars))
	var g errgroup.Group
	for i, c := range chars {
		g.Go(func() error {
			key, err := p.selector.GenerateAndSelect(ctx, selection.Request{
				Target:       c.Identifier + ": " + c.StaticFeatures,
				Prompt:       portraitPrompt(p.cfg.Style, c.StaticFeatures),
				Size:         p.cfg.PortraitSize,
				CandidateDir: resume.ScriptPortraitCandidateDir(dir, c.Index),
				SaveKey:      resume.ScriptPortraitKey(dir, c.Index),
			})
			if err != nil {
				return fmt.Errorf("portrait %q: %w", c.Identifier, err)
			}
			p.mirror(ctx, key)
			cast[i] = CastMember{Identifier: c.Identifier, Description: c.Identifier + ": " + c.StaticFeatures, Key: key}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cast, nil
}
