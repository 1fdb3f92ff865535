package pipeline

import (
	"context"
	"io"
	"strings"

	"novel2video/internal/application/extract"
	"novel2video/internal/application/resume"
	"novel2video/internal/application/selection"
	"novel2video/internal/domain/entity"
	"novel2video/pkg/logger"
	"novel2video/pkg/retry"
)

// CastMember 剧本角色及其立绘键
type CastMember struct {
	Identifier  string
	Description string
	Key         string
}

// Script 一个剧本的视频化任务
type Script struct {
	// Dir 工作目录键前缀
	Dir  string
	Text string
	// Cast 为 nil 时从剧本抽取角色并生成立绘
	Cast []CastMember
}

// ScriptToVideo 单剧本运行：分镜、逐帧参考选择与候选选优、视频
func (p *Pipeline) ScriptToVideo(ctx context.Context, s Script) error {
	ctx = logger.WithRun(ctx, p.cfg.RunID)
	err := p.stage(ctx, StageScriptToVideo, func(ctx context.Context) error {
		return p.scriptToVideo(ctx, s)
	})
	return p.finish(ctx, "script", err, p.waitVideos(ctx))
}

// Idea2Video 创意到剧本再到视频
func (p *Pipeline) Idea2Video(ctx context.Context, idea, requirement string) error {
	ctx = logger.WithRun(ctx, p.cfg.RunID)
	mode := string(entity.RunModeIdea)

	var script string
	if err := p.stage(ctx, StagePlanScript, func(ctx context.Context) error {
		planned, err := resume.Unit(ctx, p.store, "planned_script", resume.PlannedKey, func(ctx context.Context) (string, error) {
			return retry.Do(ctx, "plan_script", p.cfg.Retry, func(ctx context.Context) (string, error) {
				return p.agents.PlanScript(ctx, idea, requirement, p.cfg.Style)
			})
		})
		if err != nil {
			return err
		}
		script, err = resume.Unit(ctx, p.store, "enhanced_script", resume.EnhancedKey, func(ctx context.Context) (string, error) {
			return retry.Do(ctx, "enhance_script", p.cfg.Retry, func(ctx context.Context) (string, error) {
				return p.agents.EnhanceScript(ctx, planned)
			})
		})
		return err
	}); err != nil {
		return p.finish(ctx, mode, err)
	}

	err := p.stage(ctx, StageScriptToVideo, func(ctx context.Context) error {
		return p.scriptToVideo(ctx, Script{Dir: resume.IdeaScriptDir, Text: script})
	})
	return p.finish(ctx, mode, err, p.waitVideos(ctx))
}

func (p *Pipeline) scriptToVideo(ctx context.Context, s Script) error {
	cast := s.Cast
	if cast == nil {
		var err error
		if cast, err = p.scriptCast(ctx, s.Dir, s.Text); err != nil {
			return err
		}
	}

	initial := make([]entity.Reference, 0, len(cast))
	identifiers := make([]string, 0, len(cast))
	for _, c := range cast {
		initial = append(initial, entity.Reference{Path: p.store.Path(c.Key), Description: c.Description, Portrait: true})
		identifiers = append(identifiers, c.Identifier)
	}
	registry := selection.NewRegistry(p.cfg.MaxPool, p.cfg.Eviction, initial...)

	shots := extract.Shots(p.agents, s.Text, identifiers, extract.Options{
		Kind:     "shot",
		MaxUnits: p.cfg.MaxShotsPerScene,
		Retry:    p.cfg.Retry,
		Store:    p.store,
		Key:      func(pos int) string { return resume.ShotKey(s.Dir, pos) },
	})
	for {
		shot, err := shots.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		frames := make(map[entity.FrameType]string, 2)
		for _, f := range shot.Frames() {
			key, err := p.frame(ctx, s.Dir, shot, f, registry)
			if err != nil {
				return err
			}
			frames[f] = key
		}

		if p.videos != nil {
			job := videoJob{
				Key:        resume.VideoKey(s.Dir, shot.Idx),
				Prompt:     videoPrompt(shot),
				FirstFrame: p.store.Path(frames[entity.FrameFirst]),
			}
			if last, ok := frames[entity.FrameLast]; ok {
				job.LastFrame = p.store.Path(last)
			}
			p.videos.Submit(ctx, job)
		}
	}
}

// frame 生成一帧：参考选择（持久化）、候选生成与选优，完成后加入参考池
func (p *Pipeline) frame(ctx context.Context, dir string, shot entity.Shot, f entity.FrameType, registry *selection.Registry) (string, error) {
	desc := shot.FrameDescription(f)
	refs := registry.Snapshot()

	sel, err := resume.Unit(ctx, p.store, "reference_selection", resume.FrameReferenceKey(dir, shot.Idx, f),
		func(ctx context.Context) (entity.ReferenceSelection, error) {
			if len(refs) == 0 {
				return entity.ReferenceSelection{RefIndices: []int{}, TextPrompt: desc}, nil
			}
			return retry.Do(ctx, "select_references", p.cfg.Retry, func(ctx context.Context) (entity.ReferenceSelection, error) {
				return p.agents.SelectReferences(ctx, refs, desc)
			})
		})
	if err != nil {
		return "", err
	}

	chosen := make([]entity.Reference, 0, len(sel.RefIndices))
	for _, i := range sel.RefIndices {
		if i < 0 || i >= len(refs) {
			logger.Warn(ctx, "reference index out of pool, ignored", "index", i, "pool", len(refs))
			continue
		}
		if len(chosen) == p.cfg.MaxReferences {
			break
		}
		chosen = append(chosen, refs[i])
	}
	prompt := sel.TextPrompt
	if prompt == "" {
		prompt = desc
	}

	key, err := p.selector.GenerateAndSelect(ctx, selection.Request{
		Target:       desc,
		Prompt:       prompt,
		Refs:         chosen,
		Size:         p.cfg.FrameSize,
		CandidateDir: resume.CandidateDir(dir, shot.Idx, f),
		SaveKey:      resume.FrameKey(dir, shot.Idx, f),
	})
	if err != nil {
		return "", err
	}
	registry.Append(entity.Reference{Path: p.store.Path(key), Description: desc})
	p.mirror(ctx, key)
	return key, nil
}

// videoPrompt 画面内容加声音信息；视频后端只接受首帧参考，尾帧以文字描述附在末尾
func videoPrompt(shot entity.Shot) string {
	var b strings.Builder
	b.WriteString(shot.VisualContent)
	if shot.Speaker != nil && shot.Line != nil && *shot.Line != "" {
		b.WriteString("\n")
		b.WriteString(*shot.Speaker)
		b.WriteString(": \"")
		b.WriteString(*shot.Line)
		b.WriteString("\"")
	}
	if shot.SoundEffect != nil && *shot.SoundEffect != "" {
		b.WriteString("\nSound: ")
		b.WriteString(*shot.SoundEffect)
	}
	if shot.Duration != "" {
		b.WriteString("\nDuration: ")
		b.WriteString(shot.Duration)
	}
	if shot.LastFrame != nil && *shot.LastFrame != "" {
		b.WriteString("\nEnding frame: ")
		b.WriteString(*shot.LastFrame)
	}
	return b.String()
}
