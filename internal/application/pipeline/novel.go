package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"novel2video/internal/application/extract"
	"novel2video/internal/application/resume"
	"novel2video/internal/application/retrieval"
	"novel2video/internal/domain/entity"
	apperrors "novel2video/pkg/errors"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
)

// eventResult 单个事件的物化结果
type eventResult struct {
	event      entity.Event
	scenes     []entity.Scene
	characters []entity.CharacterInEvent
}

// Novel2Video 全流程：压缩、事件、检索、场景、角色合并、立绘、分镜、帧与视频
func (p *Pipeline) Novel2Video(ctx context.Context, text string) error {
	ctx = logger.WithRun(ctx, p.cfg.RunID)
	logger.Info(ctx, "novel2video started", "runes", len([]rune(text)))

	if _, err := resume.Unit(ctx, p.store, "novel", resume.NovelKey, func(context.Context) (string, error) {
		return text, nil
	}); err != nil {
		return p.finish(ctx, string(entity.RunModeNovel), err)
	}

	var compressed string
	if err := p.stage(ctx, StageCompress, func(ctx context.Context) error {
		var err error
		compressed, err = p.compressor.Compress(ctx, text)
		return err
	}); err != nil {
		return p.finish(ctx, string(entity.RunModeNovel), err)
	}

	var events []entity.Event
	if err := p.stage(ctx, StageEvents, func(ctx context.Context) error {
		var err error
		events, err = extract.Events(p.agents, compressed, extract.Options{
			Kind:     "event",
			MaxUnits: p.cfg.MaxEvents,
			Retry:    p.cfg.Retry,
			Store:    p.store,
			Key:      resume.EventKey,
		}).Collect(ctx)
		return err
	}); err != nil {
		return p.finish(ctx, string(entity.RunModeNovel), err)
	}

	var results map[int]*eventResult
	sceneErr := p.stage(ctx, StageScenes, func(ctx context.Context) error {
		var err error
		results, err = p.materializeEvents(ctx, text, events)
		return err
	})

	var (
		registry []entity.CharacterInNovel
		folded   []int
	)
	foldErr := p.stage(ctx, StageNovelFold, func(ctx context.Context) error {
		var err error
		registry, folded, err = p.foldNovel(ctx, events, results)
		return err
	})

	portraitErr := p.stage(ctx, StageBasePortraits, func(ctx context.Context) error {
		return p.basePortraits(ctx, registry)
	})

	videoErr := p.stage(ctx, StageScriptToVideo, func(ctx context.Context) error {
		return p.scenesToVideo(ctx, registry, folded, results)
	})

	return p.finish(ctx, string(entity.RunModeNovel),
		sceneErr, foldErr, portraitErr, videoErr, p.waitVideos(ctx))
}

// materializeEvents 各事件并发执行检索、场景抽取与事件内合并，事件之间互不影响
func (p *Pipeline) materializeEvents(ctx context.Context, text string, events []entity.Event) (map[int]*eventResult, error) {
	// 知识库只在有事件缺少检索结果时构建
	index := sync.OnceValues(func() (*retrieval.Index, error) {
		return p.deps.Knowledge.Build(ctx, p.cfg.RunID, text)
	})

	var (
		mu      sync.Mutex
		results = make(map[int]*eventResult, len(events))
		errs    []error
		g       errgroup.Group
	)
	for _, ev := range events {
		g.Go(func() error {
			r, err := p.materializeEvent(ctx, ev, index)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("event %d: %w", ev.Index, err))
				return nil
			}
			results[ev.Index] = r
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

func (p *Pipeline) materializeEvent(ctx context.Context, ev entity.Event, index func() (*retrieval.Index, error)) (*eventResult, error) {
	relevant, err := resume.Unit(ctx, p.store, "relevant_chunks", resume.RelevantChunksKey(ev.Index),
		func(ctx context.Context) ([]retrieval.ScoredChunk, error) {
			if p.deps.Knowledge == nil {
				return []retrieval.ScoredChunk{}, nil
			}
			idx, err := index()
			if err != nil {
				return nil, err
			}
			if err := p.retrieval.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			defer p.retrieval.Release(1)
			return p.deps.Knowledge.Query(ctx, idx, ev)
		})
	if err != nil {
		return nil, err
	}

	scenes, err := extract.Scenes(p.agents, ev, retrieval.Texts(relevant), extract.Options{
		Kind:     "scene",
		MaxUnits: p.cfg.MaxScenesPerEvent,
		Retry:    p.cfg.Retry,
		Store:    p.store,
		Key:      func(pos int) string { return resume.SceneKey(ev.Index, pos) },
	}).Collect(ctx)
	if err != nil {
		return nil, err
	}

	chars, err := resume.Unit(ctx, p.store, "event_characters", resume.EventCharactersKey(ev.Index),
		func(ctx context.Context) ([]entity.CharacterInEvent, error) {
			return p.merger.MergeInEvent(ctx, ev.Index, scenes)
		})
	if err != nil {
		return nil, err
	}
	return &eventResult{event: ev, scenes: scenes, characters: chars}, nil
}

// foldNovel 按事件顺序折叠小说级角色登记表。
// 已有的 after_event 检查点直接加载；遇到物化失败的事件即停止，其后事件不再折叠。
func (p *Pipeline) foldNovel(ctx context.Context, events []entity.Event, results map[int]*eventResult) ([]entity.CharacterInNovel, []int, error) {
	order := make([]int, 0, len(events))
	for _, ev := range events {
		order = append(order, ev.Index)
	}
	sort.Ints(order)

	var gapErr error
	for i, ev := range order {
		if _, ok := results[ev]; !ok {
			gapErr = apperrors.ErrStageFailed.WithDetail(
				fmt.Sprintf("fold stopped before event %d: %d later events skipped", ev, len(order)-i-1))
			order = order[:i]
			break
		}
	}

	start := 0
	// 上次运行已完整折叠时只需确认最后一个检查点，无需逐个扫描
	if n := len(order); n > 0 && p.done(ctx, StageNovelFold) {
		if ok, err := p.store.Exists(ctx, resume.NovelCharactersKey(order[n-1])); err == nil && ok {
			start = n
		}
	}
	for start < len(order) {
		ok, err := p.store.Exists(ctx, resume.NovelCharactersKey(order[start]))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		start++
	}

	var registry []entity.CharacterInNovel
	if start > 0 {
		if err := p.store.Load(ctx, resume.NovelCharactersKey(order[start-1]), &registry); err != nil {
			return nil, nil, err
		}
		metrics.UnitTotal.WithLabelValues("novel_characters", "skipped").Add(float64(start))
	}

	chars := make(map[int][]entity.CharacterInEvent, len(order))
	for _, ev := range order[start:] {
		chars[ev] = results[ev].characters
	}
	folded := start
	registry, err := p.merger.Fold(ctx, registry, order[start:], chars, func(ev int, reg []entity.CharacterInNovel) error {
		if err := p.store.Save(ctx, resume.NovelCharactersKey(ev), reg); err != nil {
			return err
		}
		folded++
		metrics.UnitTotal.WithLabelValues("novel_characters", "computed").Inc()
		logger.Info(ctx, "novel registry folded", "event", ev, "characters", len(reg))
		return nil
	})
	if err != nil {
		metrics.UnitTotal.WithLabelValues("novel_characters", "failed").Inc()
	}
	return registry, order[:folded], errors.Join(gapErr, err)
}

// scenesToVideo 对已折叠事件的每个场景生成场景立绘并执行剧本到视频，场景之间并发
func (p *Pipeline) scenesToVideo(ctx context.Context, registry []entity.CharacterInNovel, folded []int, results map[int]*eventResult) error {
	novel := entity.IndexNovelCharacters(registry)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, e := range folded {
		r := results[e]
		local := entity.IndexEventCharacters(r.characters)
		for _, sc := range r.scenes {
			g.Go(func() error {
				if err := p.sceneToVideo(ctx, e, sc, local, novel); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("event %d scene %d: %w", e, sc.Idx, err))
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Pipeline) sceneToVideo(ctx context.Context, e int, sc entity.Scene, local entity.EventIndex, novel *entity.NovelIndex) error {
	cast := make([]CastMember, 0, len(sc.Characters))
	for _, c := range sc.Characters {
		ec, ok := local.Lookup(sc.Idx, c.IdentifierInScene)
		if !ok {
			return apperrors.ErrMergeInvalid.WithDetail(
				fmt.Sprintf("scene character %q has no event character", c.IdentifierInScene))
		}
		nc, ok := novel.ByEventLocal(e, ec.IdentifierInEvent)
		if !ok {
			return apperrors.ErrMergeInvalid.WithDetail(
				fmt.Sprintf("event character %q has no novel character", ec.IdentifierInEvent))
		}
		key, err := p.scenePortrait(ctx, e, sc.Idx, c, *nc)
		if err != nil {
			return err
		}
		cast = append(cast, CastMember{
			Identifier:  c.IdentifierInScene,
			Description: castDescription(c.IdentifierInScene, nc.StaticFeatures, c.DynamicFeatures),
			Key:         key,
		})
	}
	return p.scriptToVideo(ctx, Script{
		Dir:  resume.ScriptDir(e, sc.Idx),
		Text: sceneScript(sc),
		Cast: cast,
	})
}

func sceneScript(sc entity.Scene) string {
	return sc.Environment.Slugline + "\n" + sc.Environment.Description + "\n\n" + sc.Script
}
