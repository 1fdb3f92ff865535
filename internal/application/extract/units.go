package extract

import (
	"context"

	"novel2video/internal/domain/entity"
)

// EventGenerator 事件生成协作方，以压缩后的全文为依据
type EventGenerator interface {
	NextEvent(ctx context.Context, novel string, history []entity.Event) (entity.Event, error)
}

// SceneGenerator 场景生成协作方，以事件和检索到的原文片段为依据
type SceneGenerator interface {
	NextScene(ctx context.Context, event entity.Event, relevant []string, history []entity.Scene) (entity.Scene, error)
}

// ShotGenerator 分镜生成协作方，以剧本和角色标识为依据
type ShotGenerator interface {
	NextShot(ctx context.Context, script string, characters []string, history []entity.Shot) (entity.Shot, error)
}

// Events 事件抽取流
func Events(gen EventGenerator, novel string, opts Options) *Stream[entity.Event] {
	if opts.Kind == "" {
		opts.Kind = "event"
	}
	return NewStream(func(ctx context.Context, history []entity.Event) (entity.Event, error) {
		return gen.NextEvent(ctx, novel, history)
	}, opts)
}

// Scenes 单个事件的场景抽取流
func Scenes(gen SceneGenerator, event entity.Event, relevant []string, opts Options) *Stream[entity.Scene] {
	if opts.Kind == "" {
		opts.Kind = "scene"
	}
	return NewStream(func(ctx context.Context, history []entity.Scene) (entity.Scene, error) {
		return gen.NextScene(ctx, event, relevant, history)
	}, opts)
}

// Shots 单个剧本的分镜抽取流
func Shots(gen ShotGenerator, script string, characters []string, opts Options) *Stream[entity.Shot] {
	if opts.Kind == "" {
		opts.Kind = "shot"
	}
	return NewStream(func(ctx context.Context, history []entity.Shot) (entity.Shot, error) {
		return gen.NextShot(ctx, script, characters, history)
	}, opts)
}
