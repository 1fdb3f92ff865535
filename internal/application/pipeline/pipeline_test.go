package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"

	"novel2video/internal/application/compress"
	"novel2video/internal/application/merge"
	"novel2video/internal/application/resume"
	"novel2video/internal/application/retrieval"
	"novel2video/internal/application/selection"
	"novel2video/internal/domain/entity"
	"novel2video/internal/domain/repository"
	"novel2video/internal/domain/service"
	"novel2video/internal/infrastructure/checkpoint"
	"novel2video/pkg/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, BackOff: &backoff.ZeroBackOff{}}

const novelText = "雨夜，林默推开客栈的门。苏晴坐在角落，斗篷还在滴水。她把一封密信推到他面前，低声说城门明早就会关闭。"

func ptr(s string) *string { return &s }

type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *counter) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[name]++
}

func (c *counter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *counter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// fakeAgents 确定性的文本协作方：每个事件两个场景、两个角色，每个剧本两个镜头
type fakeAgents struct {
	counter
	events    int
	scenes    int
	failScene func(event, pos int) bool
}

func (a *fakeAgents) CompressChunk(_ context.Context, chunk string) (string, error) {
	a.hit("CompressChunk")
	return chunk, nil
}

func (a *fakeAgents) Aggregate(_ context.Context, chunks []string) (string, error) {
	a.hit("Aggregate")
	var b bytes.Buffer
	for _, c := range chunks {
		b.WriteString(c)
	}
	return b.String(), nil
}

func (a *fakeAgents) NextEvent(_ context.Context, _ string, history []entity.Event) (entity.Event, error) {
	a.hit("NextEvent")
	pos := len(history)
	return entity.Event{
		Index:        pos,
		IsLast:       pos == a.events-1,
		Description:  fmt.Sprintf("event %d", pos),
		ProcessChain: []string{"林默推开客栈的门", "苏晴递上密信"},
	}, nil
}

func (a *fakeAgents) NextScene(_ context.Context, event entity.Event, _ []string, history []entity.Scene) (entity.Scene, error) {
	a.hit("NextScene")
	pos := len(history)
	if a.failScene != nil && a.failScene(event.Index, pos) {
		return entity.Scene{}, errors.New("provider unavailable")
	}
	return entity.Scene{
		Idx:         pos,
		IsLast:      pos == a.scenes-1,
		Environment: entity.Environment{Slugline: "INT. INN - NIGHT", Description: "A dim inn, rain outside."},
		Characters: []entity.CharacterInScene{
			{Index: 0, IdentifierInScene: "林默", IsVisible: true, StaticFeatures: "young swordsman, black robe"},
			{Index: 1, IdentifierInScene: "苏晴", IsVisible: true, StaticFeatures: "woman in grey cloak", DynamicFeatures: ptr("soaked cloak")},
		},
		Script: fmt.Sprintf("script of event %d scene %d", event.Index, pos),
	}, nil
}

func (a *fakeAgents) NextShot(_ context.Context, _ string, _ []string, history []entity.Shot) (entity.Shot, error) {
	a.hit("NextShot")
	pos := len(history)
	shot := entity.Shot{
		Idx:           pos,
		IsLast:        pos == 1,
		Duration:      "4s",
		FirstFrame:    fmt.Sprintf("shot %d opening frame", pos),
		VisualContent: fmt.Sprintf("shot %d action", pos),
		Speaker:       ptr("苏晴"),
		Line:          ptr("城门明早就关。"),
	}
	if pos == 0 {
		shot.LastFrame = ptr("shot 0 closing frame")
	}
	return shot, nil
}

func (a *fakeAgents) MergeScenes(_ context.Context, _ int, scenes []entity.Scene) ([]merge.MergedCharacter, error) {
	a.hit("MergeScenes")
	var out []merge.MergedCharacter
	pos := map[string]int{}
	for _, sc := range scenes {
		for _, c := range sc.Characters {
			i, ok := pos[c.IdentifierInScene]
			if !ok {
				i = len(out)
				pos[c.IdentifierInScene] = i
				out = append(out, merge.MergedCharacter{IdentifierInEvent: c.IdentifierInScene, StaticFeatures: c.StaticFeatures})
			}
			out[i].ActiveScenes = append(out[i].ActiveScenes, merge.SceneAppearance{SceneIndex: sc.Idx, IdentifierInScene: c.IdentifierInScene})
		}
	}
	return out, nil
}

func (a *fakeAgents) MatchNovel(_ context.Context, _ int, registry []entity.CharacterInNovel, chars []entity.CharacterInEvent) ([]merge.NovelDecision, error) {
	a.hit("MatchNovel")
	out := make([]merge.NovelDecision, len(chars))
	for i, c := range chars {
		idx := merge.NewCharacter
		for _, r := range registry {
			if r.IdentifierInNovel == c.IdentifierInEvent {
				idx = r.Index
			}
		}
		out[i] = merge.NovelDecision{IndexInEvent: i, IndexInNovel: idx, IdentifierInNovel: c.IdentifierInEvent, ModifiedFeatures: c.StaticFeatures}
	}
	return out, nil
}

func (a *fakeAgents) SelectBest(context.Context, []entity.Reference, string, []string) (selection.Judgment, error) {
	a.hit("SelectBest")
	return selection.Judgment{BestIndex: 0, Reason: "closest to the description"}, nil
}

func (a *fakeAgents) SelectReferences(_ context.Context, _ []entity.Reference, frame string) (entity.ReferenceSelection, error) {
	a.hit("SelectReferences")
	return entity.ReferenceSelection{RefIndices: []int{0}, TextPrompt: frame}, nil
}

func (a *fakeAgents) ExtractCharacters(context.Context, string) ([]entity.ScriptCharacter, error) {
	a.hit("ExtractCharacters")
	return []entity.ScriptCharacter{{Index: 0, Identifier: "阿青", StaticFeatures: "girl with a bamboo staff"}}, nil
}

func (a *fakeAgents) RewritePortrait(_ context.Context, identifier, _, _, _ string) (string, error) {
	a.hit("RewritePortrait")
	return "portrait of " + identifier, nil
}

func (a *fakeAgents) PlanScript(context.Context, string, string, string) (string, error) {
	a.hit("PlanScript")
	return "planned script", nil
}

func (a *fakeAgents) EnhanceScript(_ context.Context, script string) (string, error) {
	a.hit("EnhanceScript")
	return script + ", enhanced", nil
}

type fakeImages struct{ counter }

func (g *fakeImages) Generate(_ context.Context, prompt string, refs []string, _ string) ([]byte, error) {
	g.hit("Generate")
	return []byte(fmt.Sprintf("png:%s:%d", prompt, len(refs))), nil
}

type fakeEmbedder struct{ counter }

func (e *fakeEmbedder) Model() string { return "fake" }

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.hit("Embed")
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)%7) + 1, 1}
	}
	return out, nil
}

// fakeVideos failPolls 次轮询返回失败后转为成功
type fakeVideos struct {
	counter
	failPolls int
	prompts   []string
}

func (v *fakeVideos) Submit(_ context.Context, prompt, _, _ string) (string, error) {
	v.hit("Submit")
	v.mu.Lock()
	v.prompts = append(v.prompts, prompt)
	v.mu.Unlock()
	return fmt.Sprintf("job-%d", v.count("Submit")), nil
}

func (v *fakeVideos) submitted(substr string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, p := range v.prompts {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}

func (v *fakeVideos) Poll(context.Context, string) (service.VideoStatus, error) {
	v.hit("Poll")
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failPolls > 0 {
		v.failPolls--
		return service.VideoFailed, nil
	}
	return service.VideoCompleted, nil
}

func (v *fakeVideos) Download(_ context.Context, _ string, dst string) error {
	v.hit("Download")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("mp4"), 0o644)
}

type harness struct {
	store  *checkpoint.FSStore
	agents *fakeAgents
	images *fakeImages
	embed  *fakeEmbedder
	videos *fakeVideos
}

func (h *harness) calls() int {
	return h.agents.total() + h.images.total() + h.embed.total() + h.videos.total()
}

func newHarness(t *testing.T, dir string, agents *fakeAgents) (*harness, *Pipeline) {
	t.Helper()
	store, err := checkpoint.NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{store: store, agents: agents, images: &fakeImages{}, embed: &fakeEmbedder{}, videos: &fakeVideos{}}
	kb := retrieval.NewKnowledgeBase(
		retrieval.NewCachedEmbedder(h.embed, nil, 0),
		retrieval.NewMemoryIndex(), nil,
		retrieval.Config{ChunkSize: 32, Overlap: 4, Retry: fastRetry},
	)
	p, err := New(Deps{
		Store:     store,
		State:     checkpoint.NewFileStageState(store),
		Agents:    agents,
		Images:    h.images,
		Videos:    h.videos,
		Knowledge: kb,
	}, Config{
		RunID:    "run-test",
		Style:    "ink wash",
		Compress: compress.Config{ChunkSize: 4096, Overlap: 64, Retry: fastRetry, CountTokens: utf8.RuneCountInString},
		Retry:    fastRetry,
		Videos:   true,
		Video:    VideoOptions{PollInterval: time.Millisecond, PollTimeout: time.Second, Attempts: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	return h, p
}

func exists(t *testing.T, store *checkpoint.FSStore, key string) bool {
	t.Helper()
	ok, err := store.Exists(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func TestNovel2VideoEndToEnd(t *testing.T) {
	h, p := newHarness(t, t.TempDir(), &fakeAgents{events: 1, scenes: 2})
	ctx := context.Background()

	if err := p.Novel2Video(ctx, novelText); err != nil {
		t.Fatalf("Novel2Video: %v", err)
	}

	var registry []entity.CharacterInNovel
	if err := h.store.Load(ctx, resume.NovelCharactersKey(0), &registry); err != nil {
		t.Fatal(err)
	}
	if len(registry) != 2 {
		t.Fatalf("registry has %d characters, want 2", len(registry))
	}
	for _, c := range registry {
		if c.ActiveEvents[0] == "" {
			t.Errorf("%s has no identifier for event 0", c.IdentifierInNovel)
		}
	}

	if !exists(t, h.store, resume.SceneKey(0, 1)) || exists(t, h.store, resume.SceneKey(0, 2)) {
		t.Error("want exactly scenes 0 and 1")
	}

	dir := resume.ScriptDir(0, 0)
	for _, key := range []string{
		resume.BasePortraitKey(0),
		resume.BasePortraitKey(1),
		resume.BasePortraitDescriptionKey(0),
		resume.ScenePortraitKey(0, 0, 1),
		resume.ShotKey(dir, 1),
		resume.FrameReferenceKey(dir, 0, entity.FrameFirst),
		resume.FrameKey(dir, 0, entity.FrameFirst),
		resume.FrameKey(dir, 0, entity.FrameLast),
		resume.FrameKey(dir, 1, entity.FrameFirst),
		resume.VideoKey(dir, 0),
		resume.VideoKey(dir, 1),
	} {
		if !exists(t, h.store, key) {
			t.Errorf("missing %s", key)
		}
	}
	if exists(t, h.store, resume.FrameKey(dir, 1, entity.FrameLast)) {
		t.Error("shot 1 has no last frame description and must not get one")
	}

	// 无动态特征的角色直接沿用基础立绘
	base, _ := h.store.LoadBytes(ctx, resume.BasePortraitKey(0))
	scene, _ := h.store.LoadBytes(ctx, resume.ScenePortraitKey(0, 0, 0))
	if !bytes.Equal(base, scene) {
		t.Error("scene portrait of an unchanged character should copy the base portrait")
	}
	if got := h.agents.count("RewritePortrait"); got != 2 {
		t.Errorf("RewritePortrait calls = %d, want 2", got)
	}
	if got := h.videos.count("Submit"); got != 4 {
		t.Errorf("video submissions = %d, want 4", got)
	}
	if !h.videos.submitted("Ending frame: shot 0 closing frame") {
		t.Error("last frame description did not reach the video prompt")
	}

	done, err := checkpoint.NewFileStageState(h.store).Done(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) == 0 {
		t.Error("stage state was not recorded")
	}
}

func TestNovel2VideoResume(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// 第一次运行：事件 1 的第二个场景始终失败
	failing := &fakeAgents{events: 2, scenes: 2, failScene: func(event, pos int) bool { return event == 1 && pos == 1 }}
	h1, p1 := newHarness(t, dir, failing)
	if err := p1.Novel2Video(ctx, novelText); err == nil {
		t.Fatal("first run should report the failed event")
	}
	if !exists(t, h1.store, resume.SceneKey(1, 0)) || exists(t, h1.store, resume.SceneKey(1, 1)) {
		t.Fatal("event 1 should stop after its first scene")
	}
	if !exists(t, h1.store, resume.NovelCharactersKey(0)) || exists(t, h1.store, resume.NovelCharactersKey(1)) {
		t.Fatal("fold should stop before the failed event")
	}
	if !exists(t, h1.store, resume.VideoKey(resume.ScriptDir(0, 1), 1)) {
		t.Fatal("event 0 should be carried through to videos")
	}

	// 第二次运行：只补齐缺失单元
	h2, p2 := newHarness(t, dir, &fakeAgents{events: 2, scenes: 2})
	if err := p2.Novel2Video(ctx, novelText); err != nil {
		t.Fatalf("second run: %v", err)
	}
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"CompressChunk", h2.agents.count("CompressChunk"), 0},
		{"NextEvent", h2.agents.count("NextEvent"), 0},
		{"NextScene", h2.agents.count("NextScene"), 1},
		{"MergeScenes", h2.agents.count("MergeScenes"), 1},
		{"MatchNovel", h2.agents.count("MatchNovel"), 1},
		{"Embed", h2.embed.count("Embed"), 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("second run %s calls = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
	var registry []entity.CharacterInNovel
	if err := h2.store.Load(ctx, resume.NovelCharactersKey(1), &registry); err != nil {
		t.Fatal(err)
	}
	if len(registry) != 2 || registry[0].ActiveEvents[1] == "" {
		t.Errorf("registry after event 1 = %+v", registry)
	}

	// 第三次运行：没有任何协作方调用
	h3, p3 := newHarness(t, dir, &fakeAgents{events: 2, scenes: 2})
	if err := p3.Novel2Video(ctx, novelText); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if n := h3.calls(); n != 0 {
		t.Errorf("third run made %d collaborator calls: agents=%v images=%v", n, h3.agents.calls, h3.images.calls)
	}
}

func TestIdea2Video(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	h, p := newHarness(t, dir, &fakeAgents{})
	if err := p.Idea2Video(ctx, "a girl guards a bamboo forest", "three shots"); err != nil {
		t.Fatalf("Idea2Video: %v", err)
	}
	enhanced, err := h.store.LoadBytes(ctx, resume.EnhancedKey)
	if err != nil || string(enhanced) != "planned script, enhanced" {
		t.Fatalf("enhanced script = %q, %v", enhanced, err)
	}
	for _, key := range []string{
		resume.ScriptCharactersKey(resume.IdeaScriptDir),
		resume.ScriptPortraitKey(resume.IdeaScriptDir, 0),
		resume.FrameKey(resume.IdeaScriptDir, 0, entity.FrameLast),
		resume.VideoKey(resume.IdeaScriptDir, 1),
	} {
		if !exists(t, h.store, key) {
			t.Errorf("missing %s", key)
		}
	}

	h2, p2 := newHarness(t, dir, &fakeAgents{})
	if err := p2.Idea2Video(ctx, "a girl guards a bamboo forest", "three shots"); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if n := h2.calls(); n != 0 {
		t.Errorf("rerun made %d collaborator calls", n)
	}
}

func TestVideoWorkerRetriesFailedJobs(t *testing.T) {
	store, err := checkpoint.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := VideoOptions{PollInterval: time.Millisecond, PollTimeout: time.Second, Attempts: 3}
	ctx := context.Background()

	tests := []struct {
		name        string
		failPolls   int
		wantSubmits int
		wantErr     bool
	}{
		{"first attempt succeeds", 0, 1, false},
		{"recovers on third attempt", 2, 3, false},
		{"all attempts fail", 3, 3, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeVideos{failPolls: tt.failPolls}
			var mirrored []string
			w := newVideoWorker(gen, store, opts, 1, func(_ context.Context, key string) {
				mirrored = append(mirrored, key)
			})
			key := fmt.Sprintf("videos/test/shot_%d.mp4", i)
			w.Submit(ctx, videoJob{Key: key, Prompt: "p", FirstFrame: "first.png"})

			err := w.Wait()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Wait() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := gen.count("Submit"); got != tt.wantSubmits {
				t.Errorf("submits = %d, want %d", got, tt.wantSubmits)
			}
			if ok, _ := store.Exists(ctx, key); ok == tt.wantErr {
				t.Errorf("video exists = %v", ok)
			}
			if !tt.wantErr && len(mirrored) != 1 {
				t.Errorf("mirrored = %v", mirrored)
			}
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}, Config{RunID: "r"}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}

func TestVideoPrompt(t *testing.T) {
	tests := []struct {
		name string
		shot entity.Shot
		want string
	}{
		{
			name: "first frame only",
			shot: entity.Shot{VisualContent: "rain on the eaves", Speaker: ptr("苏晴"), Line: ptr("走吧"), SoundEffect: ptr("thunder"), Duration: "3s"},
			want: "rain on the eaves\n苏晴: \"走吧\"\nSound: thunder\nDuration: 3s",
		},
		{
			name: "with last frame",
			shot: entity.Shot{VisualContent: "she turns away", Duration: "4s", LastFrame: ptr("the gate closes behind her")},
			want: "she turns away\nDuration: 4s\nEnding frame: the gate closes behind her",
		},
		{
			name: "empty last frame ignored",
			shot: entity.Shot{VisualContent: "still lake", LastFrame: ptr("")},
			want: "still lake",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := videoPrompt(tt.shot); got != tt.want {
				t.Errorf("videoPrompt = %q, want %q", got, tt.want)
			}
		})
	}
}

// existsCounter 统计每个键的存在性检查次数
type existsCounter struct {
	repository.CheckpointStore
	mu     sync.Mutex
	checks map[string]int
}

func (s *existsCounter) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	s.checks[key]++
	s.mu.Unlock()
	return s.CheckpointStore.Exists(ctx, key)
}

func TestFoldUsesStageState(t *testing.T) {
	tests := []struct {
		name      string
		markDone  bool
		wantFirst int
	}{
		{"completed fold checks only the last registry", true, 0},
		{"unrecorded fold scans every registry", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fs, err := checkpoint.NewFSStore(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			state := checkpoint.NewFileStageState(fs)
			events := make([]entity.Event, 3)
			results := make(map[int]*eventResult, 3)
			for i := range events {
				events[i] = entity.Event{Index: i}
				results[i] = &eventResult{event: events[i]}
				reg := []entity.CharacterInNovel{{Index: 0, IdentifierInNovel: fmt.Sprintf("after-%d", i)}}
				if err := fs.Save(ctx, resume.NovelCharactersKey(i), reg); err != nil {
					t.Fatal(err)
				}
			}
			if tt.markDone {
				if err := state.MarkDone(ctx, StageNovelFold); err != nil {
					t.Fatal(err)
				}
			}

			store := &existsCounter{CheckpointStore: fs, checks: map[string]int{}}
			p, err := New(Deps{Store: store, State: state, Agents: &fakeAgents{}, Images: &fakeImages{}}, Config{RunID: "run-test", Retry: fastRetry})
			if err != nil {
				t.Fatal(err)
			}
			registry, folded, err := p.foldNovel(ctx, events, results)
			if err != nil {
				t.Fatalf("foldNovel: %v", err)
			}
			if len(folded) != 3 || len(registry) != 1 || registry[0].IdentifierInNovel != "after-2" {
				t.Fatalf("folded = %v, registry = %+v", folded, registry)
			}
			if got := store.checks[resume.NovelCharactersKey(0)]; got != tt.wantFirst {
				t.Errorf("checks of the first registry = %d, want %d", got, tt.wantFirst)
			}
		})
	}
}
