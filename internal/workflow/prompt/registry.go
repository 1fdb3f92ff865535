// Package prompt 管理内嵌提示词模板
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptCompressChunk    PromptID = "compress_chunk"
	PromptAggregateChunks  PromptID = "aggregate_chunks"
	PromptExtractEvent     PromptID = "extract_event"
	PromptExtractScene     PromptID = "extract_scene"
	PromptExtractShot      PromptID = "extract_shot"
	PromptMergeScenes      PromptID = "merge_scenes"
	PromptMergeNovel       PromptID = "merge_novel"
	PromptScriptCharacters PromptID = "extract_script_characters"
	PromptSelectReferences PromptID = "select_references"
	PromptSelectBestImage  PromptID = "select_best_image"
	PromptRewritePortrait  PromptID = "rewrite_portrait"
	PromptPlanScript       PromptID = "plan_script"
	PromptEnhanceScript    PromptID = "enhance_script"
)

var known = map[PromptID]struct{}{
	PromptCompressChunk:    {},
	PromptAggregateChunks:  {},
	PromptExtractEvent:     {},
	PromptExtractScene:     {},
	PromptExtractShot:      {},
	PromptMergeScenes:      {},
	PromptMergeNovel:       {},
	PromptScriptCharacters: {},
	PromptSelectReferences: {},
	PromptSelectBestImage:  {},
	PromptRewritePortrait:  {},
	PromptPlanScript:       {},
	PromptEnhanceScript:    {},
}

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

// ChatTemplate 返回 system + user 两段式模板，变量使用 {name} 占位
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	system, user, err := load(id)
	if err != nil {
		return nil, err
	}
	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

func load(id PromptID) (system string, user string, err error) {
	if _, ok := known[id]; !ok {
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
	system, err = readEmbeddedText("templates/" + string(id) + ".system.txt")
	if err != nil {
		return "", "", err
	}
	user, err = readEmbeddedText("templates/" + string(id) + ".user.txt")
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
