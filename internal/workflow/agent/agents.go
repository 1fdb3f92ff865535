// Package agent 基于 Eino 链实现流水线的各个 LLM 协作方
package agent

import (
	"novel2video/internal/application/selection"
	"novel2video/internal/domain/entity"
	"novel2video/internal/workflow/chain"
	wfmodel "novel2video/internal/workflow/model"
	workflowport "novel2video/internal/workflow/port"
	workflowprompt "novel2video/internal/workflow/prompt"
)

// Agents LLM 协作方集合
type Agents struct {
	compressChunk *chain.Text
	aggregate     *chain.Text
	rewrite       *chain.Text
	plan          *chain.Text
	enhance       *chain.Text

	events      *chain.Structured[entity.Event]
	scenes      *chain.Structured[entity.Scene]
	shots       *chain.Structured[entity.Shot]
	mergeScenes *chain.Structured[wfmodel.SceneMergeOutput]
	mergeNovel  *chain.Structured[wfmodel.NovelMergeOutput]
	scriptChars *chain.Structured[wfmodel.ScriptCharactersOutput]
	references  *chain.Structured[entity.ReferenceSelection]
	judge       *chain.Structured[selection.Judgment]
}

// New 创建协作方集合，routing 可按工作流指定提供方
func New(factory workflowport.ChatModelFactory, prompts *workflowprompt.Registry, routing workflowport.Routing) *Agents {
	if prompts == nil {
		prompts = workflowprompt.NewRegistry()
	}
	text := func(id workflowprompt.PromptID) *chain.Text {
		return chain.NewText(factory, prompts, id, routing.Provider(string(id)))
	}
	p := func(id workflowprompt.PromptID) string { return routing.Provider(string(id)) }

	return &Agents{
		compressChunk: text(workflowprompt.PromptCompressChunk),
		aggregate:     text(workflowprompt.PromptAggregateChunks),
		rewrite:       text(workflowprompt.PromptRewritePortrait),
		plan:          text(workflowprompt.PromptPlanScript),
		enhance:       text(workflowprompt.PromptEnhanceScript),

		events:      chain.NewStructured[entity.Event](factory, prompts, workflowprompt.PromptExtractEvent, p(workflowprompt.PromptExtractEvent)),
		scenes:      chain.NewStructured[entity.Scene](factory, prompts, workflowprompt.PromptExtractScene, p(workflowprompt.PromptExtractScene)),
		shots:       chain.NewStructured[entity.Shot](factory, prompts, workflowprompt.PromptExtractShot, p(workflowprompt.PromptExtractShot)),
		mergeScenes: chain.NewStructured[wfmodel.SceneMergeOutput](factory, prompts, workflowprompt.PromptMergeScenes, p(workflowprompt.PromptMergeScenes)),
		mergeNovel:  chain.NewStructured[wfmodel.NovelMergeOutput](factory, prompts, workflowprompt.PromptMergeNovel, p(workflowprompt.PromptMergeNovel)),
		scriptChars: chain.NewStructured[wfmodel.ScriptCharactersOutput](factory, prompts, workflowprompt.PromptScriptCharacters, p(workflowprompt.PromptScriptCharacters)),
		references:  chain.NewStructured[entity.ReferenceSelection](factory, prompts, workflowprompt.PromptSelectReferences, p(workflowprompt.PromptSelectReferences)),
		judge:       chain.NewStructured[selection.Judgment](factory, prompts, workflowprompt.PromptSelectBestImage, p(workflowprompt.PromptSelectBestImage)),
	}
}
