// Package chain 将提示词模板、ChatModel 与输出解析编排为 Eino 链
package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "novel2video/internal/domain/service"
	wfnode "novel2video/internal/workflow/node"
	workflowport "novel2video/internal/workflow/port"
	workflowprompt "novel2video/internal/workflow/prompt"
	"novel2video/pkg/logger"
)

// Input 一次调用的模板变量与附带图片（本地路径）
type Input struct {
	Vars   map[string]any
	Images []string
}

type generateState struct {
	In       *Input
	Messages []*schema.Message
}

// generator 模板 -> LLM 的公共链，Text 与 Structured 共用
type generator struct {
	factory  workflowport.ChatModelFactory
	prompts  *workflowprompt.Registry
	id       workflowprompt.PromptID
	provider string
	// responseFormat 非空时请求 json_schema 输出
	responseFormat map[string]any

	chainOnce sync.Once
	chain     compose.Runnable[*Input, *schema.Message]
	chainErr  error
}

func (g *generator) workflow() string { return string(g.id) }

func (g *generator) generate(ctx context.Context, in *Input) (string, error) {
	if g == nil || g.factory == nil {
		return "", fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		in = &Input{}
	}
	g.chainOnce.Do(func() {
		g.chain, g.chainErr = g.buildChain(context.Background())
	})
	if g.chainErr != nil {
		return "", g.chainErr
	}

	ctx = llmctx.WithWorkflowProvider(ctx, g.workflow(), g.provider)
	msg, err := g.chain.Invoke(ctx, in)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (g *generator) buildChain(ctx context.Context) (compose.Runnable[*Input, *schema.Message], error) {
	name := g.workflow()
	chain := compose.NewChain[*Input, *schema.Message]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *Input) (*generateState, error) {
			msgs, err := g.formatMessages(ctx, in)
			if err != nil {
				return nil, err
			}
			return &generateState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName(name+".template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *generateState) (*schema.Message, error) {
			chatModel, err := g.factory.Get(ctx, g.provider)
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, g.modelOptions(true)...)
			if err != nil && g.responseFormat != nil && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"workflow", name,
					"provider", g.provider,
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, g.modelOptions(false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
				return nil, fmt.Errorf("empty llm response")
			}
			return outMsg, nil
		}),
		compose.WithNodeName(name+".llm"),
	)

	return chain.Compile(ctx)
}

func (g *generator) formatMessages(ctx context.Context, in *Input) ([]*schema.Message, error) {
	tpl, err := g.prompts.ChatTemplate(g.id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, in.Vars)
	if err != nil {
		return nil, err
	}
	if len(in.Images) == 0 || len(msgs) == 0 {
		return msgs, nil
	}

	// 图片附在最后一条用户消息之后
	last := msgs[len(msgs)-1]
	parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: last.Content}}
	for _, p := range in.Images {
		url, err := wfnode.ImageDataURL(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: url},
		})
	}
	last.Content = ""
	last.MultiContent = parts
	return msgs, nil
}

func (g *generator) modelOptions(enableSchema bool) []model.Option {
	if !enableSchema || g.responseFormat == nil {
		return nil
	}
	return []model.Option{
		openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   g.workflow(),
					"strict": false,
					"schema": g.responseFormat,
				},
			},
		}),
	}
}
