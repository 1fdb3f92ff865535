package image

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"google.golang.org/genai"

	"novel2video/internal/config"
	"novel2video/internal/domain/service"
)

const defaultGeminiModel = "gemini-2.5-flash-image"

// GeminiGenerator 基于 Gemini 原生图像输出，参考图以内联数据随请求发送
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

var _ service.ImageGenerator = (*GeminiGenerator)(nil)

func NewGeminiGenerator(ctx context.Context, cfg *config.ImageConfig) (*GeminiGenerator, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, refs []string, size string) ([]byte, error) {
	ratio, err := aspectRatio(size)
	if err != nil {
		return nil, err
	}

	parts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read reference image: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, http.DetectContentType(data)))
	}
	parts = append(parts, genai.NewPartFromText(fmt.Sprintf("%s\n\nAspect ratio: %s.", prompt, ratio)))

	result, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini response contains no image")
}
