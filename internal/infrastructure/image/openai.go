package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"novel2video/internal/config"
	"novel2video/internal/domain/service"
)

const defaultOpenAIModel = "gpt-image-1"

// OpenAIGenerator 基于 OpenAI Images API；带参考图时走 edits 接口
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

var _ service.ImageGenerator = (*OpenAIGenerator)(nil)

func NewOpenAIGenerator(cfg *config.ImageConfig) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := openai.NewClient(opts...)
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIGenerator{client: &client, model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, refs []string, size string) ([]byte, error) {
	sz, err := openAISize(size)
	if err != nil {
		return nil, err
	}

	var resp *openai.ImagesResponse
	if len(refs) == 0 {
		resp, err = g.client.Images.Generate(ctx, openai.ImageGenerateParams{
			Prompt: prompt,
			Model:  openai.ImageModel(g.model),
			Size:   openai.ImageGenerateParamsSize(sz),
			N:      openai.Int(1),
		})
	} else {
		files := make([]io.Reader, 0, len(refs))
		for _, ref := range refs {
			f, err := os.Open(ref)
			if err != nil {
				return nil, fmt.Errorf("open reference image: %w", err)
			}
			defer f.Close()
			files = append(files, openai.File(f, filepath.Base(ref), "image/png"))
		}
		resp, err = g.client.Images.Edit(ctx, openai.ImageEditParams{
			Image:  openai.ImageEditParamsImageUnion{OfFileArray: files},
			Prompt: prompt,
			Model:  openai.ImageModel(g.model),
			Size:   openai.ImageEditParamsSize(sz),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("openai image request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai image response has no data")
	}

	img := resp.Data[0]
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return data, nil
	}
	if img.URL != "" {
		return fetch(ctx, img.URL)
	}
	return nil, fmt.Errorf("openai image response has neither b64_json nor url")
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status=%d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
