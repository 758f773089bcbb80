package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Generator turns a prompt into raw image bytes.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Settings configures the OpenAI images endpoint.
type Settings struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIGenerator calls the images API once per request.
type OpenAIGenerator struct {
	Model string

	client     openai.Client
	httpClient *http.Client
}

func NewOpenAIGenerator(cfg Settings) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("image api key missing; set IMAGE_API_KEY")
	}
	model := cfg.Model
	if model == "" {
		model = openai.ImageModelGPTImage1
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		Model:      model,
		client:     openai.NewClient(opts...),
		httpClient: http.DefaultClient,
	}, nil
}

// Generate returns the first image of the response. An empty response is
// (nil, nil).
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  g.Model,
		N:      openai.Int(1),
	}
	if strings.HasPrefix(g.Model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
		params.Size = openai.ImageGenerateParamsSize1792x1024
	} else {
		params.Size = openai.ImageGenerateParamsSize1536x1024
	}

	resp, err := g.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, nil
	}
	img := resp.Data[0]
	switch {
	case img.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		return data, nil
	case img.URL != "":
		return g.download(ctx, img.URL)
	default:
		return nil, nil
	}
}

func (g *OpenAIGenerator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}
