package generator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// It also serves OpenAI-compatible endpoints (DeepSeek, Anthropic) via BaseURL.
type OpenAILLM struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// SchemaMode is true when the endpoint honours json_schema response formats.
	// Otherwise the schema is inlined into the system prompt and json_object is requested.
	SchemaMode bool

	client openai.Client
}

// defaultBaseURLs lists compatible endpoints for providers that are not OpenAI.
var defaultBaseURLs = map[string]string{
	"anthropic": "https://api.anthropic.com/v1/",
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key missing; set LLM_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	// Generative calls are not retried: a failed or malformed completion is fatal to the run.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Provider]
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAILLM{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		SchemaMode:  cfg.Provider == "" || cfg.Provider == "openai",
		client:      openai.NewClient(opts...),
	}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return o.chat(ctx, o.params(prompt))
}

func (o *OpenAILLM) CompleteStructured(ctx context.Context, prompt Prompt, contract Contract) ([]byte, error) {
	if o.SchemaMode {
		params := o.params(prompt)
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        contract.Name,
					Description: openai.String(contract.Description),
					Schema:      contract.Schema,
					Strict:      openai.Bool(true),
				},
			},
		}
		out, err := o.chat(ctx, params)
		return []byte(out), err
	}

	schema, err := json.MarshalIndent(contract.Schema, "", "  ")
	if err != nil {
		return nil, err
	}
	prompt.System = strings.TrimSpace(prompt.System) +
		"\n\nRespond with a single JSON object named " + contract.Name +
		" that conforms to this JSON schema. Output JSON only.\n" + string(schema)
	params := o.params(prompt)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
	}
	out, err := o.chat(ctx, params)
	return []byte(out), err
}

func (o *OpenAILLM) params(prompt Prompt) openai.ChatCompletionNewParams {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.System),
	}
	for _, h := range prompt.History {
		switch h.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(h.Content))
		default:
			msgs = append(msgs, openai.UserMessage(h.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.MaxTokens))
	}
	if o.Temperature > 0 {
		params.Temperature = openai.Float(o.Temperature)
	}
	return params
}

func (o *OpenAILLM) chat(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
