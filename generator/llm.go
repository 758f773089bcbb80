package generator

import "context"

// LLMClient abstracts the generative text service so it can be swapped or mocked.
type LLMClient interface {
	// Complete returns free-form text for the prompt.
	Complete(ctx context.Context, prompt Prompt) (string, error)
	// CompleteStructured returns raw JSON that should conform to contract.
	// Callers validate the result; implementations only transport it.
	CompleteStructured(ctx context.Context, prompt Prompt, contract Contract) ([]byte, error)
}

// Contract names a structured-output shape and its JSON schema.
type Contract struct {
	Name        string
	Description string
	Schema      map[string]any
}

// LLMSettings is the provider-neutral configuration handed to implementations.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}
