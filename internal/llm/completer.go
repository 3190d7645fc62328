package llm

import (
	"context"
	"fmt"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Completer sends one prompt and returns the raw text of the answer.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New builds the Completer for config.Provider. An empty provider means openai.
func New(config *Config) (Completer, error) {
	var (
		c   Completer
		err error
	)
	switch config.Provider {
	case "", ProviderOpenAI:
		c, err = NewClient(config)
	case ProviderGemini:
		c, err = NewGeminiClient(config)
	case ProviderOllama:
		c, err = NewOllamaClient(config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
