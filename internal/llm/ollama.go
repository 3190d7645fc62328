package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaClient runs prompts against a local Ollama server through langchaingo.
type OllamaClient struct {
	llm       llms.Model
	maxTokens int
}

func NewOllamaClient(config *Config) (*OllamaClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	model, err := ollama.New(
		ollama.WithServerURL(config.APIURL),
		ollama.WithModel(config.DefaultModel),
		ollama.WithHTTPClient(&http.Client{Timeout: time.Duration(config.Timeout) * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &OllamaClient{llm: model, maxTokens: config.MaxTokens}, nil
}

// Complete implements Completer.
func (o *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.User))

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.maxTokens
	}
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(maxTokens),
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	response, err := o.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if len(response.Choices) == 0 || response.Choices[0].Content == "" {
		return "", ErrEmptyContent
	}
	return response.Choices[0].Content, nil
}
