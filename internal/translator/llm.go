package translator

import (
	"context"
	"fmt"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/llm"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

const (
	contextTemperature   = 0.2
	translateTemperature = 0.4
)

// LLMClient implements Client on top of an llm.Completer.
type LLMClient struct {
	completer llm.Completer
	models    TierModels
}

func NewLLMClient(completer llm.Completer, models TierModels) (*LLMClient, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if err := models.Validate(); err != nil {
		return nil, err
	}
	return &LLMClient{completer: completer, models: models}, nil
}

// CheckContext asks the quality model which lines are ambiguous for the genre.
// The quality model is used regardless of how translation is routed.
func (c *LLMClient) CheckContext(ctx context.Context, items []record.Record, cfg config.RunConfig) ([]Suggestion, error) {
	if len(items) == 0 {
		return nil, nil
	}
	payload, err := encodeItems(items, true)
	if err != nil {
		return nil, err
	}

	content, err := c.completer.Complete(ctx, llm.Request{
		Model:       c.models.Quality,
		System:      contextSystemPrompt,
		User:        buildContextPrompt(cfg, payload),
		Temperature: contextTemperature,
		JSON:        true,
		Schema:      suggestionSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("context check failed: %w", err)
	}

	suggestions, err := parseSuggestions(content, requestedIDs(items))
	if err != nil {
		return nil, fmt.Errorf("context check failed: %w", err)
	}
	log.Debug("context check flagged %d of %d lines", len(suggestions), len(items))
	return suggestions, nil
}

// Translate sends the items' input text to the model for tier.
func (c *LLMClient) Translate(ctx context.Context, items []record.Record, cfg config.RunConfig, tier record.Tier) ([]Translation, error) {
	if len(items) == 0 {
		return nil, nil
	}
	model, err := c.models.Model(tier)
	if err != nil {
		return nil, err
	}
	payload, err := encodeItems(items, false)
	if err != nil {
		return nil, err
	}

	content, err := c.completer.Complete(ctx, llm.Request{
		Model:       model,
		System:      buildTranslateSystemPrompt(cfg),
		User:        buildTranslatePrompt(payload),
		Temperature: translateTemperature,
		JSON:        true,
		Schema:      translationSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("translation (%s) failed: %w", model, err)
	}

	translations, err := parseTranslations(content, requestedIDs(items))
	if err != nil {
		return nil, fmt.Errorf("translation (%s) failed: %w", model, err)
	}
	if len(translations) != len(items) {
		log.Warn("model %s returned %d of %d translations", model, len(translations), len(items))
	}
	return translations, nil
}

func requestedIDs(items []record.Record) map[int]struct{} {
	ret := make(map[int]struct{}, len(items))
	for _, item := range items {
		ret[item.ID] = struct{}{}
	}
	return ret
}
