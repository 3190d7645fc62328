package translator

import (
	"context"
	"fmt"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
)

// Suggestion is a context-clarified rewrite of one record's source text.
type Suggestion struct {
	ID         int    `json:"id"`
	Suggestion string `json:"suggestion"`
}

// Translation is the translated text of one record.
type Translation struct {
	ID             int    `json:"id"`
	TranslatedText string `json:"translatedText"`
}

// Client is the remote model boundary used by the pipeline. Results only carry
// entries for ids that were sent.
type Client interface {
	CheckContext(ctx context.Context, items []record.Record, cfg config.RunConfig) ([]Suggestion, error)
	Translate(ctx context.Context, items []record.Record, cfg config.RunConfig, tier record.Tier) ([]Translation, error)
}

// TierModels maps each tier to a provider model id.
type TierModels struct {
	Fast    string `json:"fast"`
	Quality string `json:"quality"`
}

func (m TierModels) Validate() error {
	if m.Fast == "" {
		return fmt.Errorf("fast tier model is required")
	}
	if m.Quality == "" {
		return fmt.Errorf("quality tier model is required")
	}
	return nil
}

// Model returns the model id for tier.
func (m TierModels) Model(tier record.Tier) (string, error) {
	switch tier {
	case record.TierFast:
		return m.Fast, nil
	case record.TierQuality:
		return m.Quality, nil
	default:
		return "", fmt.Errorf("unknown tier %q", tier)
	}
}
