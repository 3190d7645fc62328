// Package record holds the in-memory subtitle records a pipeline run mutates.
package record

import (
	"fmt"

	"github.com/MimeLyc/tiered-sub-translator/internal/subtitle"
)

// Status is the per-record pipeline state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusCheckingContext Status = "checking_context"
	StatusTranslating     Status = "translating"
	StatusDone            Status = "done"
	StatusError           Status = "error"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusPending,
	StatusCheckingContext,
	StatusTranslating,
	StatusDone,
	StatusError,
}

// transitions is the only set of moves a pipeline pass may make. Leaving done or
// error requires Store.BeginRun.
var transitions = map[Status][]Status{
	StatusPending:         {StatusCheckingContext},
	StatusCheckingContext: {StatusTranslating, StatusError},
	StatusTranslating:     {StatusTranslating, StatusDone, StatusError},
	StatusDone:            nil,
	StatusError:           nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the status ends a pass.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// CanTransition reports whether a record may move from s to next within one pass.
// Staying in the same non-terminal status is allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return !s.Terminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Tier selects one of the two remote model levels.
type Tier string

const (
	TierFast    Tier = "fast"
	TierQuality Tier = "quality"
)

func (t Tier) Valid() bool {
	return t == TierFast || t == TierQuality
}

// ParseTier accepts the tier names plus the original flash/pro labels.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "fast", "flash", "Flash":
		return TierFast, nil
	case "quality", "pro", "Pro":
		return TierQuality, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// Record is one subtitle cue and its pipeline state.
type Record struct {
	ID                int    `json:"id"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	OriginalText      string `json:"original_text"`
	ContextSuggestion string `json:"context_suggestion,omitempty"`
	IsContextApplied  bool   `json:"is_context_applied"`
	TranslatedText    string `json:"translated_text,omitempty"`
	ModelUsed         Tier   `json:"model_used,omitempty"`
	Status            Status `json:"status"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// InputText is the text sent for translation: the suggestion once applied,
// otherwise the original.
func (r Record) InputText() string {
	if r.IsContextApplied && r.ContextSuggestion != "" {
		return r.ContextSuggestion
	}
	return r.OriginalText
}

// Flagged reports whether the record carries a pending or applied suggestion.
func (r Record) Flagged() bool {
	return r.ContextSuggestion != "" || r.IsContextApplied
}

// validate checks the per-record invariants.
func (r Record) validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("record %d: unknown status %q", r.ID, r.Status)
	}
	if (r.TranslatedText != "") != (r.Status == StatusDone) {
		return fmt.Errorf("record %d: translated text must be present iff status is done", r.ID)
	}
	if r.ErrorMessage != "" && r.Status != StatusError {
		return fmt.Errorf("record %d: error message set on status %s", r.ID, r.Status)
	}
	if r.ModelUsed != "" && !r.ModelUsed.Valid() {
		return fmt.Errorf("record %d: unknown tier %q", r.ID, r.ModelUsed)
	}
	return nil
}

// FromCues builds pending records from parsed subtitle cues.
func FromCues(cues []subtitle.Cue) []Record {
	ret := make([]Record, 0, len(cues))
	for _, cue := range cues {
		ret = append(ret, Record{
			ID:           cue.Index,
			StartTime:    cue.StartTime,
			EndTime:      cue.EndTime,
			OriginalText: cue.Text,
			Status:       StatusPending,
		})
	}
	return ret
}

// ToCues converts records back to cues for serialization.
func ToCues(records []Record) []subtitle.Cue {
	ret := make([]subtitle.Cue, 0, len(records))
	for _, r := range records {
		ret = append(ret, subtitle.Cue{
			Index:          r.ID,
			StartTime:      r.StartTime,
			EndTime:        r.EndTime,
			Text:           r.OriginalText,
			TranslatedText: r.TranslatedText,
		})
	}
	return ret
}
