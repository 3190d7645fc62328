package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyResponse = errors.New("empty model response")

// extractArray finds the JSON array in a model answer. It accepts a bare
// array, an object holding a single array field, and either of those inside
// markdown code fences.
func extractArray(content string) ([]json.RawMessage, error) {
	content = stripFences(strings.TrimSpace(content))
	if content == "" {
		return nil, ErrEmptyResponse
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(content), &arr); err == nil {
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		for _, key := range []string{"items", "results", "data", "translations", "suggestions"} {
			if raw, ok := obj[key]; ok {
				if err := json.Unmarshal(raw, &arr); err == nil {
					return arr, nil
				}
			}
		}
		for _, raw := range obj {
			if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
				if err := json.Unmarshal(trimmed, &arr); err == nil {
					return arr, nil
				}
			}
		}
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &arr); err == nil {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("unparsable model response: %.200s", content)
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type rawEntry struct {
	ID             *int   `json:"id"`
	Suggestion     string `json:"suggestion"`
	RewrittenText  string `json:"rewritten_text"`
	TranslatedText string `json:"translatedText"`
	Translation    string `json:"translation"`
	Text           string `json:"text"`
}

type entry struct {
	ID   int
	Text string
}

// decodeEntries keeps the first entry per id among the requested ids. Entries
// without an id or with empty text are dropped.
func decodeEntries(arr []json.RawMessage, requested map[int]struct{}, text func(rawEntry) string) []entry {
	seen := make(map[int]struct{}, len(arr))
	ret := make([]entry, 0, len(arr))

	for _, raw := range arr {
		var e rawEntry
		if err := json.Unmarshal(raw, &e); err != nil || e.ID == nil {
			continue
		}
		id := *e.ID
		if _, ok := requested[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		t := strings.TrimSpace(text(e))
		if t == "" {
			continue
		}
		seen[id] = struct{}{}
		ret = append(ret, entry{ID: id, Text: t})
	}
	return ret
}

func parseSuggestions(content string, requested map[int]struct{}) ([]Suggestion, error) {
	arr, err := extractArray(content)
	if err != nil {
		return nil, err
	}
	entries := decodeEntries(arr, requested, func(e rawEntry) string {
		if e.Suggestion != "" {
			return e.Suggestion
		}
		return e.RewrittenText
	})
	ret := make([]Suggestion, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, Suggestion{ID: e.ID, Suggestion: e.Text})
	}
	return ret, nil
}

func parseTranslations(content string, requested map[int]struct{}) ([]Translation, error) {
	arr, err := extractArray(content)
	if err != nil {
		return nil, err
	}
	entries := decodeEntries(arr, requested, func(e rawEntry) string {
		switch {
		case e.TranslatedText != "":
			return e.TranslatedText
		case e.Translation != "":
			return e.Translation
		default:
			return e.Text
		}
	})
	ret := make([]Translation, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, Translation{ID: e.ID, TranslatedText: e.Text})
	}
	return ret, nil
}
