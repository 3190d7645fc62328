package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
)

const contextSystemPrompt = "You are a helpful AI editor detecting context errors."

var suggestionSchema = json.RawMessage(`{
  "type": "ARRAY",
  "items": {
    "type": "OBJECT",
    "properties": {
      "id": {"type": "INTEGER"},
      "suggestion": {"type": "STRING", "description": "The corrected or context-clarified version of the source text."}
    },
    "required": ["id", "suggestion"]
  }
}`)

var translationSchema = json.RawMessage(`{
  "type": "ARRAY",
  "items": {
    "type": "OBJECT",
    "properties": {
      "id": {"type": "INTEGER"},
      "translatedText": {"type": "STRING"}
    },
    "required": ["id", "translatedText"]
  }
}`)

type inputItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// encodeItems serializes records as the [{id, text}] array sent to the model.
// The context check sees the original text; translation sees InputText.
func encodeItems(items []record.Record, original bool) (string, error) {
	in := make([]inputItem, 0, len(items))
	for _, item := range items {
		text := item.InputText()
		if original {
			text = item.OriginalText
		}
		in = append(in, inputItem{ID: item.ID, Text: text})
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to encode items: %w", err)
	}
	return string(data), nil
}

func buildContextPrompt(cfg config.RunConfig, payload string) string {
	var prompt strings.Builder
	prompt.WriteString("You are a professional subtitle context editor specializing in the genre: " + cfg.Genre + ".\n")
	prompt.WriteString("Analyze the following list of subtitle lines (ID and Text).\n\n")
	prompt.WriteString("Task:\n")
	prompt.WriteString("1. Identify words or phrases that are ambiguous, homonyms, or culturally inappropriate for the '" + cfg.Genre + "' genre.\n")
	prompt.WriteString("2. Specifically look for mistranslations common in this genre (e.g., 'crane' as bird vs machine, 'cultivation' in farming vs spiritual).\n")
	prompt.WriteString("3. If a line is potentially ambiguous or wrong in context, provide a rewritten text that clarifies the meaning for the translator.\n")
	prompt.WriteString("4. ONLY return items that need correction. If a line is fine, do not include it in the output.\n\n")
	prompt.WriteString("Output a JSON array of objects with the fields \"id\" (integer) and \"suggestion\" (string).\n\n")
	prompt.WriteString("Input Data:\n")
	prompt.WriteString(payload)
	return prompt.String()
}

func buildTranslateSystemPrompt(cfg config.RunConfig) string {
	var prompt strings.Builder
	prompt.WriteString("You are a professional subtitle translator.\n")
	prompt.WriteString("Source Language: " + cfg.SourceLang + "\n")
	prompt.WriteString("Target Language: " + cfg.TargetLang + "\n")
	prompt.WriteString("Genre: " + cfg.Genre + "\n")
	if strings.TrimSpace(cfg.CustomPrompt) != "" {
		prompt.WriteString("User Instructions: " + cfg.CustomPrompt + "\n")
	}
	prompt.WriteString("\nRules:\n")
	prompt.WriteString("1. Maintain the tone and style of the specified Genre.\n")
	prompt.WriteString("2. Keep translations concise to fit subtitle limits.\n")
	prompt.WriteString("3. Respect the context of the lines provided.\n")
	prompt.WriteString("4. Output strictly valid JSON: an array of objects with the fields \"id\" (integer) and \"translatedText\" (string), one per input line.\n")
	return prompt.String()
}

func buildTranslatePrompt(payload string) string {
	return "Translate the following array of subtitles:\n" + payload
}
