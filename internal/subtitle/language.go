package subtitle

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DetectLanguage returns the language most cues are written in, or
// language.Und when nothing can be detected.
func DetectLanguage(cues []Cue) language.Tag {
	if len(cues) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, cue := range cues {
		code := whatlanggo.DetectLang(cue.Text).Iso6391()
		if code == "" {
			continue
		}
		counts[code]++
	}

	var top string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < top) {
			top = lang
			topCount = count
		}
	}
	if top == "" {
		return language.Und
	}

	tag, err := language.Parse(top)
	if err != nil {
		return language.Und
	}
	return tag
}

// LanguageName is the English display name of tag, e.g. "Japanese".
func LanguageName(tag language.Tag) string {
	if tag == language.Und {
		return ""
	}
	return display.English.Tags().Name(tag)
}
