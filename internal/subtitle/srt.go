package subtitle

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	timecodeRe  = regexp.MustCompile(`(\d{2}:\d{2}:\d{2},\d{3})\s-->\s(\d{2}:\d{2}:\d{2},\d{3})`)
	blockSepRe  = regexp.MustCompile(`\n\s*\n`)
	lineEndRepl = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Parse reads SRT content. Blocks without a positive numeric id, a timecode
// line or any text are skipped and counted in File.Skipped.
func Parse(content string) *File {
	content = lineEndRepl.Replace(content)
	content = strings.TrimPrefix(content, "\ufeff")

	file := &File{Format: "SRT"}
	for _, block := range blockSepRe.Split(strings.TrimSpace(content), -1) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		cue, ok := parseBlock(block)
		if !ok {
			file.Skipped++
			continue
		}
		file.Cues = append(file.Cues, cue)
	}
	return file
}

func parseBlock(block string) (Cue, bool) {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	if len(lines) < 3 {
		return Cue{}, false
	}
	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || index < 1 {
		return Cue{}, false
	}
	m := timecodeRe.FindStringSubmatch(lines[1])
	if m == nil {
		return Cue{}, false
	}

	text := make([]string, 0, len(lines)-2)
	for _, l := range lines[2:] {
		text = append(text, strings.TrimRight(l, " \t"))
	}
	joined := strings.Join(text, "\n")
	if strings.TrimSpace(joined) == "" {
		return Cue{}, false
	}
	return Cue{
		Index:     index,
		StartTime: m[1],
		EndTime:   m[2],
		Text:      joined,
	}, true
}

// Render serializes cues back to SRT, preferring the translated text of each
// cue when it has one.
func Render(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		text := c.TranslatedText
		if text == "" {
			text = c.Text
		}
		b.WriteString(strconv.Itoa(c.Index))
		b.WriteString("\n")
		b.WriteString(c.StartTime)
		b.WriteString(" --> ")
		b.WriteString(c.EndTime)
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
