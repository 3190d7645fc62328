package subtitle

// Cue is one subtitle block. Times are kept as the HH:MM:SS,mmm strings found
// in the file.
type Cue struct {
	Index          int
	StartTime      string
	EndTime        string
	Text           string
	TranslatedText string
}

// File is a parsed SRT document.
type File struct {
	Cues []Cue
	// Skipped counts blocks that did not parse.
	Skipped int
	Path    string
	Format  string
}
