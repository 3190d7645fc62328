package subtitle

import (
	"fmt"
	"os"
	"strings"
)

// ReadFile loads and parses an SRT file from disk.
func ReadFile(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("subtitle file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	file := Parse(string(data))
	file.Path = path
	return file, nil
}
