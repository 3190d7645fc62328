package jobs

import (
	"time"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   Payload
}

// Payload describes the file a job translates. Settings is the run snapshot
// taken at submission.
type Payload struct {
	FileName   string           `json:"file_name"`
	SourcePath string           `json:"source_path,omitempty"`
	OutputPath string           `json:"output_path,omitempty"`
	Settings   config.RunConfig `json:"settings"`
}

type Job struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	DedupeKey string    `json:"dedupe_key,omitempty"`
	Payload   Payload   `json:"payload"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
