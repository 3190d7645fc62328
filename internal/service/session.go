package service

import (
	"sync"

	"github.com/MimeLyc/tiered-sub-translator/internal/eventlog"
	"github.com/MimeLyc/tiered-sub-translator/internal/pipeline"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
)

// session is the in-memory state of one job: its records and its log.
// Reruns share the records of the job they were started from; origin is the
// job that loaded them.
type session struct {
	jobID    string
	origin   string
	rerunOf  string
	fileName string
	skipped  int
	records  *record.Store
	log      *eventlog.Sink

	mu         sync.RWMutex
	sourceLang string
	summary    *pipeline.Summary
}

func (s *session) setResult(sourceLang string, summary *pipeline.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sourceLang != "" {
		s.sourceLang = sourceLang
	}
	if summary != nil {
		s.summary = summary
	}
}

func (s *session) result() (string, *pipeline.Summary) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourceLang, s.summary
}

// complete closes the log stream unless the pipeline already did.
func (s *session) complete() {
	if _, done := s.log.Done(); done {
		return
	}
	_, summary := s.result()
	if summary == nil {
		s.log.Complete(nil)
		return
	}
	s.log.Complete(summary)
}
