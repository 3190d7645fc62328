// Package eventlog keeps the append-only log of a pipeline run and fans its
// events out to streaming subscribers.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is one log line. Entries are never changed once added.
type Entry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
	Severity  Severity    `json:"severity"`
	Model     record.Tier `json:"model,omitempty"`
}

// Progress is emitted after every processed chunk.
type Progress struct {
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	Batch     int     `json:"batch"`
	Batches   int     `json:"batches"`
}

type EventKind string

const (
	EventLog      EventKind = "log"
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
)

// Event is what subscribers receive. Exactly one of Entry, Progress or Summary
// is set, matching Kind.
type Event struct {
	Kind     EventKind `json:"kind"`
	Entry    *Entry    `json:"entry,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Summary  any       `json:"summary,omitempty"`
}

// Sink collects entries for one run.
type Sink struct {
	mu      sync.RWMutex
	entries []Entry
	latest  *Progress
	summary any
	done    bool
	subs    map[int]chan Event
	nextSub int
	now     func() time.Time
	mirror  bool
	prefix  string
	record  func(Entry)
}

type Option func(*Sink)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// WithoutMirror stops entries from being written to the process logger.
func WithoutMirror() Option {
	return func(s *Sink) { s.mirror = false }
}

// WithRecorder calls fn with every entry after it is appended.
func WithRecorder(fn func(Entry)) Option {
	return func(s *Sink) { s.record = fn }
}

// WithPrefix prepends prefix to mirrored log lines, e.g. a job id.
func WithPrefix(prefix string) Option {
	return func(s *Sink) { s.prefix = prefix }
}

func New(opts ...Option) *Sink {
	s := &Sink{
		subs:   make(map[int]chan Event),
		now:    time.Now,
		mirror: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends an entry with a fresh id and the current time.
func (s *Sink) Add(message string, severity Severity, tier record.Tier) Entry {
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Message:   message,
		Severity:  severity,
		Model:     tier,
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.broadcast(Event{Kind: EventLog, Entry: &entry})
	s.mu.Unlock()

	if s.mirror {
		s.mirrorEntry(entry)
	}
	if s.record != nil {
		s.record(entry)
	}
	return entry
}

func (s *Sink) Info(message string)    { s.Add(message, SeverityInfo, "") }
func (s *Sink) Warning(message string) { s.Add(message, SeverityWarning, "") }

func (s *Sink) mirrorEntry(e Entry) {
	msg := e.Message
	if s.prefix != "" {
		msg = s.prefix + " " + msg
	}
	if e.Model != "" {
		msg += " (" + string(e.Model) + ")"
	}
	switch e.Severity {
	case SeverityError:
		log.Error("%s", msg)
	case SeverityWarning:
		log.Warn("%s", msg)
	default:
		log.Info("%s", msg)
	}
}

// Entries returns a copy of every entry in append order.
func (s *Sink) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Sink) Progress(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &p
	s.broadcast(Event{Kind: EventProgress, Progress: &p})
}

// Latest is the most recent progress, if any was reported.
func (s *Sink) Latest() (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Progress{}, false
	}
	return *s.latest, true
}

// Complete publishes the run summary and closes every subscription.
func (s *Sink) Complete(summary any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	s.done = true
	s.broadcast(Event{Kind: EventComplete, Summary: summary})
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// Done reports whether Complete was called, with the summary it received.
func (s *Sink) Done() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary, s.done
}

// Subscribe returns a channel of future events and a function that ends the
// subscription. A subscriber that does not keep up loses events; the full
// history stays available through Entries. After Complete the channel is
// closed immediately.
func (s *Sink) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				close(sub)
				delete(s.subs, id)
			}
		})
	}
}

// broadcast must be called with s.mu held.
func (s *Sink) broadcast(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
