// Package service ties uploaded or watched subtitle files to queued pipeline
// runs and exposes their records, logs and output.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/eventlog"
	"github.com/MimeLyc/tiered-sub-translator/internal/jobs"
	"github.com/MimeLyc/tiered-sub-translator/internal/persistence"
	"github.com/MimeLyc/tiered-sub-translator/internal/pipeline"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/internal/subtitle"
	"github.com/MimeLyc/tiered-sub-translator/internal/translator"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

const (
	SourceUpload = "upload"
	SourceWatch  = "watch"
	SourceRerun  = "rerun"
)

// SubmitRequest is one subtitle file to translate. Settings overrides the
// current default settings when set.
type SubmitRequest struct {
	FileName   string
	Content    string
	Source     string
	SourcePath string
	OutputPath string
	Settings   *config.RunConfig
}

// JobDetails is a job with the live state of its run.
type JobDetails struct {
	*jobs.Job
	RerunOf        string                `json:"rerun_of,omitempty"`
	Lines          int                   `json:"lines"`
	Skipped        int                   `json:"skipped"`
	SourceLanguage string                `json:"source_language,omitempty"`
	Counts         map[record.Status]int `json:"counts"`
	Progress       *eventlog.Progress    `json:"progress,omitempty"`
	Summary        *pipeline.Summary     `json:"summary,omitempty"`
}

type Service struct {
	client     translator.Client
	settings   *config.SettingsStore
	history    *persistence.SQLiteStore
	queue      *jobs.Queue
	batchDelay time.Duration
	pipeOpts   []pipeline.Option

	mu       sync.RWMutex
	sessions map[string]*session
}

type Option func(*Service)

// WithBatchDelay sets the pause between chunks of every run.
func WithBatchDelay(d time.Duration) Option {
	return func(s *Service) { s.batchDelay = d }
}

// WithPipelineOptions appends controller options used for every run.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(s *Service) { s.pipeOpts = append(s.pipeOpts, opts...) }
}

// WithQueueOptions configures the job queue.
func WithQueueOptions(opts ...jobs.Option) Option {
	return func(s *Service) {
		s.queue = jobs.NewQueue(storeOrNil(s.history), opts...)
	}
}

func New(client translator.Client, settings *config.SettingsStore, history *persistence.SQLiteStore, opts ...Option) *Service {
	s := &Service{
		client:     client,
		settings:   settings,
		history:    history,
		batchDelay: pipeline.DefaultBatchDelay,
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queue == nil {
		s.queue = jobs.NewQueue(storeOrNil(s.history))
	}
	return s
}

// storeOrNil keeps a nil *SQLiteStore from becoming a non-nil jobs.Store.
func storeOrNil(history *persistence.SQLiteStore) jobs.Store {
	if history == nil {
		return nil
	}
	return history
}

// Start runs queued jobs in the background until Stop.
func (s *Service) Start() {
	s.queue.Start(s.execute)
}

func (s *Service) Stop() {
	s.queue.Stop()
}

func (s *Service) Settings() config.Settings {
	return s.settings.Get()
}

func (s *Service) UpdateSettings(next config.Settings) (config.Settings, error) {
	saved, err := s.settings.Update(next)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return config.Settings{}, WrapError(err, ErrValidation, "invalid settings")
		}
		return config.Settings{}, WrapError(err, ErrFileWrite, "failed to save settings")
	}
	log.Info("Settings updated: %s -> %s, batch %d, pro %d%%",
		saved.Run.SourceLang, saved.Run.TargetLang, saved.Run.BatchSize, saved.Run.ProAllocation)
	return saved, nil
}

// Submit parses the file and queues a run over it. A file already queued
// from the same path for the same target language returns the existing job
// with created false.
func (s *Service) Submit(req SubmitRequest) (job *jobs.Job, created bool, err error) {
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return nil, false, NewError(ErrValidation, "file name is required")
	}

	settings := s.settings.Get().Run
	if req.Settings != nil {
		settings = *req.Settings
	}
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, false, WrapError(err, ErrValidation, "invalid settings").WithContext("file", name)
	}

	file := subtitle.Parse(req.Content)
	if len(file.Cues) == 0 {
		return nil, false, WrapError(pipeline.ErrNoItems, ErrParse, "no subtitle blocks found").
			WithContext("file", name).
			WithContext("skipped", file.Skipped)
	}

	source := req.Source
	if source == "" {
		source = SourceUpload
	}
	dedupeKey := ""
	if req.SourcePath != "" {
		dedupeKey = req.SourcePath + "|" + settings.TargetLang
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, created = s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: dedupeKey,
		Payload: jobs.Payload{
			FileName:   name,
			SourcePath: req.SourcePath,
			OutputPath: req.OutputPath,
			Settings:   settings,
		},
	})
	if !created {
		return job, false, nil
	}

	sess := s.newSession(job.ID, name, file)
	s.sessions[job.ID] = sess
	s.pruneSessionsLocked()
	return job, true, nil
}

func (s *Service) newSink(jobID string) *eventlog.Sink {
	opts := []eventlog.Option{eventlog.WithPrefix("[" + jobID + "]")}
	if s.history != nil {
		opts = append(opts, eventlog.WithRecorder(func(e eventlog.Entry) {
			if err := s.history.AppendLog(context.Background(), jobID, e); err != nil {
				log.Error("Failed to store log entry of job %s: %v", jobID, err)
			}
		}))
	}
	return eventlog.New(opts...)
}

func (s *Service) newSession(jobID, name string, file *subtitle.File) *session {
	sess := &session{
		jobID:    jobID,
		origin:   jobID,
		fileName: name,
		skipped:  file.Skipped,
		records:  record.NewStore(record.FromCues(file.Cues)),
		log:      s.newSink(jobID),
	}
	sess.log.Info(fmt.Sprintf("Loaded %s with %d subtitles.", name, sess.records.Len()))
	if file.Skipped > 0 {
		sess.log.Warning(fmt.Sprintf("Skipped %d malformed blocks.", file.Skipped))
	}
	if dropped := sess.records.Dropped(); dropped > 0 {
		sess.log.Warning(fmt.Sprintf("Dropped %d blocks with duplicate ids.", dropped))
	}
	return sess
}

// Rerun queues another run over the records of a finished job, so applied
// suggestions become translation input and route their chunks to the quality
// tier. The new job shares the records of jobID and starts with an empty log.
// While a rerun of the same file is still queued or running it is returned
// with created false.
func (s *Service) Rerun(jobID string) (job *jobs.Job, created bool, err error) {
	prev, ok := s.queue.Get(jobID)
	if !ok {
		return nil, false, NewError(ErrNotFound, "job not found").WithContext("job", jobID)
	}
	if !prev.Status.Terminal() {
		return prev, false, NewError(ErrConflict, "job is still "+string(prev.Status)).WithContext("job", jobID)
	}
	prevSess, err := s.session(jobID)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, created = s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    SourceRerun,
		DedupeKey: SourceRerun + "|" + prevSess.origin,
		Payload:   prev.Payload,
	})
	if !created {
		return job, false, nil
	}

	sess := &session{
		jobID:    job.ID,
		origin:   prevSess.origin,
		rerunOf:  jobID,
		fileName: prevSess.fileName,
		skipped:  prevSess.skipped,
		records:  prevSess.records,
		log:      s.newSink(job.ID),
	}
	applied := 0
	for _, r := range sess.records.Snapshot() {
		if r.IsContextApplied {
			applied++
		}
	}
	sess.log.Info(fmt.Sprintf("Rerun of %s with %d subtitles, %d applied suggestions.", jobID, sess.records.Len(), applied))
	s.sessions[job.ID] = sess
	s.pruneSessionsLocked()
	return job, true, nil
}

// pruneSessionsLocked forgets sessions whose job the queue no longer keeps.
func (s *Service) pruneSessionsLocked() {
	for id := range s.sessions {
		if _, ok := s.queue.Get(id); !ok {
			delete(s.sessions, id)
		}
	}
}

func (s *Service) session(jobID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, NewError(ErrNotFound, "job not found").WithContext("job", jobID)
	}
	return sess, nil
}

// execute is the queue executor: it runs the pipeline over the job's records
// and writes the output file when one was requested.
func (s *Service) execute(ctx context.Context, job *jobs.Job) error {
	return SafeExecute(func() error {
		sess, err := s.session(job.ID)
		if err != nil {
			return err
		}
		defer sess.complete()

		cfg := job.Payload.Settings
		if cfg.AutoSource() {
			if name := subtitle.LanguageName(subtitle.DetectLanguage(record.ToCues(sess.records.Snapshot()))); name != "" {
				cfg.SourceLang = name
				sess.log.Info("Detected source language: " + name)
			} else {
				sess.log.Warning("Could not detect the source language.")
			}
		}
		sess.setResult(cfg.SourceLang, nil)

		opts := append([]pipeline.Option{pipeline.WithBatchDelay(s.batchDelay)}, s.pipeOpts...)
		controller := pipeline.NewController(s.client, sess.records, sess.log, opts...)
		summary, err := controller.Run(ctx, cfg)
		sess.setResult("", summary)
		if err != nil {
			if ctx.Err() == nil {
				sess.log.Add("Job failed: "+err.Error(), eventlog.SeverityError, "")
			}
			return err
		}

		if job.Payload.OutputPath != "" {
			content := subtitle.Render(record.ToCues(sess.records.Snapshot()))
			if err := subtitle.WriteFile(job.Payload.OutputPath, content); err != nil {
				sess.log.Add("Failed to write "+job.Payload.OutputPath+": "+err.Error(), eventlog.SeverityError, "")
				return WrapError(err, ErrFileWrite, "failed to write output").WithContext("path", job.Payload.OutputPath)
			}
			sess.log.Add("Wrote "+job.Payload.OutputPath, eventlog.SeveritySuccess, "")
		}
		return nil
	})
}

func (s *Service) Jobs() []*jobs.Job {
	return s.queue.List()
}

func (s *Service) Job(jobID string) (*JobDetails, error) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		return nil, NewError(ErrNotFound, "job not found").WithContext("job", jobID)
	}
	details := &JobDetails{Job: job}
	sess, err := s.session(jobID)
	if err != nil {
		return details, nil
	}
	details.RerunOf = sess.rerunOf
	details.Lines = sess.records.Len()
	details.Skipped = sess.skipped
	details.Counts = sess.records.Counts()
	details.SourceLanguage, details.Summary = sess.result()
	if p, ok := sess.log.Latest(); ok {
		details.Progress = &p
	}
	return details, nil
}

func (s *Service) Items(jobID string) ([]record.Record, error) {
	sess, err := s.session(jobID)
	if err != nil {
		return nil, err
	}
	return sess.records.Snapshot(), nil
}

// ApplySuggestion makes the context suggestion of one record the text that
// gets translated. It is a no-op when the record has no suggestion.
func (s *Service) ApplySuggestion(jobID string, itemID int) (record.Record, bool, error) {
	sess, err := s.session(jobID)
	if err != nil {
		return record.Record{}, false, err
	}
	rec, changed, err := sess.records.ApplySuggestion(itemID)
	if err != nil {
		return record.Record{}, false, WrapError(err, ErrNotFound, "subtitle not found").
			WithContext("job", jobID).
			WithContext("item", itemID)
	}
	if changed {
		sess.log.Info(fmt.Sprintf("Applied suggestion for #%d.", itemID))
	}
	return rec, changed, nil
}

// Logs returns the job's entries in order, from memory while the session is
// kept and from the history store otherwise.
func (s *Service) Logs(ctx context.Context, jobID string) ([]eventlog.Entry, error) {
	if sess, err := s.session(jobID); err == nil {
		return sess.log.Entries(), nil
	}
	if _, ok := s.queue.Get(jobID); !ok || s.history == nil {
		return nil, NewError(ErrNotFound, "job not found").WithContext("job", jobID)
	}
	entries, err := s.history.ListLogs(ctx, jobID)
	if err != nil {
		return nil, WrapError(err, ErrUnknown, "failed to load logs").WithContext("job", jobID)
	}
	return entries, nil
}

// Output renders the current state as SRT; untranslated lines keep their
// original text.
func (s *Service) Output(jobID string) (name string, content string, err error) {
	sess, err := s.session(jobID)
	if err != nil {
		return "", "", err
	}
	job, _ := s.queue.Get(jobID)
	target := ""
	if job != nil {
		target = job.Payload.Settings.TargetLang
	}
	return outputName(sess.fileName, target), subtitle.Render(record.ToCues(sess.records.Snapshot())), nil
}

// Subscribe streams the job's future events. The channel closes when the
// run completes.
func (s *Service) Subscribe(jobID string, buffer int) (<-chan eventlog.Event, func(), error) {
	sess, err := s.session(jobID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := sess.log.Subscribe(buffer)
	return ch, cancel, nil
}

func (s *Service) Cancel(jobID string) (*jobs.Job, error) {
	job, err := s.queue.Cancel(jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return nil, WrapError(err, ErrNotFound, "job not found").WithContext("job", jobID)
	case errors.Is(err, jobs.ErrJobFinished):
		return job, WrapError(err, ErrConflict, "job already finished").WithContext("job", jobID)
	case err != nil:
		return nil, err
	}

	if job.Status == jobs.StatusCanceled {
		if sess, err := s.session(jobID); err == nil {
			sess.log.Warning("Job cancelled before start.")
			sess.complete()
		}
	}
	return job, nil
}

// Health reports the stored job histogram.
func (s *Service) Health(ctx context.Context) (persistence.JobCounts, error) {
	if s.history == nil {
		counts := make(persistence.JobCounts)
		for _, job := range s.queue.List() {
			counts[string(job.Status)]++
		}
		return counts, nil
	}
	return s.history.CountJobs(ctx)
}
