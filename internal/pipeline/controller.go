// Package pipeline runs the batched context-check and translation passes over
// a record store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/eventlog"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/internal/translator"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

var ErrNoItems = errors.New("no subtitle items to translate")

const (
	DefaultBatchDelay = time.Second

	missingFromResponse = "missing from model response"
)

// Sink receives the run's log entries and progress.
type Sink interface {
	Add(message string, severity eventlog.Severity, tier record.Tier) eventlog.Entry
	Progress(p eventlog.Progress)
	Complete(summary any)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Summary is the outcome of one run.
type Summary struct {
	Total            int                   `json:"total"`
	Batches          int                   `json:"batches"`
	Statuses         map[record.Status]int `json:"statuses"`
	Tiers            map[record.Tier]int   `json:"tiers"`
	FailedBatches    int                   `json:"failed_batches"`
	RecoveredBatches int                   `json:"recovered_batches"`
	Duration         time.Duration         `json:"duration"`
	Cancelled        bool                  `json:"cancelled"`
}

// Controller drives chunks through the remote model strictly one at a time.
type Controller struct {
	client     translator.Client
	store      *record.Store
	sink       Sink
	router     *Router
	batchDelay time.Duration
	sleep      Sleeper
	onProgress func(eventlog.Progress)
}

type Option func(*Controller)

func WithRouter(r *Router) Option {
	return func(c *Controller) { c.router = r }
}

// WithBatchDelay sets the pause between chunks. Zero disables it.
func WithBatchDelay(d time.Duration) Option {
	return func(c *Controller) { c.batchDelay = d }
}

func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// WithProgress registers an observer called after every chunk.
func WithProgress(fn func(eventlog.Progress)) Option {
	return func(c *Controller) { c.onProgress = fn }
}

func NewController(client translator.Client, store *record.Store, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		client:     client,
		store:      store,
		sink:       sink,
		batchDelay: DefaultBatchDelay,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.router == nil {
		c.router = NewRouter(nil)
	}
	return c
}

// Run executes one pass over every record. Chunk failures are recorded on
// the affected records and never abort the run. The returned error is non-nil
// only for invalid configuration, an empty store, or cancellation; in the last
// case the partial summary is returned as well.
func (c *Controller) Run(ctx context.Context, cfg config.RunConfig) (*Summary, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.store.Len() == 0 {
		return nil, ErrNoItems
	}

	started := time.Now()
	c.store.BeginRun()
	snapshot := c.store.Snapshot()
	chunks, err := Partition(snapshot, cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Total: len(snapshot), Batches: len(chunks)}
	c.sink.Add(fmt.Sprintf("Starting translation of %d lines in %d batches (%s -> %s).",
		len(snapshot), len(chunks), cfg.SourceLang, cfg.TargetLang), eventlog.SeverityInfo, "")

	processed := 0
	for i, chunk := range chunks {
		batch := i + 1
		if err := ctx.Err(); err != nil {
			return c.cancelled(summary, started, batch-1, len(chunks), err)
		}

		c.runChunk(ctx, batch, len(chunks), chunk, cfg, summary)

		processed += len(chunk)
		p := eventlog.Progress{
			Processed: processed,
			Total:     len(snapshot),
			Percent:   float64(processed) * 100 / float64(len(snapshot)),
			Batch:     batch,
			Batches:   len(chunks),
		}
		c.sink.Progress(p)
		if c.onProgress != nil {
			c.onProgress(p)
		}

		if batch < len(chunks) && c.batchDelay > 0 {
			if err := c.sleep(ctx, c.batchDelay); err != nil {
				return c.cancelled(summary, started, batch, len(chunks), err)
			}
		}
	}

	c.finish(summary, started)
	c.sink.Add("Job complete.", eventlog.SeveritySuccess, "")
	c.sink.Complete(summary)
	return summary, nil
}

func (c *Controller) cancelled(summary *Summary, started time.Time, done, total int, err error) (*Summary, error) {
	summary.Cancelled = true
	c.finish(summary, started)
	c.sink.Add(fmt.Sprintf("Job cancelled after %d of %d batches.", done, total), eventlog.SeverityWarning, "")
	c.sink.Complete(summary)
	return summary, err
}

func (c *Controller) finish(summary *Summary, started time.Time) {
	summary.Statuses = c.store.Counts()
	summary.Tiers = make(map[record.Tier]int, 2)
	for _, r := range c.store.Snapshot() {
		if r.ModelUsed != "" && r.Status == record.StatusDone {
			summary.Tiers[r.ModelUsed]++
		}
	}
	summary.Duration = time.Since(started)
}

func (c *Controller) runChunk(ctx context.Context, batch, batches int, chunk []record.Record, cfg config.RunConfig, summary *Summary) {
	prefix := fmt.Sprintf("[Batch %d/%d]", batch, batches)
	ids := make([]int, 0, len(chunk))
	for _, r := range chunk {
		ids = append(ids, r.ID)
	}
	// Taken before any suggestion of this chunk is merged; the fallback
	// translates exactly this.
	original := c.store.Select(ids)

	c.patch(ids, func(r *record.Record) { r.Status = record.StatusCheckingContext })
	c.sink.Add(prefix+" Checking context...", eventlog.SeverityInfo, record.TierQuality)
	c.checkContext(ctx, prefix, ids, cfg)

	flagged := Flagged(c.store.Select(ids))
	tier := c.router.Route(flagged, cfg.ProAllocation)
	if flagged {
		c.sink.Add(prefix+" Routed to quality tier (context flags detected).", eventlog.SeverityInfo, tier)
	}
	c.patch(ids, func(r *record.Record) {
		r.Status = record.StatusTranslating
		r.ModelUsed = tier
	})
	c.sink.Add(fmt.Sprintf("%s Translating %d lines...", prefix, len(ids)), eventlog.SeverityInfo, tier)

	translations, err := c.client.Translate(ctx, c.store.Select(ids), cfg, tier)
	if err == nil {
		done, missing := c.applyTranslations(ids, translations, tier)
		c.sink.Add(fmt.Sprintf("%s Translated %d lines.", prefix, done), eventlog.SeveritySuccess, tier)
		if missing > 0 {
			c.sink.Add(fmt.Sprintf("%s %d lines %s.", prefix, missing, missingFromResponse), eventlog.SeverityWarning, tier)
		}
		return
	}

	summary.FailedBatches++
	c.sink.Add(fmt.Sprintf("%s Translation failed on %s tier: %v. Retrying with fast tier...", prefix, tier, err),
		eventlog.SeverityWarning, tier)

	if ctxErr := ctx.Err(); ctxErr != nil {
		c.failChunk(prefix, ids, err, ctxErr, false)
		return
	}

	fallback, fbErr := c.client.Translate(ctx, original, cfg, record.TierFast)
	if fbErr != nil {
		c.failChunk(prefix, ids, err, fbErr, true)
		return
	}

	summary.RecoveredBatches++
	done, missing := c.applyTranslations(ids, fallback, record.TierFast)
	c.sink.Add(fmt.Sprintf("%s Recovered with fast tier (%d lines).", prefix, done), eventlog.SeveritySuccess, record.TierFast)
	if missing > 0 {
		c.sink.Add(fmt.Sprintf("%s %d lines %s.", prefix, missing, missingFromResponse), eventlog.SeverityWarning, record.TierFast)
	}
}

// checkContext merges suggestions for this chunk's ids. A failed check is
// logged and the chunk continues without suggestions.
func (c *Controller) checkContext(ctx context.Context, prefix string, ids []int, cfg config.RunConfig) {
	suggestions, err := c.client.CheckContext(ctx, c.store.Select(ids), cfg)
	if err != nil {
		c.sink.Add(fmt.Sprintf("%s Context check failed: %v. Continuing without suggestions.", prefix, err),
			eventlog.SeverityWarning, record.TierQuality)
		return
	}

	inChunk := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		inChunk[id] = struct{}{}
	}

	flagged := 0
	for _, s := range suggestions {
		if _, ok := inChunk[s.ID]; !ok || s.Suggestion == "" {
			continue
		}
		// A suggestion the user already applied is kept.
		if rec, ok := c.store.Get(s.ID); !ok || rec.ContextSuggestion != "" {
			continue
		}
		res := c.store.ApplyPatch([]int{s.ID}, func(r *record.Record) {
			r.ContextSuggestion = s.Suggestion
		})
		if len(res.Updated) == 1 {
			flagged++
		}
	}
	if flagged > 0 {
		c.sink.Add(fmt.Sprintf("%s Context check flagged %d lines.", prefix, flagged),
			eventlog.SeverityWarning, record.TierQuality)
	}
}

// applyTranslations marks returned ids done and the rest of ids as errors.
func (c *Controller) applyTranslations(ids []int, translations []translator.Translation, tier record.Tier) (done, missing int) {
	byID := make(map[int]string, len(translations))
	for _, t := range translations {
		if _, dup := byID[t.ID]; !dup && t.TranslatedText != "" {
			byID[t.ID] = t.TranslatedText
		}
	}

	var doneIDs, missingIDs []int
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			doneIDs = append(doneIDs, id)
		} else {
			missingIDs = append(missingIDs, id)
		}
	}

	res := c.patchEach(doneIDs, func(r *record.Record) {
		r.Status = record.StatusDone
		r.TranslatedText = byID[r.ID]
		r.ModelUsed = tier
		r.ErrorMessage = ""
	})
	c.patch(missingIDs, func(r *record.Record) {
		r.Status = record.StatusError
		r.ModelUsed = tier
		r.ErrorMessage = missingFromResponse
	})
	return res, len(missingIDs)
}

// failChunk marks the chunk as errors. attempted is false when the fallback
// call was never made.
func (c *Controller) failChunk(prefix string, ids []int, primary, fallback error, attempted bool) {
	outcome := "failed"
	if !attempted {
		outcome = "skipped"
	}
	msg := fmt.Sprintf("translation failed: %v; fallback %s: %v", primary, outcome, fallback)
	c.patch(ids, func(r *record.Record) {
		r.Status = record.StatusError
		r.ErrorMessage = msg
	})
	c.sink.Add(fmt.Sprintf("%s Fallback %s: %v", prefix, outcome, fallback), eventlog.SeverityError, record.TierFast)
}

func (c *Controller) patch(ids []int, update func(*record.Record)) {
	if len(ids) == 0 {
		return
	}
	res := c.store.ApplyPatch(ids, update)
	if err := res.Err(); err != nil {
		log.Warn("record patch rejected: %v", err)
	}
	if len(res.Missing) > 0 {
		log.Warn("record patch skipped unknown ids %v", res.Missing)
	}
}

// patchEach is patch that reports how many records were updated.
func (c *Controller) patchEach(ids []int, update func(*record.Record)) int {
	if len(ids) == 0 {
		return 0
	}
	res := c.store.ApplyPatch(ids, update)
	if err := res.Err(); err != nil {
		log.Warn("record patch rejected: %v", err)
	}
	return len(res.Updated)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
