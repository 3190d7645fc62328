package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/tiered-sub-translator/pkg/file"
	"github.com/MimeLyc/tiered-sub-translator/pkg/icron"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

const watchLockName = ".tiered-sub-translator.lock"

// WatchStatus describes the directory watcher for the API.
type WatchStatus struct {
	Enabled  bool               `json:"enabled"`
	Dir      string             `json:"dir,omitempty"`
	Trigger  *icron.TriggerInfo `json:"trigger,omitempty"`
	LastScan time.Time          `json:"last_scan,omitempty"`
	Queued   int                `json:"queued"`
}

// Watcher periodically queues the .srt files of a directory that have no
// translation for the current target language yet.
type Watcher struct {
	svc      *Service
	dir      string
	cronExpr string
	cron     *cron.Cron
	group    singleflight.Group

	mu       sync.RWMutex
	lastScan time.Time
	queued   int
}

func NewWatcher(svc *Service, dir, cronExpr string) *Watcher {
	return &Watcher{
		svc:      svc,
		dir:      dir,
		cronExpr: cronExpr,
		cron:     cron.New(),
	}
}

// Schedule registers the scan with the cron scheduler and starts it.
func (w *Watcher) Schedule(ctx context.Context) error {
	log.Info("Watching %s on %q", w.dir, w.cronExpr)
	_, err := w.cron.AddFunc(w.cronExpr, func() {
		if _, err := w.Scan(ctx); err != nil {
			log.Error("Failed to scan %s: %v", w.dir, err)
		}
	})
	if err != nil {
		return WrapError(err, ErrConfig, "invalid watch schedule").WithContext("cron", w.cronExpr)
	}
	w.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running scan.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
}

// Scan queues every new file once. Concurrent calls share one scan, and a
// scan held by another process on the same directory is skipped.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	v, err, _ := w.group.Do("scan", func() (any, error) {
		return w.scan(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (w *Watcher) scan(ctx context.Context) (int, error) {
	if _, err := os.Stat(w.dir); err != nil {
		return 0, WrapError(err, ErrFileRead, "watch directory is not accessible").WithContext("dir", w.dir)
	}

	lock := flock.New(filepath.Join(w.dir, watchLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", w.dir, err)
	}
	if !locked {
		log.Info("Another scan holds %s, skipping", w.dir)
		return 0, nil
	}
	defer func() {
		_ = lock.Unlock()
	}()

	started := time.Now()
	w.mu.RLock()
	since := w.lastScan
	w.mu.RUnlock()

	paths, err := file.FindRecentAfter(w.dir, since, ".srt")
	if err != nil {
		return 0, WrapError(err, ErrFileRead, "failed to list subtitles").WithContext("dir", w.dir)
	}

	target := w.svc.Settings().Run.TargetLang
	queued := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		if file.IsOutputPath(path, target) {
			continue
		}
		out := file.OutputPath(path, target)
		if _, err := os.Stat(out); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Cannot stat %s: %v", out, err)
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Error("Failed to read %s: %v", path, err)
			continue
		}
		job, created, err := w.svc.Submit(SubmitRequest{
			FileName:   filepath.Base(path),
			Content:    string(content),
			Source:     SourceWatch,
			SourcePath: path,
			OutputPath: out,
		})
		if err != nil {
			log.Warn("Skipping %s: %v", path, err)
			continue
		}
		if created {
			queued++
			log.Info("Queued %s as %s", path, job.ID)
		}
	}

	w.mu.Lock()
	w.lastScan = started
	w.queued += queued
	w.mu.Unlock()

	log.Info("Scanned %s: %d files, %d queued", w.dir, len(paths), queued)
	return queued, nil
}

func (w *Watcher) Status(now time.Time) WatchStatus {
	w.mu.RLock()
	status := WatchStatus{
		Enabled:  true,
		Dir:      w.dir,
		LastScan: w.lastScan,
		Queued:   w.queued,
	}
	w.mu.RUnlock()

	if info, err := icron.GetTriggerInfo(w.cronExpr, now); err == nil {
		status.Trigger = info
	}
	return status
}

// outputName is the download name of a translation of name.
func outputName(name, target string) string {
	if target == "" {
		return name
	}
	return filepath.Base(file.OutputPath(name, target))
}
