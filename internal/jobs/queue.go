package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

type Executor func(ctx context.Context, job *Job) error

// Queue runs jobs one at a time in submission order.
type Queue struct {
	maxJobs int
	store   Store

	mu         sync.RWMutex
	jobs       map[string]*Job
	dedupe     map[string]string
	cancels    map[string]context.CancelFunc
	canceled   map[string]bool
	idCounter  uint64
	started    bool
	pendingIDs chan string
	baseCtx    context.Context
	stopAll    context.CancelFunc
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type Option func(*Queue)

// WithMaxJobs bounds how many jobs are kept; the oldest finished jobs are
// pruned first.
func WithMaxJobs(n int) Option {
	return func(q *Queue) { q.maxJobs = n }
}

func NewQueue(store Store, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		maxJobs:    1000,
		store:      store,
		jobs:       make(map[string]*Job),
		dedupe:     make(map[string]string),
		cancels:    make(map[string]context.CancelFunc),
		canceled:   make(map[string]bool),
		pendingIDs: make(chan string, 1024),
		baseCtx:    ctx,
		stopAll:    cancel,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue adds a job unless one with the same dedupe key is still pending or
// running, in which case that job is returned and created is false.
func (q *Queue) Enqueue(req EnqueueRequest) (job *Job, created bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.DedupeKey]; ok && req.DedupeKey != "" {
		if existing, exists := q.jobs[id]; exists {
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	id := fmt.Sprintf("job-%d", atomic.AddUint64(&q.idCounter, 1))
	next := &Job{
		ID:        id,
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.jobs[id] = next
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = id
	}
	started := q.started
	snapshot := cloneJob(next)
	q.mu.Unlock()

	q.persistJob(snapshot)
	if started {
		q.enqueuePendingID(id)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns every job, oldest first.
func (q *Queue) List() []*Job {
	q.mu.RLock()
	ret := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		if !ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].CreatedAt.Before(ret[j].CreatedAt)
		}
		return jobNumber(ret[i].ID) < jobNumber(ret[j].ID)
	})
	return ret
}

// Cancel stops a pending job before it runs, or cancels the context of the
// running one. The running job turns canceled once its executor returns.
func (q *Queue) Cancel(id string) (*Job, error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	switch job.Status {
	case StatusPending:
		job.Status = StatusCanceled
		job.UpdatedAt = time.Now()
		q.releaseDedupeLocked(job)
		snapshot := cloneJob(job)
		q.mu.Unlock()
		q.persistJob(snapshot)
		return snapshot, nil
	case StatusRunning:
		q.canceled[id] = true
		if cancel, ok := q.cancels[id]; ok {
			cancel()
		}
		snapshot := cloneJob(job)
		q.mu.Unlock()
		return snapshot, nil
	default:
		snapshot := cloneJob(job)
		q.mu.Unlock()
		return snapshot, fmt.Errorf("%w: %s is %s", ErrJobFinished, id, snapshot.Status)
	}
}

// Start launches the worker. Jobs pending at this point run first.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]*Job, 0)
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return jobNumber(pending[i].ID) < jobNumber(pending[j].ID)
	})
	ids := make([]string, 0, len(pending))
	for _, job := range pending {
		ids = append(ids, job.ID)
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.enqueuePendingID(id)
	}

	q.wg.Add(1)
	go q.worker(exec)
}

// Stop cancels the running job and waits for the worker to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.stopAll()
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pendingIDs:
			job, ctx, ok := q.markRunning(id)
			if !ok {
				continue
			}

			err := exec(ctx, job)
			switch {
			case q.cancelRequested(id):
				q.markFinished(id, StatusCanceled, err)
			case err != nil:
				q.markFinished(id, StatusFailed, err)
			default:
				q.markFinished(id, StatusSuccess, nil)
			}
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() { q.pendingIDs <- id }()
	}
}

func (q *Queue) markRunning(id string) (*Job, context.Context, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(q.baseCtx)
	q.cancels[id] = cancel
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	return snapshot, ctx, true
}

func (q *Queue) cancelRequested(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.canceled[id]
}

func (q *Queue) markFinished(id string, status Status, err error) {
	q.mu.Lock()
	if cancel, ok := q.cancels[id]; ok {
		cancel()
		delete(q.cancels, id)
	}
	delete(q.canceled, id)

	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = status
	job.Error = ""
	if err != nil {
		job.Error = err.Error()
	}
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	pruned := q.pruneTerminalJobsLocked()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.deleteJobsFromStore(pruned)
}

func (q *Queue) releaseDedupeLocked(job *Job) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

func (q *Queue) pruneTerminalJobsLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.jobs))
	for id, job := range q.jobs {
		if job == nil || !job.Status.Terminal() {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := terminal[i].id
		q.releaseDedupeLocked(q.jobs[id])
		delete(q.jobs, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func (q *Queue) deleteJobsFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJobData(context.Background(), id); err != nil {
			log.Error("Failed to delete data for pruned job %s: %v", id, err)
		}
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete pruned job %s from store: %v", id, err)
		}
	}
}

// hydrateFromStore loads jobs recorded earlier in this process, e.g. by a
// previous queue over the same store. Jobs caught running are queued again.
func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*Job, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
		if n := jobNumber(job.ID); n > q.idCounter {
			q.idCounter = n
		}
	}
	q.mu.Unlock()

	for _, job := range toPersist {
		q.persistJob(job)
	}
}

func jobNumber(jobID string) uint64 {
	if !strings.HasPrefix(jobID, "job-") {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(jobID, "job-"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (q *Queue) persistJob(job *Job) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
