package jobs

import "context"

// Store records job states outside the queue.
type Store interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	UpsertJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
	// DeleteJobData removes auxiliary data (log history) for a job.
	DeleteJobData(ctx context.Context, jobID string) error
}
