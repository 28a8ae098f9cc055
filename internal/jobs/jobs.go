// Package jobs models background scans run by the HTTP service.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/storefront-scanner/internal/scan"
)

var (
	// ErrNotFound reports an unknown job ID.
	ErrNotFound = errors.New("job not found")
	// ErrExists reports a duplicate job ID.
	ErrExists = errors.New("job already exists")
	// ErrFinished reports a status change on a job that already ended.
	ErrFinished = errors.New("job already finished")
	// ErrQueueClosed is returned by a Queue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)

// Status represents the lifecycle state of a scan job.
type Status string

// Job status values persisted in the job store.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Job is one requested scan.
type Job struct {
	ID        string       `json:"id"`
	Target    string       `json:"url"`
	Status    Status       `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Result    *scan.Result `json:"result,omitempty"`
}

// Store persists jobs.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status Status, errText string) error
	SetResult(ctx context.Context, jobID string, result *scan.Result) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Queue provides enqueue/dequeue semantics for scan jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Target    string
	Submitted int64
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
