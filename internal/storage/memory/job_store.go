package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/storefront-scanner/internal/jobs"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
)

// JobStore keeps scan jobs in process memory.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]jobs.Job
	clock jobs.Clock
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// NewJobStore constructs a JobStore. A nil clock uses wall time.
func NewJobStore(clock jobs.Clock) *JobStore {
	if clock == nil {
		clock = utcClock{}
	}
	return &JobStore{
		jobs:  make(map[string]jobs.Job),
		clock: clock,
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create %s: %w", job.ID, jobs.ErrExists)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus moves a job to status. The first move to running stamps
// the start time and a terminal status stamps the finish time; a job that
// already finished is left untouched.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status jobs.Status, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update %s: %w", jobID, jobs.ErrNotFound)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("update %s: %w", jobID, jobs.ErrFinished)
	}
	now := s.clock.Now()
	job.Status = status
	job.ErrorText = errText
	if status == jobs.StatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.Terminal() {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// SetResult attaches a scan result.
func (s *JobStore) SetResult(_ context.Context, jobID string, result *scan.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("set result %s: %w", jobID, jobs.ErrNotFound)
	}
	job.Result = result
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Job{}, fmt.Errorf("get %s: %w", jobID, jobs.ErrNotFound)
	}
	return job, nil
}

// Len reports how many jobs are stored.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
