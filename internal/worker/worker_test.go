package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/jobs"
	queuememory "github.com/JakeFAU/storefront-scanner/internal/queue/memory"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
	"github.com/JakeFAU/storefront-scanner/internal/storage/memory"
)

type fakeScanner struct {
	mu      sync.Mutex
	targets []string
	run     func(ctx context.Context, target string) (*scan.Result, error)
}

func (f *fakeScanner) Scan(ctx context.Context, target string, _ ...scan.RunOption) (*scan.Result, error) {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	return f.run(ctx, target)
}

func (f *fakeScanner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}

type harness struct {
	queue    *queuememory.Queue
	store    *memory.JobStore
	controls *jobs.Controls
	scanner  *fakeScanner
}

func start(t *testing.T, run func(ctx context.Context, target string) (*scan.Result, error)) (*harness, context.CancelFunc) {
	t.Helper()
	h := &harness{
		queue:    queuememory.NewQueue(4),
		store:    memory.NewJobStore(nil),
		controls: jobs.NewControls(),
		scanner:  &fakeScanner{run: run},
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := New(h.queue, h.store, h.scanner, h.controls, zap.NewNop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h, cancel
}

func (h *harness) submit(t *testing.T, id, target string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.CreateJob(ctx, jobs.Job{ID: id, Target: target, Status: jobs.StatusQueued}))
	require.NoError(t, h.queue.Enqueue(ctx, jobs.QueueItem{JobID: id, Target: target}))
}

func (h *harness) status(id string) jobs.Status {
	job, err := h.store.GetJob(context.Background(), id)
	if err != nil {
		return ""
	}
	return job.Status
}

func TestWorkerRecordsSuccessfulScan(t *testing.T) {
	t.Parallel()
	h, _ := start(t, func(_ context.Context, target string) (*scan.Result, error) {
		return &scan.Result{Success: true, Domain: target, FreeItemsFound: 1}, nil
	})

	h.submit(t, "job-1", "example.com")
	require.Eventually(t, func() bool { return h.status("job-1") == jobs.StatusSucceeded }, time.Second, 5*time.Millisecond)

	job, err := h.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Success)
	assert.Equal(t, 1, job.Result.FreeItemsFound)
	assert.NotNil(t, job.Started)
	assert.NotNil(t, job.Finished)
	assert.Zero(t, h.controls.Running())
}

func TestWorkerRecordsFailure(t *testing.T) {
	t.Parallel()
	h, _ := start(t, func(_ context.Context, target string) (*scan.Result, error) {
		return nil, fmt.Errorf("scan %s: %w", target, scan.ErrNoStorefront)
	})

	h.submit(t, "job-1", "example.com")
	require.Eventually(t, func() bool { return h.status("job-1") == jobs.StatusFailed }, time.Second, 5*time.Millisecond)

	job, err := h.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "no reachable storefront found", job.ErrorText)
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Success)
	assert.Equal(t, "no reachable storefront found", job.Result.Error)
}

func TestWorkerCancelKeepsPartialResult(t *testing.T) {
	t.Parallel()
	h, _ := start(t, func(ctx context.Context, _ string) (*scan.Result, error) {
		<-ctx.Done()
		return &scan.Result{Success: true, Stopped: true, FreeItemsFound: 3}, nil
	})

	h.submit(t, "job-1", "example.com")
	require.Eventually(t, func() bool {
		return h.status("job-1") == jobs.StatusRunning && h.controls.Running() == 1
	}, time.Second, 5*time.Millisecond)

	require.True(t, h.controls.Cancel("job-1"))
	require.Eventually(t, func() bool { return h.status("job-1") == jobs.StatusCanceled }, time.Second, 5*time.Millisecond)

	job, err := h.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Stopped)
	assert.Equal(t, 3, job.Result.FreeItemsFound)
}

func TestWorkerSkipsJobCanceledWhileQueued(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	h, _ := start(t, func(_ context.Context, target string) (*scan.Result, error) {
		if target == "first.com" {
			<-release
		}
		return &scan.Result{Success: true}, nil
	})

	h.submit(t, "job-1", "first.com")
	require.Eventually(t, func() bool { return h.status("job-1") == jobs.StatusRunning }, time.Second, 5*time.Millisecond)
	h.submit(t, "job-2", "second.com")
	require.NoError(t, h.store.UpdateJobStatus(context.Background(), "job-2", jobs.StatusCanceled, "canceled before start"))
	close(release)

	require.Eventually(t, func() bool { return h.status("job-1") == jobs.StatusSucceeded }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return h.scanner.calls() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, jobs.StatusCanceled, h.status("job-2"))
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()
	q := queuememory.NewQueue(1)
	w := New(q, memory.NewJobStore(nil), &fakeScanner{}, nil, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}
