package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-scanner/internal/jobs"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewJobStore(clock)
	ctx := context.Background()
	job := jobs.Job{ID: "job-1", Target: "example.com", Status: jobs.StatusQueued}

	require.NoError(t, store.CreateJob(ctx, job))
	require.ErrorIs(t, store.CreateJob(ctx, job), jobs.ErrExists)

	require.NoError(t, store.UpdateJobStatus(ctx, job.ID, jobs.StatusRunning, ""))
	running, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, running.Started)
	started := *running.Started

	require.NoError(t, store.UpdateJobStatus(ctx, job.ID, jobs.StatusPaused, ""))
	require.NoError(t, store.UpdateJobStatus(ctx, job.ID, jobs.StatusRunning, ""))
	require.NoError(t, store.SetResult(ctx, job.ID, &scan.Result{Success: true, FreeItemsFound: 2}))
	require.NoError(t, store.UpdateJobStatus(ctx, job.ID, jobs.StatusSucceeded, ""))

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, final.Status)
	assert.Equal(t, started, *final.Started)
	require.NotNil(t, final.Finished)
	assert.True(t, final.Finished.After(started))
	require.NotNil(t, final.Result)
	assert.Equal(t, 2, final.Result.FreeItemsFound)

	require.ErrorIs(t, store.UpdateJobStatus(ctx, job.ID, jobs.StatusCanceled, "late"), jobs.ErrFinished)
	assert.Equal(t, 1, store.Len())
}

func TestJobStoreUnknownJob(t *testing.T) {
	t.Parallel()
	store := NewJobStore(nil)
	ctx := context.Background()

	_, err := store.GetJob(ctx, "nope")
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.ErrorIs(t, store.UpdateJobStatus(ctx, "nope", jobs.StatusRunning, ""), jobs.ErrNotFound)
	require.ErrorIs(t, store.SetResult(ctx, "nope", nil), jobs.ErrNotFound)
}
