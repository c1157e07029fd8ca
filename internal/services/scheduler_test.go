package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-worker/internal/domain"
	"auction-worker/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type memoryJournal struct {
	mu       sync.Mutex
	created  []string
	statuses map[string][]domain.JobStatus
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{statuses: make(map[string][]domain.JobStatus)}
}

func (j *memoryJournal) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created = append(j.created, job.ID)
	j.statuses[job.ID] = append(j.statuses[job.ID], job.Status)
	return nil
}

func (j *memoryJournal) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.statuses[jobID] = append(j.statuses[jobID], status)
	return nil
}

func (j *memoryJournal) CancelJobsForAuction(ctx context.Context, auctionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for jobID, statuses := range j.statuses {
		if statuses[len(statuses)-1] == domain.JobPending {
			j.statuses[jobID] = append(statuses, domain.JobCancelled)
		}
	}
	return nil
}

func (j *memoryJournal) GetJobs(ctx context.Context, auctionID string) ([]*domain.ScheduledJob, error) {
	return nil, nil
}

func (j *memoryJournal) history(jobID string) []domain.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.JobStatus(nil), j.statuses[jobID]...)
}

func newTestScheduler(t *testing.T, journal domain.JobJournal) *CronStageScheduler {
	t.Helper()
	scheduler := NewCronStageScheduler(testTenderID, time.UTC, 100*time.Second, journal, logger.NewNop())
	require.NoError(t, scheduler.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, scheduler.Stop())
	})
	return scheduler
}

func TestOnceSchedule(t *testing.T) {
	at := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)

	early := &onceSchedule{at: at}
	assert.Equal(t, at, early.Next(at.Add(-time.Minute)))
	assert.True(t, early.Next(at.Add(time.Minute)).IsZero())

	late := &onceSchedule{at: at}
	now := at.Add(30 * time.Second)
	assert.Equal(t, now, late.Next(now))
}

func TestCronStageScheduler_FiresJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	journal := newMemoryJournal()
	scheduler := NewCronStageScheduler(testTenderID, time.UTC, 100*time.Second, journal, logger.NewNop())
	require.NoError(t, scheduler.Start(context.Background()))

	fired := make(chan struct{})
	err := scheduler.Schedule(context.Background(), "job-1", domain.JobStartAuction, time.Now().Add(50*time.Millisecond),
		func(ctx context.Context) error {
			close(fired)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, scheduler.Pending())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}

	require.NoError(t, scheduler.Stop())
	assert.Empty(t, scheduler.Pending())
	assert.Equal(t, []domain.JobStatus{domain.JobPending, domain.JobExecuted}, journal.history("job-1"))
}

func TestCronStageScheduler_LateWithinGraceFiresImmediately(t *testing.T) {
	journal := newMemoryJournal()
	scheduler := newTestScheduler(t, journal)

	fired := make(chan struct{})
	err := scheduler.Schedule(context.Background(), "job-late", domain.JobSwitchStage, time.Now().Add(-10*time.Second),
		func(ctx context.Context) error {
			close(fired)
			return nil
		})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("late job did not fire")
	}
}

func TestCronStageScheduler_SkipsMisfiredJob(t *testing.T) {
	journal := newMemoryJournal()
	scheduler := newTestScheduler(t, journal)

	err := scheduler.Schedule(context.Background(), "job-old", domain.JobSwitchStage, time.Now().Add(-10*time.Minute),
		func(ctx context.Context) error {
			t.Error("misfired job must not run")
			return nil
		})

	require.NoError(t, err)
	assert.Empty(t, scheduler.Pending())
	assert.Equal(t, []domain.JobStatus{domain.JobPending, domain.JobMisfired}, journal.history("job-old"))
}

func TestCronStageScheduler_RunsOverdueEndJob(t *testing.T) {
	journal := newMemoryJournal()
	scheduler := newTestScheduler(t, journal)

	fired := make(chan struct{})
	err := scheduler.Schedule(context.Background(), "job-end", domain.JobEndAuction, time.Now().Add(-10*time.Minute),
		func(ctx context.Context) error {
			close(fired)
			return nil
		})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("overdue end job did not fire")
	}
	assert.Eventually(t, func() bool {
		history := journal.history("job-end")
		return len(history) == 2 && history[1] == domain.JobExecuted
	}, time.Second, 10*time.Millisecond)
}

func TestCronStageScheduler_RecordsFailedJob(t *testing.T) {
	journal := newMemoryJournal()
	scheduler := newTestScheduler(t, journal)

	done := make(chan struct{})
	err := scheduler.Schedule(context.Background(), "job-fail", domain.JobEndAuction, time.Now(),
		func(ctx context.Context) error {
			defer close(done)
			return errors.New("store unavailable")
		})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	assert.Eventually(t, func() bool {
		history := journal.history("job-fail")
		return len(history) == 2 && history[1] == domain.JobFailed
	}, time.Second, 10*time.Millisecond)
}

func TestCronStageScheduler_Cancel(t *testing.T) {
	journal := newMemoryJournal()
	scheduler := newTestScheduler(t, journal)

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, scheduler.Schedule(context.Background(), "job-a", domain.JobSwitchStage, time.Now().Add(time.Hour), noop))
	require.NoError(t, scheduler.Schedule(context.Background(), "job-b", domain.JobEndAuction, time.Now().Add(2*time.Hour), noop))

	require.NoError(t, scheduler.Cancel(context.Background(), "job-a"))
	assert.ErrorIs(t, scheduler.Cancel(context.Background(), "job-a"), domain.ErrJobNotFound)
	assert.Equal(t, []string{"job-b"}, scheduler.Pending())
	assert.Equal(t, []domain.JobStatus{domain.JobPending, domain.JobCancelled}, journal.history("job-a"))

	require.NoError(t, scheduler.CancelAll(context.Background()))
	assert.Empty(t, scheduler.Pending())
	assert.Equal(t, []domain.JobStatus{domain.JobPending, domain.JobCancelled}, journal.history("job-b"))
}

func TestCronStageScheduler_RescheduleReplacesJob(t *testing.T) {
	scheduler := newTestScheduler(t, nil)

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, scheduler.Schedule(context.Background(), "job-a", domain.JobSwitchStage, time.Now().Add(time.Hour), noop))
	require.NoError(t, scheduler.Schedule(context.Background(), "job-a", domain.JobSwitchStage, time.Now().Add(2*time.Hour), noop))

	assert.Equal(t, []string{"job-a"}, scheduler.Pending())
}

func TestCronStageScheduler_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheduler := NewCronStageScheduler(testTenderID, time.UTC, time.Minute, nil, logger.NewNop())
	assert.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.Start(context.Background()))
	require.NoError(t, scheduler.Start(context.Background()))
	assert.NoError(t, scheduler.Stop())
	assert.NoError(t, scheduler.Stop())
}
