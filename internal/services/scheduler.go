package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"auction-worker/internal/domain"
	"auction-worker/pkg/logger"

	"github.com/robfig/cron/v3"
)

// onceSchedule fires a single time. cron asks for Next once when the entry is
// added and once after every run, so the second call ends the schedule.
type onceSchedule struct {
	at    time.Time
	calls atomic.Int32
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if o.calls.Add(1) > 1 {
		return time.Time{}
	}
	if t.Before(o.at) {
		return o.at
	}
	return t
}

type CronStageScheduler struct {
	cron      *cron.Cron
	journal   domain.JobJournal
	auctionID string
	grace     time.Duration
	clock     domain.Clock
	log       logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
	jobCtx  context.Context
}

func NewCronStageScheduler(auctionID string, location *time.Location, grace time.Duration,
	journal domain.JobJournal, log logger.Logger) *CronStageScheduler {
	cronLog := logger.NewCronLogger(log)
	return &CronStageScheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		journal:   journal,
		auctionID: auctionID,
		grace:     grace,
		clock:     domain.SystemClock{},
		log:       log.With("auction_id", auctionID, "component", "scheduler"),
		entries:   make(map[string]cron.EntryID),
		jobCtx:    context.Background(),
	}
}

func (s *CronStageScheduler) SetClock(clock domain.Clock) {
	s.clock = clock
}

// Start begins firing jobs. Jobs run with a context detached from ctx's
// cancellation so an in-flight transition is not cut off halfway.
func (s *CronStageScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.log.Info("Starting stage scheduler")
	s.jobCtx = context.WithoutCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *CronStageScheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.log.Info("Stopping stage scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *CronStageScheduler) Schedule(ctx context.Context, jobID string, jobType domain.JobType, at time.Time,
	fn func(ctx context.Context) error) error {
	now := s.clock.Now()
	job := &domain.ScheduledJob{
		ID:        jobID,
		AuctionID: s.auctionID,
		JobType:   jobType,
		RunAt:     at,
		Status:    domain.JobPending,
		CreatedAt: now,
	}

	if s.journal != nil {
		if err := s.journal.CreateJob(ctx, job); err != nil {
			return err
		}
	}

	if s.misfired(job, now) {
		s.updateStatus(ctx, jobID, domain.JobMisfired)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, exists := s.entries[jobID]; exists {
		s.cron.Remove(previous)
	}
	s.entries[jobID] = s.cron.Schedule(&onceSchedule{at: at}, s.wrap(job, fn))

	s.log.Debug("Job scheduled", "job_id", jobID, "type", jobType, "run_at", at)
	return nil
}

func (s *CronStageScheduler) wrap(job *domain.ScheduledJob, fn func(ctx context.Context) error) cron.FuncJob {
	return func() {
		s.forget(job.ID)

		s.mu.Lock()
		ctx := s.jobCtx
		s.mu.Unlock()

		if s.misfired(job, s.clock.Now()) {
			s.updateStatus(ctx, job.ID, domain.JobMisfired)
			return
		}

		s.log.Info("Processing job", "job_id", job.ID, "type", job.JobType)
		if err := fn(ctx); err != nil {
			s.log.Error("Failed to execute job", "job_id", job.ID, "error", err)
			s.updateStatus(ctx, job.ID, domain.JobFailed)
			return
		}
		s.updateStatus(ctx, job.ID, domain.JobExecuted)
	}
}

// misfired reports whether job is past its misfire grace at now. An overdue
// end job is never skipped: it runs as soon as possible so the auction still
// reaches its end.
func (s *CronStageScheduler) misfired(job *domain.ScheduledJob, now time.Time) bool {
	late := now.Sub(job.RunAt)
	if late <= s.grace {
		return false
	}
	if job.JobType == domain.JobEndAuction {
		s.log.Warn("End job missed its run time, running now", "job_id", job.ID, "late", late)
		return false
	}
	s.log.Warn("Job missed its run time, skipping", "job_id", job.ID, "type", job.JobType, "late", late)
	return true
}

func (s *CronStageScheduler) forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.entries[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
	}
}

func (s *CronStageScheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	entryID, exists := s.entries[jobID]
	if exists {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
	}
	s.mu.Unlock()

	if !exists {
		return domain.ErrJobNotFound
	}
	s.updateStatus(ctx, jobID, domain.JobCancelled)
	return nil
}

func (s *CronStageScheduler) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	for jobID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
	}
	s.mu.Unlock()

	if s.journal != nil {
		return s.journal.CancelJobsForAuction(ctx, s.auctionID)
	}
	return nil
}

// Pending lists job ids that have not fired yet.
func (s *CronStageScheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for jobID := range s.entries {
		ids = append(ids, jobID)
	}
	return ids
}

func (s *CronStageScheduler) updateStatus(ctx context.Context, jobID string, status domain.JobStatus) {
	if s.journal == nil {
		return
	}
	if err := s.journal.UpdateJobStatus(ctx, jobID, status); err != nil {
		s.log.Error("Failed to update job status", "job_id", jobID, "status", status, "error", err)
	}
}
