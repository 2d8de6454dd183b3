package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jollyrodger/pika/internal/config"
)

// Job names a maintenance job.
type Job string

const (
	JobReindex      Job = "reindex"
	JobTokenSweep   Job = "token_sweep"
	JobAuditCleanup Job = "audit_cleanup"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Enqueuer hands maintenance work to the task queue.
type Enqueuer interface {
	ScheduleReindex(ctx context.Context) error
	ScheduleTokenSweep(ctx context.Context) error
	ScheduleAuditCleanup(ctx context.Context, retentionDays int) error
}

// Schedules holds a cron expression per job. An empty expression disables the job.
type Schedules struct {
	Reindex       string
	TokenSweep    string
	AuditCleanup  string
	RetentionDays int
}

func SchedulesFrom(cfg *config.Config) Schedules {
	return Schedules{
		Reindex:       cfg.Search.ReindexSchedule,
		TokenSweep:    cfg.Scheduler.TokenSweepSchedule,
		AuditCleanup:  cfg.Scheduler.AuditCleanupSchedule,
		RetentionDays: cfg.Audit.RetentionDays,
	}
}

func (s Schedules) byJob() map[Job]string {
	return map[Job]string{
		JobReindex:      s.Reindex,
		JobTokenSweep:   s.TokenSweep,
		JobAuditCleanup: s.AuditCleanup,
	}
}

// ValidateSchedule checks a five field cron expression.
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// MaintenanceScheduler enqueues the periodic maintenance tasks.
type MaintenanceScheduler struct {
	enqueuer  Enqueuer
	schedules Schedules

	cron      *cron.Cron
	entries   map[Job]cron.EntryID
	mu        sync.RWMutex
	isRunning bool
}

func NewMaintenanceScheduler(enqueuer Enqueuer, schedules Schedules) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		enqueuer:  enqueuer,
		schedules: schedules,
		cron:      cron.New(cron.WithParser(parser)),
		entries:   make(map[Job]cron.EntryID),
	}
}

// Start registers every configured job and starts the cron loop.
// The scheduler stops when ctx is cancelled.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	for job, expr := range s.schedules.byJob() {
		if expr == "" {
			log.Printf("Maintenance scheduler: %s disabled", job)
			continue
		}
		if err := ValidateSchedule(expr); err != nil {
			return fmt.Errorf("invalid cron schedule '%s' for %s: %w", expr, job, err)
		}
		if _, ok := s.entries[job]; ok {
			continue
		}
		entryID, err := s.cron.AddFunc(expr, func() {
			if err := s.RunNow(context.Background(), job); err != nil {
				log.Printf("Maintenance scheduler: failed to enqueue %s: %v", job, err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job, err)
		}
		s.entries[job] = entryID
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Maintenance scheduler: started with %d jobs", len(s.entries))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for running jobs and stops the cron loop.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	s.isRunning = false

	log.Printf("Maintenance scheduler: stopped")
}

// RunNow enqueues job immediately.
func (s *MaintenanceScheduler) RunNow(ctx context.Context, job Job) error {
	var err error
	switch job {
	case JobReindex:
		err = s.enqueuer.ScheduleReindex(ctx)
	case JobTokenSweep:
		err = s.enqueuer.ScheduleTokenSweep(ctx)
	case JobAuditCleanup:
		err = s.enqueuer.ScheduleAuditCleanup(ctx, s.schedules.RetentionDays)
	default:
		return fmt.Errorf("unknown maintenance job %q", job)
	}
	if err != nil {
		return err
	}
	log.Printf("Maintenance scheduler: enqueued %s", job)
	return nil
}

func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun is the next activation of a scheduled job.
type NextRun struct {
	Job      Job       `json:"job"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
}

// NextRuns lists the next activation of every scheduled job, soonest first.
func (s *MaintenanceScheduler) NextRuns() []NextRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	schedules := s.schedules.byJob()
	runs := make([]NextRun, 0, len(s.entries))
	for job, id := range s.entries {
		entry := s.cron.Entry(id)
		if !entry.Valid() {
			continue
		}
		runs = append(runs, NextRun{Job: job, Schedule: schedules[job], Next: entry.Next})
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Next.Equal(runs[j].Next) {
			return runs[i].Job < runs[j].Job
		}
		return runs[i].Next.Before(runs[j].Next)
	})
	return runs
}
