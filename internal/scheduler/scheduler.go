// Package scheduler runs agents on cron schedules stored alongside them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nodeloom/nodeloom/internal/store"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// AgentRunner is the interface the scheduler uses to execute agents.
// Satisfied by the engine runner (avoids import cycle).
type AgentRunner interface {
	ExecuteWorkflow(ctx context.Context, agent *schema.AgentDefinition, input string, onNode func(schema.LogEntry)) (*schema.RunResult, error)
}

// Scheduler polls the store for due scheduled jobs and runs their agents.
type Scheduler struct {
	store  store.Store
	runner AgentRunner
	parser cron.Parser
	logger *slog.Logger

	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing
	jobWG      sync.WaitGroup
}

// NewScheduler creates a Scheduler with a standard 5-field cron parser.
func NewScheduler(s store.Store, runner AgentRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: 30 * time.Second,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

// Stop shuts down the loop and waits for in-flight jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.jobWG.Wait()
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every enabled job whose schedule has come due.
func (s *Scheduler) tick(ctx context.Context) {
	jobs, err := s.store.ListScheduledJobs(ctx, true)
	if err != nil {
		s.logger.Error("list scheduled jobs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		due, err := s.isDue(job, now)
		if err != nil {
			s.logger.Error("bad cron expression",
				slog.String("job_id", job.ID),
				slog.String("cron", job.CronExpr),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !due || !s.tryAcquire(job.ID) {
			continue
		}

		s.jobWG.Add(1)
		go func(job *store.ScheduledJob) {
			defer s.jobWG.Done()
			defer s.release(job.ID)
			s.runJob(ctx, job, now)
		}(job)
	}
}

// isDue reports whether the job's next fire time after its last run (or
// creation) has passed.
func (s *Scheduler) isDue(job *store.ScheduledJob, now time.Time) (bool, error) {
	schedule, err := s.parser.Parse(job.CronExpr)
	if err != nil {
		return false, err
	}

	ref := job.CreatedAt
	if job.LastRunAt != nil {
		ref = *job.LastRunAt
	}
	return !schedule.Next(ref).After(now), nil
}

// runJob loads the job's agent and executes it with the stored input.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("agent_id", job.AgentID),
	)

	// Stamp the run time first so a crash mid-run does not retrigger the
	// job on every tick.
	if err := s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{LastRunAt: &now}); err != nil {
		s.logger.Error("update scheduled job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	agent, err := s.store.GetAgent(ctx, job.AgentID)
	if err != nil {
		s.logger.Error("load agent for scheduled job",
			slog.String("job_id", job.ID),
			slog.String("agent_id", job.AgentID),
			slog.String("error", err.Error()),
		)
		return
	}

	result, err := s.runner.ExecuteWorkflow(ctx, &agent.Definition, job.Input, nil)
	if err != nil {
		var ee *schema.EngineError
		if errors.As(err, &ee) && ee.Code == schema.ErrCodeAlreadyRunning {
			s.logger.Info("skipping scheduled job, agent already running",
				slog.String("job_id", job.ID),
				slog.String("agent_id", job.AgentID),
			)
			return
		}
		s.logger.Error("scheduled job execution failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("scheduled job finished",
		slog.String("job_id", job.ID),
		slog.String("run_id", result.RunID),
		slog.String("status", string(result.Status)),
	)
}

// NextRun computes the job's next fire time from its cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) release(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}
