// Package scheduler runs the snapshot materializer on a cron schedule and
// on demand, never overlapping two runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"accumulation-lab/internal/observability"
	"accumulation-lab/internal/snapshot"
)

// ErrRunInProgress is returned by RunNow while another run is executing.
var ErrRunInProgress = errors.New("materializer run already in progress")

// Job is a materialization pass.
type Job interface {
	Run(ctx context.Context) (*snapshot.RunResult, error)
}

// Options for creating Scheduler.
type Options struct {
	Schedule string         // standard 5-field cron spec; empty = on demand only
	Timeout  time.Duration  // per-run timeout, default 10m
	Location *time.Location // schedule timezone, default UTC
	Logger   *zap.Logger
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running    bool                `json:"running"`
	Runs       int                 `json:"runs"`
	Skipped    int                 `json:"skipped"`
	LastRun    time.Time           `json:"last_run,omitempty"`
	LastResult *snapshot.RunResult `json:"last_result,omitempty"`
	NextRun    time.Time           `json:"next_run,omitempty"`
}

// Scheduler manages scheduled materializer runs.
type Scheduler struct {
	job     Job
	cron    *cron.Cron
	entryID cron.EntryID
	opts    Options
	logger  *zap.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc

	mu         sync.Mutex
	isRunning  bool
	started    bool
	runs       int
	skipped    int
	lastRun    time.Time
	lastResult *snapshot.RunResult
}

// New creates a scheduler for job.
func New(job Job, opts Options) *Scheduler {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		job:        job,
		cron:       cron.New(cron.WithLocation(opts.Location)),
		opts:       opts,
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler is already running")
	}

	if s.opts.Schedule != "" {
		id, err := s.cron.AddFunc(s.opts.Schedule, func() {
			if _, err := s.RunNow(s.ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				s.logger.Error("scheduled run failed", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %q: %w", s.opts.Schedule, err)
		}
		s.entryID = id
		s.logger.Info("materializer scheduled", zap.String("schedule", s.opts.Schedule))
	}

	s.cron.Start()
	s.started = true
	return nil
}

// Stop cancels in-flight runs and waits for the cron loop to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancelFunc()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow executes the job immediately unless a run is in progress.
func (s *Scheduler) RunNow(ctx context.Context) (*snapshot.RunResult, error) {
	s.mu.Lock()
	if s.isRunning {
		s.skipped++
		s.mu.Unlock()
		observability.RecordSkippedRun()
		s.logger.Warn("materializer already running, skipping")
		return nil, ErrRunInProgress
	}
	s.isRunning = true
	s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	result, err := s.job.Run(runCtx)

	s.mu.Lock()
	s.isRunning = false
	s.runs++
	s.lastRun = time.Now()
	s.lastResult = result
	s.mu.Unlock()

	return result, err
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.isRunning,
		Runs:       s.runs,
		Skipped:    s.skipped,
		LastRun:    s.lastRun,
		LastResult: s.lastResult,
	}
	if s.entryID != 0 {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}
	return st
}
