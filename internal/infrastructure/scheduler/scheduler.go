// Package scheduler runs the planner's background jobs on top of gocron.
// Jobs are registered with either a Go duration ("30s", "5m") or a
// 5-field cron expression ("*/5 * * * *").
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/alem-hub/training-planner/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Timezone for cron expressions (default: UTC).
	Timezone *time.Location

	// JobTimeout bounds a single run. Zero means no limit.
	JobTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:     slog.Default(),
		Timezone:   time.UTC,
		JobTimeout: 5 * time.Minute,
	}
}

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	cron       *gocron.Scheduler
	logger     *slog.Logger
	jobTimeout time.Duration

	jobs    map[string]*scheduledJob
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

type scheduledJob struct {
	job       Job
	schedule  string
	entry     *gocron.Job
	runCount  int64
	failCount int64
	last      *JobResult
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}

	cron := gocron.NewScheduler(cfg.Timezone)
	cron.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron,
		logger:     cfg.Logger.With(logger.Component("scheduler")),
		jobTimeout: cfg.JobTimeout,
		jobs:       make(map[string]*scheduledJob),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job. schedule is a duration or a cron expression.
// Interval jobs run once right after Start.
func (s *Scheduler) Register(job Job, schedule string) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == "" {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, schedule: schedule}

	var builder *gocron.Scheduler
	if interval, err := time.ParseDuration(schedule); err == nil {
		if interval <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidSchedule, schedule)
		}
		builder = s.cron.Every(interval)
	} else {
		builder = s.cron.Cron(schedule)
	}

	entry, err := builder.Tag(name).Do(s.runJob, sj)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchedule, schedule, err)
	}
	sj.entry = entry
	s.jobs[name] = sj

	s.logger.Info("job registered",
		slog.String("job", name),
		slog.String("description", job.Description()),
		slog.String("schedule", schedule),
	)
	return nil
}

// Unregister removes a job from the scheduler.
func (s *Scheduler) Unregister(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if err := s.cron.RemoveByTag(jobName); err != nil {
		return err
	}
	delete(s.jobs, jobName)

	s.logger.Info("job unregistered", slog.String("job", jobName))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the scheduler in the background. Jobs stop when ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true

	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()

	s.cron.StartAsync()
	s.logger.Info("scheduler started", slog.Int("jobs_count", len(s.jobs)))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// runJob is the gocron entry point of every job.
func (s *Scheduler) runJob(sj *scheduledJob) {
	s.execute(s.ctx, sj)
}

// RunNow executes a job synchronously, outside of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	result := s.execute(ctx, sj)
	return &result, nil
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) JobResult {
	name := sj.job.Name()
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	started := time.Now()
	err := runSafely(ctx, sj.job)
	completed := time.Now()

	result := JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Error:       err,
	}

	s.mu.Lock()
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	sj.last = &result
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			slog.String("job", name),
			logger.Latency(result.Duration),
			logger.Err(err),
		)
	} else {
		s.logger.Debug("job completed",
			slog.String("job", name),
			logger.Latency(result.Duration),
		)
	}
	return result
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB INFORMATION
// ══════════════════════════════════════════════════════════════════════════════

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  sj.last,
		}
		if sj.entry != nil {
			info.NextRun = sj.entry.NextRun()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job without a schedule.
	ErrNilSchedule = errors.New("schedule cannot be empty")

	// ErrInvalidSchedule is returned when a schedule is neither a positive
	// duration nor a valid cron expression.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobPanicked wraps a recovered panic of a job.
	ErrJobPanicked = errors.New("job panicked")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)
