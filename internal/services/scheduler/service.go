package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/interfaces"
)

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func(ctx context.Context) error
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service implements SchedulerService interface
type Service struct {
	cron     *cron.Cron
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // Protects running
	jobMu    sync.Mutex // Protects jobs map
	globalMu sync.Mutex // Prevents concurrent job execution
	jobs     map[string]*jobEntry
	running  bool
}

// Compile-time assertion
var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*jobEntry),
	}
}

// Start begins firing registered jobs
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.jobMu.Lock()
	for _, entry := range s.jobs {
		s.logger.Info().
			Str("job_name", entry.name).
			Str("schedule", entry.schedule).
			Str("next_run", s.cron.Entry(entry.cronID).Next.Format(time.RFC3339)).
			Msg("Job scheduled")
	}
	s.jobMu.Unlock()

	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler. A job in progress is cancelled and awaited until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	s.cancel()
	stopped := s.cron.Stop()
	s.running = false

	select {
	case <-stopped.Done():
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stopped before running job returned")
		return ctx.Err()
	}
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RegisterJob registers a new job with the scheduler
func (s *Service) RegisterJob(name, schedule, description string, handler func(ctx context.Context) error) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*interfaces.JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	status := &interfaces.JobStatus{
		Name:        entry.name,
		Schedule:    entry.schedule,
		Description: entry.description,
		LastRun:     entry.lastRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
	}
	if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
		status.NextRun = &next
	}
	return status, nil
}

// executeJob runs one job. Runs never overlap: a firing that arrives while another
// job is still running waits for it.
func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Msg("PANIC RECOVERED in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	s.logger.Info().Str("job_name", name).Msg("Job execution started")
	start := time.Now()

	err := handler(s.ctx)

	completionTime := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completionTime
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("elapsed", completionTime.Sub(start)).
			Msg("Job execution failed")
		return
	}
	s.logger.Info().
		Str("job_name", name).
		Dur("elapsed", completionTime.Sub(start)).
		Msg("Job execution completed")
}
