package interfaces

import (
	"context"
	"time"
)

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name        string
	Schedule    string
	Description string
	LastRun     *time.Time
	NextRun     *time.Time
	IsRunning   bool
	LastError   string
}

// SchedulerService manages cron-based scheduling
type SchedulerService interface {
	// Start the scheduler
	Start() error

	// Stop the scheduler and wait for a running job to return
	Stop(ctx context.Context) error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// RegisterJob registers a new job with the scheduler
	RegisterJob(name, schedule, description string, handler func(ctx context.Context) error) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*JobStatus, error)
}
