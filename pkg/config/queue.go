package config

import "time"

// QueueConfig contains worker pool configuration for the pipeline run
// queue (spec.md §7). These values control how queued runs are polled,
// claimed, and processed, and how stale claims are detected.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and claims runs.
	WorkerCount int `yaml:"worker_count,omitempty" validate:"omitempty,min=1"`

	// MaxConcurrentRuns is the global limit of concurrent pipeline runs
	// being processed across ALL replicas/pods. Enforced by a database
	// COUNT(*) check before each claim attempt.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs,omitempty" validate:"omitempty,min=1"`

	// PollInterval is the base interval for checking queued runs.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval +/- PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter,omitempty"`

	// RunTimeout is the maximum time a single run may execute before its
	// context is cancelled and it is marked timed_out.
	RunTimeout time.Duration `yaml:"run_timeout,omitempty"`

	// HeartbeatInterval is how often a claimed run's last_heartbeat_at is
	// refreshed while it executes.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval,omitempty"`

	// OrphanDetectionInterval is how often to scan for orphaned runs.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval,omitempty"`

	// OrphanThreshold is how long a running run can go without a
	// heartbeat before it is considered orphaned.
	OrphanThreshold time.Duration `yaml:"orphan_threshold,omitempty"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentRuns:       5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		RunTimeout:              2 * time.Minute,
		HeartbeatInterval:       10 * time.Second,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         3 * time.Minute,
	}
}
