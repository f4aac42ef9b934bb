// Package queue provides pipeline run queue management and worker pool
// processing infrastructure.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/nl2sql-engine/core/ent"
	"github.com/nl2sql-engine/core/ent/pipelinerun"
)

// Sentinel errors for queue operations.
var (
	// ErrNoRunsAvailable indicates no queued runs are waiting to be claimed.
	ErrNoRunsAvailable = errors.New("no runs available")

	// ErrAtCapacity indicates the global concurrent run limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// RunExecutor is the interface for pipeline run processing.
//
// The executor owns the entire run's orchestration: it drives the
// control graph (RESOLVE through END) to completion or failure. It does
// not write status transitions itself — the worker owns claiming,
// heartbeat, and terminal status update around the call to Execute.
type RunExecutor interface {
	Execute(ctx context.Context, run *ent.PipelineRun) *ExecutionResult
}

// ExecutionResult is the terminal outcome of one pipeline run.
type ExecutionResult struct {
	Status pipelinerun.Status     // completed, failed, timed_out, cancelled
	Result map[string]interface{} // marshaled terminal GraphState (if completed)
	Error  error                  // error details (if failed/timed_out)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveRuns       int            `json:"active_runs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"` // "idle" or "working"
	CurrentRunID     string    `json:"current_run_id,omitempty"`
	RunsProcessed    int       `json:"runs_processed"`
	LastActivity     time.Time `json:"last_activity"`
}
