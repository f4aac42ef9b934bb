package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nl2sql-engine/core/ent"
	"github.com/nl2sql-engine/core/ent/pipelinerun"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned runs.
// All pods run this independently — operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds running runs with stale heartbeats and
// marks them as timed_out (terminal state).
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.config.OrphanThreshold)

	orphans, err := p.client.PipelineRun.Query().
		Where(
			pipelinerun.StatusEQ(pipelinerun.StatusRunning),
			pipelinerun.LastHeartbeatAtNotNil(),
			pipelinerun.LastHeartbeatAtLT(threshold),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to query orphaned runs: %w", err)
	}

	if len(orphans) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("detected orphaned runs", "count", len(orphans))

	recovered := 0
	failed := 0
	for _, run := range orphans {
		if err := p.recoverOrphanedRun(ctx, run); err != nil {
			slog.Error("failed to recover orphaned run", "trace_id", run.ID, "error", err)
			failed++
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	if failed > 0 {
		slog.Warn("orphan recovery completed with failures",
			"total_orphans", len(orphans), "recovered", recovered, "failed", failed)
	}

	return nil
}

// recoverOrphanedRun marks a single orphaned run as timed_out.
func (p *WorkerPool) recoverOrphanedRun(ctx context.Context, run *ent.PipelineRun) error {
	log := slog.With("trace_id", run.ID, "old_pod_id", run.PodID)

	lastHeartbeat := "unknown"
	if run.LastHeartbeatAt != nil {
		lastHeartbeat = run.LastHeartbeatAt.Format(time.RFC3339)
	}

	podID := "unknown"
	if run.PodID != nil {
		podID = *run.PodID
	}

	errorMsg := fmt.Sprintf("orphaned: no heartbeat from pod %s since %s", podID, lastHeartbeat)
	if err := markRunTimedOut(ctx, p.client, run.ID, errorMsg); err != nil {
		return err
	}

	log.Warn("orphaned run marked as timed_out", "last_heartbeat", lastHeartbeat)
	return nil
}

// CleanupStartupOrphans performs a one-time cleanup of runs owned by this
// pod that were running when the pod previously crashed. Called once
// during startup, before the worker pool begins processing.
func CleanupStartupOrphans(ctx context.Context, client *ent.Client, podID string) error {
	orphans, err := client.PipelineRun.Query().
		Where(
			pipelinerun.StatusEQ(pipelinerun.StatusRunning),
			pipelinerun.PodIDEQ(podID),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}

	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("found startup orphans from previous run", "pod_id", podID, "count", len(orphans))

	for _, run := range orphans {
		errorMsg := fmt.Sprintf("orphaned: pod %s restarted while run was in progress", podID)
		if err := markRunTimedOut(ctx, client, run.ID, errorMsg); err != nil {
			slog.Error("failed to mark startup orphan", "trace_id", run.ID, "error", err)
			continue
		}
		slog.Info("startup orphan recovered", "trace_id", run.ID)
	}

	return nil
}

// markRunTimedOut marks a run as timed_out (terminal, no resume).
func markRunTimedOut(ctx context.Context, client *ent.Client, runID, errorMsg string) error {
	now := time.Now()
	return client.PipelineRun.UpdateOneID(runID).
		SetStatus(pipelinerun.StatusTimedOut).
		SetCompletedAt(now).
		SetErrorMessage(errorMsg).
		Exec(ctx)
}
