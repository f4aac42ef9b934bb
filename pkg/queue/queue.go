package queue

import (
	"context"
	"fmt"

	"github.com/nl2sql-engine/core/ent"
	"github.com/nl2sql-engine/core/pkg/models"
)

// EnqueueRequest is the submission shape for one asynchronous pipeline run.
type EnqueueRequest struct {
	TraceID     string
	UserQuery   string
	UserContext models.UserContext
}

// PipelineRunQueue is how work enters the system as a durable, claimable
// row instead of an in-process call: HTTP handlers enqueue a run, and
// WorkerPool/Worker instances (possibly in other pods) claim and process
// it independently of the request that submitted it.
type PipelineRunQueue struct {
	client *ent.Client
}

// NewPipelineRunQueue constructs a queue backed by the given ent client.
func NewPipelineRunQueue(client *ent.Client) *PipelineRunQueue {
	return &PipelineRunQueue{client: client}
}

// Enqueue inserts a new queued PipelineRun row and returns it. The row is
// invisible to workers until the transaction commits, so a crash between
// Enqueue and the caller's response simply leaves the run queued for a
// later claim.
func (q *PipelineRunQueue) Enqueue(ctx context.Context, req EnqueueRequest) (*ent.PipelineRun, error) {
	if req.TraceID == "" {
		return nil, fmt.Errorf("trace id is required")
	}
	if req.UserQuery == "" {
		return nil, fmt.Errorf("user query is required")
	}

	run, err := q.client.PipelineRun.Create().
		SetID(req.TraceID).
		SetTenantID(req.UserContext.TenantID).
		SetUserID(req.UserContext.UserID).
		SetUserQuery(req.UserQuery).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("enqueue run %s: %w", req.TraceID, err)
	}
	return run, nil
}

// Get returns the current row for a run, for status polling.
func (q *PipelineRunQueue) Get(ctx context.Context, traceID string) (*ent.PipelineRun, error) {
	return q.client.PipelineRun.Get(ctx, traceID)
}
