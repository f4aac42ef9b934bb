package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nl2sql-engine/core/ent"
	"github.com/nl2sql-engine/core/ent/pipelinerun"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/pipeline"
)

// PipelineRunExecutor adapts the control-graph orchestrator to RunExecutor,
// so a claimed PipelineRun row drives exactly the same RESOLVE..END graph
// the synchronous /v1/query HTTP path uses.
type PipelineRunExecutor struct {
	orch *pipeline.Orchestrator
}

// NewPipelineRunExecutor constructs an executor around an orchestrator.
func NewPipelineRunExecutor(orch *pipeline.Orchestrator) *PipelineRunExecutor {
	return &PipelineRunExecutor{orch: orch}
}

// Execute runs the control graph for a claimed run and maps the
// resulting GraphState onto a terminal ExecutionResult.
func (e *PipelineRunExecutor) Execute(ctx context.Context, run *ent.PipelineRun) *ExecutionResult {
	state := e.orch.Run(ctx, pipeline.Request{
		TraceID:   run.ID,
		UserQuery: run.UserQuery,
		UserContext: models.UserContext{
			UserID:   run.UserID,
			TenantID: run.TenantID,
		},
	})

	status := pipelinerun.StatusCompleted
	var execErr error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = pipelinerun.StatusTimedOut
		execErr = ctx.Err()
	case errors.Is(ctx.Err(), context.Canceled):
		status = pipelinerun.StatusCancelled
		execErr = ctx.Err()
	case len(state.Errors) > 0:
		status = pipelinerun.StatusFailed
		execErr = fmt.Errorf("%s", state.Errors[0].Message)
	}

	raw, err := json.Marshal(state)
	var result map[string]interface{}
	if err == nil {
		_ = json.Unmarshal(raw, &result)
	}

	return &ExecutionResult{
		Status: status,
		Result: result,
		Error:  execErr,
	}
}
