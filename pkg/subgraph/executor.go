package subgraph

import (
	"context"

	"github.com/nl2sql-engine/core/pkg/datasource"
	"github.com/nl2sql-engine/core/pkg/models"
)

// execute runs the generated SQL against the subquery's datasource
// through the DB breaker, then persists the resulting frame as an
// artifact, per spec.md §4.8.5. The frame itself never flows back into
// GraphState; only the ArtifactRef does, so scan-layer fan-in stays
// bounded regardless of row volume.
func (sg *Subgraph) execute(ctx context.Context, state *models.SubgraphExecutionState, gen models.GeneratorResponse) (models.ExecutorResponse, *models.PipelineError) {
	if gen.SQL == "" {
		e := models.NewPipelineError(models.ErrMissingSQL, "generator produced no SQL to execute", nil)
		return models.ExecutorResponse{}, &e
	}
	if sg.deps.Adapter.DatasourceID() == "" {
		e := models.NewPipelineError(models.ErrMissingDatasourceID, "subgraph has no datasource id to execute against", nil)
		return models.ExecutorResponse{}, &e
	}

	req := datasource.Request{
		PlanType: "sql",
		Payload:  gen.SQL,
		Limits: datasource.Limits{
			RowLimit:  gen.EffectiveLimit,
			ByteLimit: sg.deps.Adapter.MaxBytes(),
		},
		TraceID:  state.TraceID,
		TenantID: state.UserContext.TenantID,
	}

	var frame models.ResultFrame
	invoke := func(ctx context.Context) error {
		f, err := sg.deps.Adapter.Execute(ctx, req)
		if err != nil {
			return err
		}
		frame = f
		return nil
	}

	var err error
	if sg.deps.DBBreaker != nil {
		err = sg.deps.DBBreaker.Do(ctx, nil, invoke)
	} else {
		err = invoke(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			e := models.NewPipelineError(models.ErrExecutionTimeout, "execution timed out or was cancelled", map[string]any{"error": err.Error()})
			return models.ExecutorResponse{}, &e
		}
		e := models.NewPipelineError(models.ErrExecutionFailed, "adapter execution failed", map[string]any{"error": err.Error(), "datasource_id": sg.deps.Adapter.DatasourceID()})
		return models.ExecutorResponse{}, &e
	}
	if frame.Error != "" {
		e := models.NewPipelineError(models.ErrExecutionFailed, "adapter reported a frame-level error", map[string]any{"error": frame.Error, "datasource_id": sg.deps.Adapter.DatasourceID()})
		return models.ExecutorResponse{}, &e
	}

	ref, err := sg.deps.Artifacts.Put(ctx, state.UserContext.TenantID, state.TraceID, sg.cfg.SubgraphName, state.SubgraphID, state.SubQuery.SchemaVersion, frame)
	if err != nil {
		e := models.NewPipelineError(models.ErrExecutionFailed, "failed to persist result artifact", map[string]any{"error": err.Error()})
		return models.ExecutorResponse{}, &e
	}

	return models.ExecutorResponse{Frame: &frame, Artifact: &ref}, nil
}
