package subgraph

import (
	"context"

	"github.com/nl2sql-engine/core/pkg/datasource"
	"github.com/nl2sql-engine/core/pkg/models"
)

// physicalValidate runs an optional dry-run/cost-estimate preflight
// against the adapter before execution, per spec.md §4.8.6. It is
// gated on both cfg.PhysicalValidation and the adapter actually
// advertising the capability; an adapter that doesn't implement
// DryRunner or CostEstimator is treated as a no-op pass, not a failure,
// since physical validation is advisory and off by default.
func (sg *Subgraph) physicalValidate(ctx context.Context, state *models.SubgraphExecutionState) *models.PipelineError {
	genResp, genErr := sg.generate(state)
	if genErr != nil {
		return genErr
	}

	caps := sg.deps.Adapter.Capabilities()

	if caps.SupportsDryRun {
		if runner, ok := sg.deps.Adapter.(datasource.DryRunner); ok {
			if err := runner.DryRun(ctx, genResp.SQL); err != nil {
				e := models.NewPipelineError(models.ErrExecutionFailed, "physical dry-run rejected the generated sql", map[string]any{"error": err.Error()})
				return &e
			}
		}
	}

	if caps.SupportsCostEstimate {
		if estimator, ok := sg.deps.Adapter.(datasource.CostEstimator); ok {
			if _, err := estimator.CostEstimate(ctx, genResp.SQL); err != nil {
				e := models.NewPipelineError(models.ErrExecutionFailed, "cost estimation failed during physical validation", map[string]any{"error": err.Error()})
				return &e
			}
		}
	}

	return nil
}
