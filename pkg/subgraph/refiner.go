package subgraph

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/resilience"
)

const refinerResponseSchemaName = "refiner_response"

var refinerResponseSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["feedback"],
  "properties": {
    "feedback": {"type": "string"}
  }
}`)

// refine turns the accumulated validator/planner errors into corrective
// feedback text the ASTPlanner folds into its next prompt, per
// spec.md §4.8.7. A breaker trip or transport failure degrades to a
// deterministic feedback string built from the errors themselves rather
// than failing the subgraph outright — the refiner's job is advisory,
// the retry loop's own budget is what ultimately bounds the cycle.
func (sg *Subgraph) refine(ctx context.Context, state *models.SubgraphExecutionState) models.RefinerResponse {
	prompt := sg.buildRefinePrompt(state)

	var resp models.RefinerResponse
	invoke := func(ctx context.Context) error {
		return sg.deps.LLM.Invoke(ctx, llmclient.Request{Prompt: prompt, ResponseSchema: refinerResponseSchema, SchemaName: refinerResponseSchemaName}, &resp)
	}

	var err error
	if sg.deps.LLMBreaker != nil {
		err = sg.deps.LLMBreaker.Do(ctx, resilience.LLMShouldTrip, invoke)
	} else {
		err = invoke(ctx)
	}
	if err != nil {
		return models.RefinerResponse{Feedback: fallbackFeedback(state)}
	}
	if resp.Feedback == "" {
		return models.RefinerResponse{Feedback: fallbackFeedback(state)}
	}
	return resp
}

func (sg *Subgraph) buildRefinePrompt(state *models.SubgraphExecutionState) string {
	var sb strings.Builder
	sb.WriteString("The following query plan failed validation. Produce concise corrective feedback ")
	sb.WriteString("the planner can use to fix the plan on its next attempt.\n\n")
	sb.WriteString("Intent: " + state.SubQuery.Intent + "\n\nErrors:\n")
	for _, e := range latestErrors(state) {
		sb.WriteString("- [" + string(e.Code) + "] " + e.Message + "\n")
	}
	return sb.String()
}

// fallbackFeedback concatenates the latest round's error messages
// deterministically, used when the refiner LLM itself is unavailable.
func fallbackFeedback(state *models.SubgraphExecutionState) string {
	var sb strings.Builder
	for i, e := range latestErrors(state) {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Message)
	}
	return sb.String()
}

// latestErrors returns the error entries appended since the prior
// refine cycle: everything from the plan() and validate() calls that
// just ran, i.e. the tail of state.Errors not yet covered by a prior
// PLAN_FEEDBACK marker.
func latestErrors(state *models.SubgraphExecutionState) []models.PipelineError {
	cut := 0
	for i := len(state.Errors) - 1; i >= 0; i-- {
		if state.Errors[i].Code == models.ErrPlanFeedback {
			cut = i + 1
			break
		}
	}
	return state.Errors[cut:]
}
