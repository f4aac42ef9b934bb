package subgraph

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/resilience"
)

const planResponseSchemaName = "ast_plan_response"

var planResponseSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["query_type", "tables", "select_items"],
  "properties": {
    "query_type": {"type": "string", "enum": ["READ"]},
    "tables": {"type": "array"},
    "joins": {"type": "array"},
    "select_items": {"type": "array"},
    "where": {"type": ["object", "null"]},
    "group_by": {"type": "array"},
    "having": {"type": ["object", "null"]},
    "order_by": {"type": "array"},
    "limit": {"type": ["integer", "null"]}
  }
}`)

// plan implements spec.md §4.8.2: invoke the StructuredLLM with the
// intent, serialized relevant tables, expected schema, and (on retry)
// accumulated refiner feedback. Returns PLANNING_FAILURE (retryable) on
// any transport or breaker failure.
func (sg *Subgraph) plan(ctx context.Context, state *models.SubgraphExecutionState) *models.PipelineError {
	prompt := sg.buildPlanPrompt(state)

	var resp models.PlanModel
	invoke := func(ctx context.Context) error {
		return sg.deps.LLM.Invoke(ctx, llmclient.Request{Prompt: prompt, ResponseSchema: planResponseSchema, SchemaName: planResponseSchemaName}, &resp)
	}

	var err error
	if sg.deps.LLMBreaker != nil {
		err = sg.deps.LLMBreaker.Do(ctx, resilience.LLMShouldTrip, invoke)
	} else {
		err = invoke(ctx)
	}
	if err != nil {
		e := models.NewPipelineError(models.ErrPlanningFailure, "ast planner invocation failed", map[string]any{"error": err.Error(), "retry_count": state.RetryCount})
		return &e
	}

	state.Plan = &resp
	return nil
}

func (sg *Subgraph) buildPlanPrompt(state *models.SubgraphExecutionState) string {
	var sb strings.Builder
	sb.WriteString("Produce a read-only, strictly-typed query plan for the following intent. ")
	sb.WriteString("Only reference tables and columns from the provided schema. query_type must be READ.\n\n")
	sb.WriteString("Intent: " + state.SubQuery.Intent + "\n")
	if len(state.SubQuery.ExpectedSchema) > 0 {
		sb.WriteString("Expected output columns: " + strings.Join(state.SubQuery.ExpectedSchema, ", ") + "\n")
	}
	sb.WriteString("Relevant tables:\n")
	sb.WriteString(sg.deps.Prompts.FormatRelevantTables(state.RelevantTables, sg.deps.SchemaContextTokenBudget))
	sb.WriteString("\n")
	if state.RefinerResp != nil && state.RefinerResp.Feedback != "" {
		sb.WriteString("\nPrior attempt failed. Corrective feedback:\n" + state.RefinerResp.Feedback + "\n")
	}
	return sb.String()
}
