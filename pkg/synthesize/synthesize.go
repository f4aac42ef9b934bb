// Package synthesize turns the aggregator's terminal result frames into
// a human-readable answer via a single StructuredLLM call. Synthesis
// failures are never fatal: the terminal frames remain available to the
// caller even when the summary could not be produced. Grounded on
// pkg/agent/controller/synthesis.go's final-answer composition and
// pkg/agent/prompt/orchestrator.go's prompt assembly.
package synthesize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
)

const responseSchemaName = "synthesizer_response"

var responseSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["answer"],
  "properties": {
    "answer": {"type": "string"}
  }
}`)

type llmResponse struct {
	Answer string `json:"answer"`
}

// Synthesizer produces the final natural-language answer.
type Synthesizer struct {
	llm llmclient.StructuredLLM
}

// New constructs a Synthesizer.
func New(llm llmclient.StructuredLLM) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// Synthesize calls the LLM to summarize terminal results plus any
// subqueries the decomposer could not map. On any failure it returns a
// PipelineError of warning severity — the caller's raw terminal_results
// remain the source of truth regardless of synthesis's outcome.
func (s *Synthesizer) Synthesize(ctx context.Context, userQuery string, terminal map[string]models.ResultFrame, unmapped []models.SubQuery) (models.SynthesizerResponse, *models.PipelineError) {
	prompt := buildPrompt(userQuery, terminal, unmapped)

	var raw llmResponse
	if err := s.llm.Invoke(ctx, llmclient.Request{Prompt: prompt, ResponseSchema: responseSchema, SchemaName: responseSchemaName}, &raw); err != nil {
		warning := models.NewPipelineError(models.ErrSynthesisFailed, "answer synthesis failed; raw results are still available", map[string]any{"error": err.Error()})
		return models.SynthesizerResponse{}, &warning
	}

	return models.SynthesizerResponse{Answer: raw.Answer}, nil
}

func buildPrompt(userQuery string, terminal map[string]models.ResultFrame, unmapped []models.SubQuery) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following query results in clear natural language for the end user. ")
	sb.WriteString("Do not invent data not present in the results.\n\n")
	sb.WriteString("Question: " + userQuery + "\n\n")

	ids := make([]string, 0, len(terminal))
	for id := range terminal {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		frame := terminal[id]
		sb.WriteString(fmt.Sprintf("Result %s (%d rows, columns: %s):\n", id, frame.RowCount, strings.Join(frame.Columns, ", ")))
		encoded, err := json.Marshal(frame.Rows)
		if err == nil {
			sb.WriteString(string(encoded) + "\n")
		}
	}

	if len(unmapped) > 0 {
		sb.WriteString("\nThe following parts of the question could not be answered (no matching datasource):\n")
		for _, sq := range unmapped {
			sb.WriteString("- " + sq.Intent + "\n")
		}
	}

	return sb.String()
}
