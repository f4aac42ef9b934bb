package synthesize

import (
	"context"
	"errors"
	"testing"

	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_ReturnsAnswer(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddSequential(llmclient.ScriptEntry{Response: map[string]any{"answer": "Revenue was $300 across two regions."}})

	s := New(llm)
	resp, perr := s.Synthesize(context.Background(), "what was revenue", map[string]models.ResultFrame{
		"combine_g1": {Columns: []string{"region", "revenue"}, Rows: [][]any{{"west", 100.0}, {"east", 200.0}}, RowCount: 2},
	}, nil)
	require.Nil(t, perr)
	assert.Equal(t, "Revenue was $300 across two regions.", resp.Answer)
}

func TestSynthesize_FailureIsNonFatalWarning(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddSequential(llmclient.ScriptEntry{Err: errors.New("provider unavailable")})

	s := New(llm)
	_, perr := s.Synthesize(context.Background(), "what was revenue", map[string]models.ResultFrame{}, nil)
	require.NotNil(t, perr)
	assert.Equal(t, models.ErrSynthesisFailed, perr.Code)
	assert.Equal(t, models.SeverityWarning, perr.Severity)
	assert.False(t, perr.Retryable)
}

func TestSynthesize_IncludesUnmappedSubqueries(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddSequential(llmclient.ScriptEntry{Response: map[string]any{"answer": "ok"}})

	s := New(llm)
	unmapped := []models.SubQuery{{Intent: "weather forecast for next week"}}
	_, perr := s.Synthesize(context.Background(), "weather and revenue", map[string]models.ResultFrame{}, unmapped)
	require.Nil(t, perr)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "weather forecast for next week")
}
