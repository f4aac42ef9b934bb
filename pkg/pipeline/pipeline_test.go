package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/nl2sql-engine/core/pkg/artifact/localfs"
	"github.com/nl2sql-engine/core/pkg/datasource"
	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/policy"
	"github.com/nl2sql-engine/core/pkg/resilience"
	"github.com/nl2sql-engine/core/pkg/schemastore/inmemory"
	"github.com/nl2sql-engine/core/pkg/sqlbuilder/genericsql"
	"github.com/nl2sql-engine/core/pkg/subgraph"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	dsID  string
	frame models.ResultFrame
}

func (f *fakeAdapter) DatasourceID() string             { return f.dsID }
func (f *fakeAdapter) EngineType() string               { return "fake" }
func (f *fakeAdapter) Dialect() string                  { return "generic" }
func (f *fakeAdapter) RowLimit() int                    { return 1000 }
func (f *fakeAdapter) MaxBytes() int64                  { return 1 << 20 }
func (f *fakeAdapter) Capabilities() models.Capabilities { return models.Capabilities{SupportsSQL: true} }
func (f *fakeAdapter) FetchSchemaSnapshot(ctx context.Context) (models.SchemaSnapshot, error) {
	return models.SchemaSnapshot{}, nil
}
func (f *fakeAdapter) Execute(ctx context.Context, req datasource.Request) (models.ResultFrame, error) {
	return f.frame, nil
}

// slowAdapter never returns on its own; it only unblocks when ctx is
// cancelled, simulating a datasource call that outlives the pipeline's
// global deadline.
type slowAdapter struct {
	dsID string
}

func (f *slowAdapter) DatasourceID() string             { return f.dsID }
func (f *slowAdapter) EngineType() string                { return "fake" }
func (f *slowAdapter) Dialect() string                   { return "generic" }
func (f *slowAdapter) RowLimit() int                     { return 1000 }
func (f *slowAdapter) MaxBytes() int64                   { return 1 << 20 }
func (f *slowAdapter) Capabilities() models.Capabilities { return models.Capabilities{SupportsSQL: true} }
func (f *slowAdapter) FetchSchemaSnapshot(ctx context.Context) (models.SchemaSnapshot, error) {
	return models.SchemaSnapshot{}, nil
}
func (f *slowAdapter) Execute(ctx context.Context, req datasource.Request) (models.ResultFrame, error) {
	<-ctx.Done()
	return models.ResultFrame{}, ctx.Err()
}

func opsContract() models.SchemaContract {
	return models.SchemaContract{
		Tables: map[string]models.TableContract{
			"machines": {
				Columns: map[string]models.ColumnContract{
					"id":   {Type: "int"},
					"name": {Type: "string"},
				},
				PrimaryKey: []string{"id"},
			},
		},
	}
}

func machinesPlanResponse() map[string]any {
	return map[string]any{
		"query_type": "READ",
		"tables": []map[string]any{
			{"ordinal": 0, "name": "machines", "alias": "m"},
		},
		"joins": []any{},
		"select_items": []map[string]any{
			{"ordinal": 0, "expr": map[string]any{"kind": "column", "alias": "m", "column": "id"}, "alias": "id"},
			{"ordinal": 1, "expr": map[string]any{"kind": "column", "alias": "m", "column": "name"}, "alias": "name"},
		},
		"group_by": []any{},
		"order_by": []any{},
		"limit":    5,
	}
}

func decomposerResponseFor(dsID string) map[string]any {
	return map[string]any{
		"sub_queries": []map[string]any{
			{
				"temp_id":         "t1",
				"datasource_id":   dsID,
				"intent":          "list 5 machines",
				"expected_schema": []string{"id", "name"},
			},
		},
	}
}

func unionDecomposerResponse(dsA, dsB string) map[string]any {
	return map[string]any{
		"sub_queries": []map[string]any{
			{"temp_id": "t1", "datasource_id": dsA, "intent": "list machines in the first plant", "expected_schema": []string{"id", "name"}},
			{"temp_id": "t2", "datasource_id": dsB, "intent": "list machines in the second plant", "expected_schema": []string{"id", "name"}},
		},
		"combine_groups": []map[string]any{
			{"temp_id": "cg1", "op": "union", "inputs": []string{"t1", "t2"}},
		},
	}
}

func newTestOrchestrator(t *testing.T, dsID string, roles map[string]policy.Role, llm llmclient.StructuredLLM) *Orchestrator {
	t.Helper()

	store := inmemory.New(0)
	_, err := store.Register(context.Background(), dsID, opsContract(), models.SchemaMetadata{})
	require.NoError(t, err)

	eng, err := policy.Load(roles)
	require.NoError(t, err)

	registry := datasource.NewRegistry()
	registry.Register(&fakeAdapter{
		dsID:  dsID,
		frame: models.ResultFrame{Columns: []string{"id", "name"}, Rows: [][]any{{1.0, "lathe"}}, RowCount: 1},
	})

	subgraphs := datasource.NewSubgraphRegistry()
	subgraphs.Register(datasource.SubgraphDescriptor{Name: "sql_agent", RequiredCapabilities: models.Capabilities{SupportsSQL: true}})

	dir := t.TempDir()
	fs, err := localfs.New(dir)
	require.NoError(t, err)

	deps := Deps{
		VectorIndex: nil,
		SchemaStore: store,
		Policy:      eng,
		Datasources: registry,
		Subgraphs:   subgraphs,
		LLM:         llm,
		SQLBuilder:  genericsql.New(),
		Artifacts:   fs,
		LLMBreaker:  resilience.New(resilience.LLMBreakerName, resilience.Config{}),
		DBBreaker:   resilience.New(resilience.DBBreakerName, resilience.Config{}),
		SubgraphCfg: subgraph.Config{StrictColumns: true, Retry: subgraph.RetryPolicy{MaxRetries: 1}},
	}

	return New(deps, Config{})
}

// newMultiDSTestOrchestrator wires two registered datasources sharing the
// same table/column shape, each with its own fake adapter frame, used by
// the two-datasource combine scenario.
func newMultiDSTestOrchestrator(t *testing.T, dsA, dsB string, frames map[string]models.ResultFrame, roles map[string]policy.Role, llm llmclient.StructuredLLM) *Orchestrator {
	t.Helper()

	store := inmemory.New(0)
	for _, ds := range []string{dsA, dsB} {
		_, err := store.Register(context.Background(), ds, opsContract(), models.SchemaMetadata{})
		require.NoError(t, err)
	}

	eng, err := policy.Load(roles)
	require.NoError(t, err)

	registry := datasource.NewRegistry()
	for _, ds := range []string{dsA, dsB} {
		registry.Register(&fakeAdapter{dsID: ds, frame: frames[ds]})
	}

	subgraphs := datasource.NewSubgraphRegistry()
	subgraphs.Register(datasource.SubgraphDescriptor{Name: "sql_agent", RequiredCapabilities: models.Capabilities{SupportsSQL: true}})

	dir := t.TempDir()
	fs, err := localfs.New(dir)
	require.NoError(t, err)

	deps := Deps{
		SchemaStore: store,
		Policy:      eng,
		Datasources: registry,
		Subgraphs:   subgraphs,
		LLM:         llm,
		SQLBuilder:  genericsql.New(),
		Artifacts:   fs,
		LLMBreaker:  resilience.New(resilience.LLMBreakerName, resilience.Config{}),
		DBBreaker:   resilience.New(resilience.DBBreakerName, resilience.Config{}),
		SubgraphCfg: subgraph.Config{StrictColumns: true, Retry: subgraph.RetryPolicy{MaxRetries: 1}},
	}

	return New(deps, Config{})
}

// Scenario 1 (spec.md §8): single-datasource, single-scan request
// produces exactly one artifact and a non-empty synthesized answer with
// no errors.
func TestOrchestrator_SingleDatasourceSingleScan(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddRouted("decomposer_response", llmclient.ScriptEntry{Response: decomposerResponseFor("ops")})
	llm.AddRouted("ast_plan_response", llmclient.ScriptEntry{Response: machinesPlanResponse()})
	llm.AddRouted("synthesizer_response", llmclient.ScriptEntry{Response: map[string]any{"answer": "Here are 5 machines."}})

	orch := newTestOrchestrator(t, "ops", map[string]policy.Role{
		"analyst": {AllowedDatasources: []string{"ops"}, AllowedTables: []string{"ops.machines"}},
	}, llm)

	state := orch.Run(context.Background(), Request{
		TraceID:     "trace-1",
		UserQuery:   "List 5 machines",
		UserContext: models.UserContext{UserID: "u1", TenantID: "t1", Roles: []string{"analyst"}},
	})

	require.Empty(t, state.Errors, "expected no errors, got %+v", state.Errors)
	require.NotNil(t, state.PlannerResp)
	require.Len(t, state.PlannerResp.Nodes, 1)
	require.Len(t, state.ArtifactRefs, 1)
	require.NotNil(t, state.AggregatorResp)
	require.Len(t, state.AggregatorResp.TerminalResults, 1)
	require.NotNil(t, state.SynthResp)
	require.NotEmpty(t, state.SynthResp.Answer)
}

// Scenario 3 (spec.md §8): a user whose roles don't grant the requested
// datasource gets a graceful empty result at the resolve gate — no SQL
// is ever planned or executed.
func TestOrchestrator_RBACDenialAtResolve(t *testing.T) {
	llm := llmclient.NewScripted()

	orch := newTestOrchestrator(t, "ops", map[string]policy.Role{
		"hr_only": {AllowedDatasources: []string{"hr_db"}, AllowedTables: []string{"hr_db.*"}},
	}, llm)

	state := orch.Run(context.Background(), Request{
		TraceID:     "trace-2",
		UserQuery:   "List 5 machines",
		UserContext: models.UserContext{UserID: "u2", TenantID: "t1", Roles: []string{"hr_only"}},
	})

	require.Empty(t, state.Errors)
	require.Nil(t, state.ResolverResp)
	require.Nil(t, state.PlannerResp)
	require.Empty(t, state.ArtifactRefs)
	require.Nil(t, state.SynthResp)
	require.Equal(t, 0, llm.CallCount())
}

// Scenario 6 (spec.md §8): two runs against identical registrations with
// a deterministic LLM stub produce byte-identical subquery IDs and DAG
// content hashes.
func TestOrchestrator_DeterministicAcrossRuns(t *testing.T) {
	roles := map[string]policy.Role{
		"analyst": {AllowedDatasources: []string{"ops"}, AllowedTables: []string{"ops.machines"}},
	}
	uc := models.UserContext{UserID: "u1", TenantID: "t1", Roles: []string{"analyst"}}

	run := func() *models.GraphState {
		llm := llmclient.NewScripted()
		llm.AddRouted("decomposer_response", llmclient.ScriptEntry{Response: decomposerResponseFor("ops")})
		llm.AddRouted("ast_plan_response", llmclient.ScriptEntry{Response: machinesPlanResponse()})
		llm.AddRouted("synthesizer_response", llmclient.ScriptEntry{Response: map[string]any{"answer": "ok"}})
		orch := newTestOrchestrator(t, "ops", roles, llm)
		return orch.Run(context.Background(), Request{TraceID: "trace-x", UserQuery: "List 5 machines", UserContext: uc})
	}

	first := run()
	second := run()

	require.Empty(t, first.Errors)
	require.Empty(t, second.Errors)
	require.Equal(t, first.PlannerResp.ContentHash, second.PlannerResp.ContentHash)
	require.Equal(t, first.PlannerResp.DAGID, second.PlannerResp.DAGID)
	require.Equal(t, first.DecomposerResp.SubQueries[0].ID, second.DecomposerResp.SubQueries[0].ID)
}

// Scenario 2 (spec.md §8): two subqueries against two distinct
// datasources are scanned independently and unioned by a combine node;
// the terminal result carries both datasources' rows.
func TestOrchestrator_TwoDatasourceUnionCombine(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddRouted("decomposer_response", llmclient.ScriptEntry{Response: unionDecomposerResponse("plant_a", "plant_b")})
	llm.AddRouted("ast_plan_response", llmclient.ScriptEntry{Response: machinesPlanResponse()})
	llm.AddRouted("ast_plan_response", llmclient.ScriptEntry{Response: machinesPlanResponse()})
	llm.AddRouted("synthesizer_response", llmclient.ScriptEntry{Response: map[string]any{"answer": "Combined machine list across both plants."}})

	frames := map[string]models.ResultFrame{
		"plant_a": {Columns: []string{"id", "name"}, Rows: [][]any{{1.0, "lathe"}}, RowCount: 1},
		"plant_b": {Columns: []string{"id", "name"}, Rows: [][]any{{2.0, "press"}}, RowCount: 1},
	}

	orch := newMultiDSTestOrchestrator(t, "plant_a", "plant_b", frames, map[string]policy.Role{
		"analyst": {AllowedDatasources: []string{"plant_a", "plant_b"}, AllowedTables: []string{"plant_a.machines", "plant_b.machines"}},
	}, llm)

	state := orch.Run(context.Background(), Request{
		TraceID:     "trace-union",
		UserQuery:   "List machines across both plants",
		UserContext: models.UserContext{UserID: "u3", TenantID: "t1", Roles: []string{"analyst"}},
	})

	require.Empty(t, state.Errors, "expected no errors, got %+v", state.Errors)
	require.Len(t, state.ArtifactRefs, 2)
	require.NotNil(t, state.AggregatorResp)
	require.Len(t, state.AggregatorResp.TerminalResults, 1)
	for _, rf := range state.AggregatorResp.TerminalResults {
		require.Equal(t, 2, rf.RowCount)
	}
}

// Scenario 5 (spec.md §8): a datasource call that never returns trips
// the pipeline's global deadline. The run terminates with a
// PIPELINE_TIMEOUT error, no aggregation or synthesis is attempted, and
// no goroutine leak blocks the caller past the configured timeout.
func TestOrchestrator_GlobalTimeoutDuringExecution(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddRouted("decomposer_response", llmclient.ScriptEntry{Response: decomposerResponseFor("ops")})
	llm.AddRouted("ast_plan_response", llmclient.ScriptEntry{Response: machinesPlanResponse()})

	store := inmemory.New(0)
	_, err := store.Register(context.Background(), "ops", opsContract(), models.SchemaMetadata{})
	require.NoError(t, err)

	eng, err := policy.Load(map[string]policy.Role{
		"analyst": {AllowedDatasources: []string{"ops"}, AllowedTables: []string{"ops.machines"}},
	})
	require.NoError(t, err)

	registry := datasource.NewRegistry()
	registry.Register(&slowAdapter{dsID: "ops"})

	subgraphs := datasource.NewSubgraphRegistry()
	subgraphs.Register(datasource.SubgraphDescriptor{Name: "sql_agent", RequiredCapabilities: models.Capabilities{SupportsSQL: true}})

	dir := t.TempDir()
	fs, err := localfs.New(dir)
	require.NoError(t, err)

	deps := Deps{
		SchemaStore: store,
		Policy:      eng,
		Datasources: registry,
		Subgraphs:   subgraphs,
		LLM:         llm,
		SQLBuilder:  genericsql.New(),
		Artifacts:   fs,
		LLMBreaker:  resilience.New(resilience.LLMBreakerName, resilience.Config{}),
		DBBreaker:   resilience.New(resilience.DBBreakerName, resilience.Config{}),
		SubgraphCfg: subgraph.Config{StrictColumns: true},
	}

	orch := New(deps, Config{GlobalTimeout: 30 * time.Millisecond})

	state := orch.Run(context.Background(), Request{
		TraceID:     "trace-timeout",
		UserQuery:   "List 5 machines",
		UserContext: models.UserContext{UserID: "u1", TenantID: "t1", Roles: []string{"analyst"}},
	})

	require.NotEmpty(t, state.Errors)
	found := false
	for _, e := range state.Errors {
		if e.Code == models.ErrPipelineTimeout {
			found = true
		}
	}
	require.True(t, found, "expected a PIPELINE_TIMEOUT error, got %+v", state.Errors)
	require.Empty(t, state.ArtifactRefs)
	require.Nil(t, state.AggregatorResp)
	require.Nil(t, state.SynthResp)
}
