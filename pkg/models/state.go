package models

// SubgraphStatus is the terminal disposition of one subgraph run.
type SubgraphStatus string

const (
	SubgraphSucceeded SubgraphStatus = "succeeded"
	SubgraphFailed    SubgraphStatus = "failed"
)

// SubgraphOutput is what a completed subgraph contributes back into the
// root GraphState, keyed by subgraph_id.
type SubgraphOutput struct {
	SubQuery    SubQuery        `json:"sub_query"`
	RetryCount  int             `json:"retry_count"`
	Plan        *PlanModel      `json:"plan,omitempty"`
	SQLDraft    string          `json:"sql_draft,omitempty"`
	Artifact    *ArtifactRef    `json:"artifact,omitempty"`
	Errors      []PipelineError `json:"errors,omitempty"`
	Reasoning   []string        `json:"reasoning,omitempty"`
	Status      SubgraphStatus  `json:"status"`
}

// GraphState is the orchestrator's root state. Nodes never mutate it in
// place: they return partial updates the orchestrator merges according
// to the field's reducer (list concatenation, map key-overwrite, or
// scalar replace).
type GraphState struct {
	TraceID           string                    `json:"trace_id"`
	UserQuery         string                    `json:"user_query"`
	UserContext       UserContext               `json:"user_context"`
	DatasourceID      string                    `json:"datasource_id,omitempty"`
	ResolverResp      *ResolverResponse         `json:"resolver_resp,omitempty"`
	DecomposerResp    *DecomposerResponse       `json:"decomposer_resp,omitempty"`
	PlannerResp       *ExecutionDAG             `json:"planner_resp,omitempty"`
	AggregatorResp    *AggregatorResponse       `json:"aggregator_resp,omitempty"`
	SynthResp         *SynthesizerResponse      `json:"synth_resp,omitempty"`
	ArtifactRefs      map[string]ArtifactRef    `json:"artifact_refs"`
	SubgraphOutputs   map[string]SubgraphOutput `json:"subgraph_outputs"`
	Errors            []PipelineError           `json:"errors"`
	Reasoning         []string                  `json:"reasoning"`
	Warnings          []string                  `json:"warnings"`
}

// NewGraphState constructs a zero-value GraphState with initialized map
// and slice fields, ready to receive merges.
func NewGraphState(traceID, userQuery string, uc UserContext) *GraphState {
	return &GraphState{
		TraceID:         traceID,
		UserQuery:       userQuery,
		UserContext:     uc,
		ArtifactRefs:    map[string]ArtifactRef{},
		SubgraphOutputs: map[string]SubgraphOutput{},
		Errors:          []PipelineError{},
		Reasoning:       []string{},
		Warnings:        []string{},
	}
}

// ResolverResponse is the datasource resolver's output.
type ResolverResponse struct {
	Resolved []ResolvedDatasource `json:"resolved"`
}

// AggregatorResponse holds the terminal result frames, keyed by DAG node
// ID, sorted by ID when iterated for presentation.
type AggregatorResponse struct {
	TerminalResults map[string]ResultFrame `json:"terminal_results"`
}

// SynthesizerResponse is the human-readable answer produced by the
// answer synthesizer.
type SynthesizerResponse struct {
	Answer string `json:"answer"`
}

// SubgraphState enumerates the per-subquery subgraph's state machine
// states.
type SubgraphState string

const (
	StageSchema   SubgraphState = "SCHEMA"
	StagePlan     SubgraphState = "PLAN"
	StageValidate SubgraphState = "VALIDATE"
	StageRefine   SubgraphState = "REFINE"
	StageGenerate SubgraphState = "GENERATE"
	StageExecute  SubgraphState = "EXECUTE"
	StageEnd      SubgraphState = "END"
)

// RelevantTable is a schema-store-materialized table restricted to the
// candidate set surfaced by retrieval, used as the ASTPlanner's grounding
// context.
type RelevantTable struct {
	Name        string         `json:"name"`
	Columns     map[string]ColumnContract `json:"columns"`
	PrimaryKey  []string       `json:"primary_key"`
	ForeignKeys []ForeignKey   `json:"foreign_keys"`
}

// ValidatorResponse is the LogicalValidator's output: the accumulated
// errors from running its checks in order. An empty Errors slice (or one
// with only warnings) means the plan may proceed to the Generator.
type ValidatorResponse struct {
	Errors []PipelineError `json:"errors"`
}

// GeneratorResponse is the Generator's output: the compiled SQL text and
// the effective (clamped) row limit applied.
type GeneratorResponse struct {
	SQL             string `json:"sql"`
	EffectiveLimit  int    `json:"effective_limit"`
}

// ExecutorResponse is the Executor's output.
type ExecutorResponse struct {
	Frame    *ResultFrame `json:"frame,omitempty"`
	Artifact *ArtifactRef `json:"artifact,omitempty"`
}

// RefinerResponse is the Refiner's corrective feedback, consumed by the
// ASTPlanner on the next iteration.
type RefinerResponse struct {
	Feedback string `json:"feedback"`
}

// SubgraphExecutionState is passed by value across the subgraph's state
// machine; nodes return updates merged into it, and on completion the
// orchestrator merges a SubgraphOutput derived from it back into
// GraphState.
type SubgraphExecutionState struct {
	TraceID       string          `json:"trace_id"`
	SubQuery      SubQuery        `json:"sub_query"`
	UserContext   UserContext     `json:"user_context"`
	SubgraphID    string          `json:"subgraph_id"`
	RelevantTables []RelevantTable `json:"relevant_tables"`
	Plan          *PlanModel      `json:"plan,omitempty"`
	ValidatorResp *ValidatorResponse `json:"validator_resp,omitempty"`
	GeneratorResp *GeneratorResponse `json:"generator_resp,omitempty"`
	ExecutorResp  *ExecutorResponse  `json:"executor_resp,omitempty"`
	RefinerResp   *RefinerResponse   `json:"refiner_resp,omitempty"`
	RetryCount    int             `json:"retry_count"`
	Errors        []PipelineError `json:"errors"`
	Reasoning     []string        `json:"reasoning"`
}

// NewSubgraphExecutionState constructs the initial per-subquery state.
func NewSubgraphExecutionState(traceID string, sq SubQuery, uc UserContext, subgraphID string) *SubgraphExecutionState {
	return &SubgraphExecutionState{
		TraceID:     traceID,
		SubQuery:    sq,
		UserContext: uc,
		SubgraphID:  subgraphID,
		Errors:      []PipelineError{},
		Reasoning:   []string{},
	}
}
