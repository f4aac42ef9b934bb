// Package subgraph implements the per-subquery SQL agent: the state
// machine that retrieves schema context, plans a typed AST via a
// StructuredLLM, validates it, generates dialect SQL, executes it
// against one datasource, and persists the result as an artifact — with
// a bounded retry/refine loop between planning and validation.
// Grounded on the teacher's iterating controller
// (pkg/agent/controller/iterating.go, react.go/react_parser.go): a
// bounded loop around an LLM call, reacting to structured feedback
// instead of free-text, generalized from the teacher's tool-call
// iteration into the plan/validate/refine cycle spec.md §4.8 describes.
package subgraph

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/nl2sql-engine/core/pkg/artifact"
	"github.com/nl2sql-engine/core/pkg/datasource"
	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/policy"
	"github.com/nl2sql-engine/core/pkg/promptbuilder"
	"github.com/nl2sql-engine/core/pkg/resilience"
	"github.com/nl2sql-engine/core/pkg/retrieval"
	"github.com/nl2sql-engine/core/pkg/schemastore"
	"github.com/nl2sql-engine/core/pkg/sqlbuilder"
)

// RetryPolicy bounds the subgraph's plan/validate/refine loop, per
// spec.md §4.8.7 and the configuration surface in §6.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     time.Duration
}

// DefaultRetryPolicy mirrors the teacher's own conservative iteration
// defaults (bounded loop, short backoff).
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	BaseDelay:  200 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Jitter:     200 * time.Millisecond,
}

// Config bounds one Subgraph's behavior. StrictColumns, when false,
// downgrades an unresolved-column finding to a warning instead of a
// retryable error, per spec.md §6's logical_validator_strict_columns.
type Config struct {
	Retry              RetryPolicy
	StrictColumns      bool
	SubgraphName       string
	PhysicalValidation bool
}

// DefaultConfig is Config with DefaultRetryPolicy and strict columns on,
// matching spec.md's stated default (validator rejects unresolved
// columns rather than warn).
var DefaultConfig = Config{
	Retry:         DefaultRetryPolicy,
	StrictColumns: true,
	SubgraphName:  "sql_agent",
}

// Deps are the Subgraph's external collaborators: everything outside
// this package's scope per spec.md §1.
type Deps struct {
	LLM         llmclient.StructuredLLM
	Index       retrieval.VectorIndex
	SchemaStore schemastore.Store
	Policy      *policy.Engine
	Adapter     datasource.Adapter
	SQLBuilder  sqlbuilder.SqlBuilder
	Artifacts   artifact.Store
	LLMBreaker  *resilience.Breaker
	VecBreaker  *resilience.Breaker
	DBBreaker   *resilience.Breaker
	Rand        func() float64 // overridable for deterministic tests
	Prompts     *promptbuilder.Builder
	SchemaContextTokenBudget int // 0 uses promptbuilder.DefaultSchemaContextBudget
}

// Subgraph runs one subquery through SCHEMA -> PLAN -> VALIDATE ->
// (REFINE -> PLAN)* -> GENERATE -> EXECUTE -> END.
type Subgraph struct {
	deps Deps
	cfg  Config
}

// New constructs a Subgraph. A cfg.Retry with neither MaxRetries nor
// BaseDelay set is replaced with DefaultRetryPolicy, and an empty
// SubgraphName with DefaultConfig's; the other fields, StrictColumns and
// PhysicalValidation included, are used as given.
func New(deps Deps, cfg Config) *Subgraph {
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if cfg.SubgraphName == "" {
		cfg.SubgraphName = DefaultConfig.SubgraphName
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	if deps.Prompts == nil {
		deps.Prompts = promptbuilder.New()
	}
	if deps.SchemaContextTokenBudget == 0 {
		deps.SchemaContextTokenBudget = promptbuilder.DefaultSchemaContextBudget
	}
	return &Subgraph{deps: deps, cfg: cfg}
}

// Run executes the full per-subquery state machine and returns the
// terminal execution state plus the SubgraphOutput the orchestrator
// merges back into GraphState. Run never panics outward: any node-level
// panic is recovered at this boundary and converted into a structured
// EXECUTOR_CRASH error, per spec.md §9's exception/error boundary
// convention and the teacher's own panic-to-typed-error pattern in
// pkg/agent/agent.go's Execute.
func (sg *Subgraph) Run(ctx context.Context, state *models.SubgraphExecutionState) (out *models.SubgraphExecutionState, output models.SubgraphOutput) {
	defer func() {
		if r := recover(); r != nil {
			state.Errors = append(state.Errors, models.NewPipelineError(models.ErrExecutorCrash, "subgraph panicked", map[string]any{"recover": recoverString(r)}))
			out = state
			output = sg.buildOutput(state, models.SubgraphFailed)
		}
	}()

	slog.Debug("subgraph: starting", "subgraph_id", state.SubgraphID, "trace_id", state.TraceID, "datasource_id", state.SubQuery.DatasourceID)

	sg.retrieveSchema(ctx, state)

	for {
		if ctx.Err() != nil {
			state.Errors = append(state.Errors, models.NewPipelineError(models.ErrCancelled, "subgraph cancelled", nil))
			return state, sg.buildOutput(state, models.SubgraphFailed)
		}

		planErr := sg.plan(ctx, state)
		if planErr != nil {
			state.Errors = append(state.Errors, *planErr)
			if sg.shouldRetry([]models.PipelineError{*planErr}, state.RetryCount) {
				if !sg.refineAndWait(ctx, state) {
					return state, sg.buildOutput(state, models.SubgraphFailed)
				}
				continue
			}
			return state, sg.buildOutput(state, models.SubgraphFailed)
		}

		validation := sg.validate(state)
		state.ValidatorResp = &validation
		state.Errors = append(state.Errors, validation.Errors...)

		if models.AnyCriticalNonRetryable(validation.Errors) {
			return state, sg.buildOutput(state, models.SubgraphFailed)
		}
		if models.AnyRetryable(validation.Errors) {
			if sg.shouldRetry(validation.Errors, state.RetryCount) {
				if !sg.refineAndWait(ctx, state) {
					return state, sg.buildOutput(state, models.SubgraphFailed)
				}
				continue
			}
			return state, sg.buildOutput(state, models.SubgraphFailed)
		}

		break
	}

	if sg.cfg.PhysicalValidation {
		if perr := sg.physicalValidate(ctx, state); perr != nil {
			state.Errors = append(state.Errors, *perr)
			return state, sg.buildOutput(state, models.SubgraphFailed)
		}
	}

	genResp, genErr := sg.generate(state)
	if genErr != nil {
		state.Errors = append(state.Errors, *genErr)
		return state, sg.buildOutput(state, models.SubgraphFailed)
	}
	state.GeneratorResp = &genResp

	execResp, execErr := sg.execute(ctx, state, genResp)
	if execErr != nil {
		state.Errors = append(state.Errors, *execErr)
		return state, sg.buildOutput(state, models.SubgraphFailed)
	}
	state.ExecutorResp = &execResp

	return state, sg.buildOutput(state, models.SubgraphSucceeded)
}

// shouldRetry implements spec.md §4.8.7's routing check: at least one
// retryable error and retry budget remaining.
func (sg *Subgraph) shouldRetry(errs []models.PipelineError, retryCount int) bool {
	return models.AnyRetryable(errs) && retryCount < sg.cfg.Retry.MaxRetries
}

// refineAndWait invokes the Refiner, sleeps the computed backoff, and
// increments retry_count. Returns false if the context was cancelled
// during the wait.
func (sg *Subgraph) refineAndWait(ctx context.Context, state *models.SubgraphExecutionState) bool {
	feedback := sg.refine(ctx, state)
	state.RefinerResp = &feedback
	state.Reasoning = append(state.Reasoning, feedback.Feedback)
	warn := models.NewPipelineError(models.ErrPlanFeedback, "refiner produced corrective feedback", map[string]any{"retry_count": state.RetryCount})
	state.Errors = append(state.Errors, warn)

	delay := backoffDelay(sg.cfg.Retry, state.RetryCount, sg.deps.Rand())
	state.RetryCount++

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		state.Errors = append(state.Errors, models.NewPipelineError(models.ErrCancelled, "cancelled during retry backoff", nil))
		return false
	}
}

// backoffDelay computes min(max_delay, base*2^n) + uniform(0, jitter),
// per spec.md §4.8.7 and §5.
func backoffDelay(p RetryPolicy, retryCount int, jitterRoll float64) time.Duration {
	delay := p.BaseDelay << uint(retryCount)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(jitterRoll * float64(p.Jitter))
	}
	return delay
}

func (sg *Subgraph) buildOutput(state *models.SubgraphExecutionState, status models.SubgraphStatus) models.SubgraphOutput {
	out := models.SubgraphOutput{
		SubQuery:   state.SubQuery,
		RetryCount: state.RetryCount,
		Plan:       state.Plan,
		Errors:     append([]models.PipelineError(nil), state.Errors...),
		Reasoning:  append([]string(nil), state.Reasoning...),
		Status:     status,
	}
	if state.GeneratorResp != nil {
		out.SQLDraft = state.GeneratorResp.SQL
	}
	if state.ExecutorResp != nil {
		out.Artifact = state.ExecutorResp.Artifact
	}
	return out
}

func recoverString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic"
}
