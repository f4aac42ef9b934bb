// Package pipeline implements the orchestrator control graph: RESOLVE ->
// DECOMPOSE -> PLAN_GLOBAL -> SCAN_LAYER_ROUTE <-> SUBGRAPH_FANOUT ->
// AGGREGATE -> SYNTHESIZE -> END. It fans scan nodes of each DAG layer
// out to per-subquery Subgraph runs as independent goroutines, merges
// their updates back into the shared GraphState under a single mutex,
// and enforces the global pipeline deadline and cooperative cancellation
// spec.md §4.9 and §5 describe.
// Grounded on the teacher's SubAgentRunner
// (pkg/agent/orchestrator/runner.go): one goroutine per dispatched unit,
// a parent context carried across the fan-out, and per-field merge
// rather than shared mutable state — generalized from the teacher's
// single flat sub-agent pool into the DAG's layered scan/combine/post
// structure.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nl2sql-engine/core/pkg/aggregate"
	"github.com/nl2sql-engine/core/pkg/artifact"
	"github.com/nl2sql-engine/core/pkg/datasource"
	"github.com/nl2sql-engine/core/pkg/decompose"
	"github.com/nl2sql-engine/core/pkg/ids"
	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/planner"
	"github.com/nl2sql-engine/core/pkg/policy"
	"github.com/nl2sql-engine/core/pkg/resilience"
	"github.com/nl2sql-engine/core/pkg/retrieval"
	"github.com/nl2sql-engine/core/pkg/schemastore"
	"github.com/nl2sql-engine/core/pkg/sqlbuilder"
	"github.com/nl2sql-engine/core/pkg/subgraph"
	"github.com/nl2sql-engine/core/pkg/synthesize"
)

// SchemaVersionMismatchPolicy governs what happens when a caller-pinned
// schema version disagrees with the resolver's latest, per spec.md §6.
// There is no implicit third state: every disagreement either warns or
// fails.
type SchemaVersionMismatchPolicy string

const (
	SchemaVersionWarn SchemaVersionMismatchPolicy = "warn"
	SchemaVersionFail SchemaVersionMismatchPolicy = "fail"
)

// Config is the orchestrator's slice of the configuration surface spec.md
// §6 enumerates.
type Config struct {
	GlobalTimeout               time.Duration
	SchemaVersionMismatchPolicy SchemaVersionMismatchPolicy
	DatasourceCandidateK        int
}

// DefaultConfig matches spec.md's stated defaults: an explicit mismatch
// policy (warn, not a silent third state) and a generous global deadline.
var DefaultConfig = Config{
	GlobalTimeout:               60 * time.Second,
	SchemaVersionMismatchPolicy: SchemaVersionWarn,
	DatasourceCandidateK:        5,
}

// Deps are the orchestrator's shared collaborators. All of them must be
// safe for concurrent reads, per spec.md §5: fan-out goroutines read them
// concurrently while only the orchestrator's own merge step writes to
// GraphState.
type Deps struct {
	VectorIndex  retrieval.VectorIndex
	SchemaStore  schemastore.Store
	Policy       *policy.Engine
	Datasources  *datasource.Registry
	Subgraphs    *datasource.SubgraphRegistry
	LLM          llmclient.StructuredLLM
	SQLBuilder   sqlbuilder.SqlBuilder
	Artifacts    artifact.Store
	LLMBreaker   *resilience.Breaker
	VecBreaker   *resilience.Breaker
	DBBreaker    *resilience.Breaker
	SubgraphCfg  subgraph.Config
}

// Orchestrator runs the full control graph for one request.
type Orchestrator struct {
	deps       Deps
	cfg        Config
	decomposer *decompose.Decomposer
	synth      *synthesize.Synthesizer
}

// New constructs an Orchestrator. A zero-value cfg is replaced with
// DefaultConfig.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.GlobalTimeout == 0 {
		cfg.GlobalTimeout = DefaultConfig.GlobalTimeout
	}
	if cfg.SchemaVersionMismatchPolicy == "" {
		cfg.SchemaVersionMismatchPolicy = DefaultConfig.SchemaVersionMismatchPolicy
	}
	if cfg.DatasourceCandidateK == 0 {
		cfg.DatasourceCandidateK = DefaultConfig.DatasourceCandidateK
	}
	return &Orchestrator{
		deps:       deps,
		cfg:        cfg,
		decomposer: decompose.New(deps.LLM, deps.VectorIndex),
		synth:      synthesize.New(deps.LLM),
	}
}

// Request is one pipeline invocation's input.
type Request struct {
	TraceID      string
	UserQuery    string
	UserContext  models.UserContext
	DatasourceID string // override: skip resolution, use this datasource only
	SchemaVersion string // caller-pinned version, checked against mismatch policy
}

// Run executes RESOLVE -> DECOMPOSE -> PLAN_GLOBAL -> SCAN_LAYER_ROUTE <->
// SUBGRAPH_FANOUT -> AGGREGATE -> SYNTHESIZE -> END and returns the
// accumulated GraphState. The caller must inspect state.Errors to
// determine success: Run has no Go error return, and every failure is
// reported in state.Errors.
func (o *Orchestrator) Run(ctx context.Context, req Request) *models.GraphState {
	state := models.NewGraphState(req.TraceID, req.UserQuery, req.UserContext)
	state.DatasourceID = req.DatasourceID

	ctx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	resolved, ok := o.resolve(ctx, state, req)
	if !ok {
		return state
	}
	if len(resolved) == 0 {
		// Gate: empty resolved+allowed set terminates gracefully, no error,
		// no synthesized answer.
		return state
	}
	state.ResolverResp = &models.ResolverResponse{Resolved: resolved}

	if o.checkDeadline(ctx, state) {
		return state
	}

	decomposerResp, ok := o.decompose(ctx, state, resolved)
	if !ok {
		return state
	}
	state.DecomposerResp = &decomposerResp

	if o.checkDeadline(ctx, state) {
		return state
	}

	dag, ok := o.planGlobal(state, decomposerResp)
	if !ok {
		return state
	}
	state.PlannerResp = &dag

	if o.checkDeadline(ctx, state) {
		return state
	}

	subqueryByID := make(map[string]models.SubQuery, len(decomposerResp.SubQueries))
	for _, sq := range decomposerResp.SubQueries {
		subqueryByID[sq.ID] = sq
	}

	if !o.routeAndFanOut(ctx, state, dag, subqueryByID) {
		return state
	}

	if o.checkDeadline(ctx, state) {
		return state
	}

	if !o.aggregate(ctx, state, dag) {
		return state
	}

	if o.checkDeadline(ctx, state) {
		return state
	}

	o.synthesize(ctx, state, decomposerResp)

	return state
}

// checkDeadline is the cooperative cancellation/timeout poll spec.md §4.9.4
// and §5 require between stage boundaries. It appends the appropriate
// typed error and reports whether the caller should stop.
func (o *Orchestrator) checkDeadline(ctx context.Context, state *models.GraphState) bool {
	if ctx.Err() == nil {
		return false
	}
	o.appendTimeoutOrCancel(state, ctx)
	return true
}

func (o *Orchestrator) resolve(ctx context.Context, state *models.GraphState, req Request) ([]models.ResolvedDatasource, bool) {
	if ctx.Err() != nil {
		o.appendTimeoutOrCancel(state, ctx)
		return nil, false
	}

	allowedIDs := o.deps.Policy.AllowedDatasources(req.UserContext)
	allowedSet := make(map[string]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowedSet[id] = struct{}{}
	}

	if req.DatasourceID != "" {
		if _, ok := o.deps.Datasources.Get(req.DatasourceID); !ok {
			state.Errors = append(state.Errors, models.NewPipelineError(models.ErrInvalidState, "override datasource is not registered", map[string]any{"datasource_id": req.DatasourceID}))
			return nil, false
		}
		if _, allowed := allowedSet[req.DatasourceID]; !allowed {
			state.Errors = append(state.Errors, models.NewPipelineError(models.ErrSecurityViolation, "override datasource is not allowed for this user", map[string]any{"datasource_id": req.DatasourceID}))
			return nil, false
		}
		version, err := o.deps.SchemaStore.LatestVersion(ctx, req.DatasourceID)
		if err != nil {
			state.Errors = append(state.Errors, models.NewPipelineError(models.ErrInvalidState, "override datasource has no registered schema snapshot", map[string]any{"datasource_id": req.DatasourceID, "error": err.Error()}))
			return nil, false
		}
		if o.checkSchemaVersionMismatch(state, req, version) {
			return nil, false
		}
		return []models.ResolvedDatasource{{ID: req.DatasourceID, SchemaVersionLatest: version}}, true
	}

	if len(allowedIDs) == 0 {
		return nil, true // gate: empty allowed set, graceful empty result
	}

	var candidates []retrieval.Chunk
	if o.deps.VectorIndex != nil {
		found, err := o.deps.VectorIndex.RetrieveDatasourceCandidates(ctx, req.UserQuery, o.cfg.DatasourceCandidateK, retrieval.Filter{AllowedDatasourceIDs: allowedIDs})
		if err == nil {
			candidates = found
		} else {
			state.Reasoning = append(state.Reasoning, "datasource candidate retrieval failed, falling back to full allowed set: "+err.Error())
		}
	}

	candidateIDs := dedupDatasourceIDs(candidates, allowedIDs)

	resolved := make([]models.ResolvedDatasource, 0, len(candidateIDs))
	for _, dsID := range candidateIDs {
		version, err := o.deps.SchemaStore.LatestVersion(ctx, dsID)
		if err != nil {
			state.Warnings = append(state.Warnings, "skipping datasource with no registered schema: "+dsID)
			continue
		}
		if o.checkSchemaVersionMismatch(state, req, version) {
			return nil, false
		}
		resolved = append(resolved, models.ResolvedDatasource{ID: dsID, SchemaVersionLatest: version})
	}
	return resolved, true
}

// checkSchemaVersionMismatch applies spec.md §6's explicit warn|fail
// policy when the caller pinned a schema version that disagrees with the
// resolver's latest. No silent third state: if a version was supplied and
// differs, it either warns or it fails the resolve stage.
func (o *Orchestrator) checkSchemaVersionMismatch(state *models.GraphState, req Request, latest string) bool {
	if req.SchemaVersion == "" || req.SchemaVersion == latest {
		return false
	}
	if o.cfg.SchemaVersionMismatchPolicy == SchemaVersionFail {
		state.Errors = append(state.Errors, models.NewPipelineError(models.ErrInvalidState, "requested schema version does not match latest", map[string]any{"requested": req.SchemaVersion, "latest": latest}))
		return true
	}
	state.Warnings = append(state.Warnings, "requested schema version "+req.SchemaVersion+" does not match latest "+latest)
	return false
}

// dedupDatasourceIDs extracts the unique datasource IDs from retrieved
// candidates, falling back to the full allowed set when retrieval found
// nothing (vector payloads are hints only, per spec.md §4.3 — the
// authoritative allowed set always governs).
func dedupDatasourceIDs(candidates []retrieval.Chunk, allowedIDs []string) []string {
	if len(candidates) == 0 {
		return append([]string(nil), allowedIDs...)
	}
	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, c := range candidates {
		dsID := c.Chunk.DatasourceID
		if dsID == "" {
			continue
		}
		if _, dup := seen[dsID]; dup {
			continue
		}
		seen[dsID] = struct{}{}
		out = append(out, dsID)
	}
	if len(out) == 0 {
		return append([]string(nil), allowedIDs...)
	}
	return out
}

func (o *Orchestrator) decompose(ctx context.Context, state *models.GraphState, resolved []models.ResolvedDatasource) (models.DecomposerResponse, bool) {
	if ctx.Err() != nil {
		o.appendTimeoutOrCancel(state, ctx)
		return models.DecomposerResponse{}, false
	}

	allowed := make([]decompose.AllowedDatasource, 0, len(resolved))
	for _, r := range resolved {
		allowed = append(allowed, decompose.AllowedDatasource{ID: r.ID, SchemaVersion: r.SchemaVersionLatest})
	}

	resp, err := o.decomposer.Decompose(ctx, state.UserQuery, allowed)
	if err != nil {
		state.Errors = append(state.Errors, models.NewPipelineError(models.ErrDecomposerFailed, "decomposer failed", map[string]any{"error": err.Error()}))
		return models.DecomposerResponse{}, false
	}
	return resp, true
}

func (o *Orchestrator) planGlobal(state *models.GraphState, resp models.DecomposerResponse) (models.ExecutionDAG, bool) {
	dag, perr := planner.Plan(resp)
	if perr != nil {
		state.Errors = append(state.Errors, *perr)
		return models.ExecutionDAG{}, false
	}
	return dag, true
}

// routeAndFanOut implements the scan-layer router: it walks the DAG's
// layers in order, and for each layer dispatches one goroutine per scan
// node not yet in artifact_refs, waits for the whole batch, and merges
// results back into state before advancing. Because combine/post nodes
// never appear before their scan dependencies in a later layer's router
// pass, and the router only acts on scan kinds, this naturally halts once
// every scan node has produced an artifact.
func (o *Orchestrator) routeAndFanOut(ctx context.Context, state *models.GraphState, dag models.ExecutionDAG, subqueryByID map[string]models.SubQuery) bool {
	nodeByID := make(map[string]models.LogicalNode, len(dag.Nodes))
	for _, n := range dag.Nodes {
		nodeByID[n.ID] = n
	}

	var mu sync.Mutex

	for _, layer := range dag.Layers {
		var pending []models.LogicalNode
		for _, nodeID := range layer {
			node := nodeByID[nodeID]
			if node.Kind != models.NodeScan {
				continue
			}
			if _, done := state.ArtifactRefs[nodeID]; done {
				continue
			}
			pending = append(pending, node)
		}
		if len(pending) == 0 {
			continue
		}

		if ctx.Err() != nil {
			o.appendTimeoutOrCancel(state, ctx)
			return false
		}

		var wg sync.WaitGroup
		for _, node := range pending {
			node := node
			dsID, _ := node.Attributes["datasource_id"].(string)
			subqueryID, _ := node.Attributes["subquery_id"].(string)
			sq, ok := subqueryByID[subqueryID]
			if !ok {
				mu.Lock()
				state.Errors = append(state.Errors, models.NewPipelineError(models.ErrInvalidState, "scan node references unknown subquery", map[string]any{"node_id": node.ID}))
				mu.Unlock()
				continue
			}

			adapter, ok := o.deps.Datasources.Get(dsID)
			if !ok {
				mu.Lock()
				state.Errors = append(state.Errors, models.NewPipelineError(models.ErrNoCompatibleSubgraph, "no adapter registered for datasource", map[string]any{"datasource_id": dsID}))
				mu.Unlock()
				return false
			}
			if _, err := o.deps.Subgraphs.Select(adapter.Capabilities()); err != nil {
				mu.Lock()
				state.Errors = append(state.Errors, models.NewPipelineError(models.ErrNoCompatibleSubgraph, "no compatible subgraph for datasource capabilities", map[string]any{"datasource_id": dsID}))
				mu.Unlock()
				return false
			}

			subgraphID, err := ids.StableID(map[string]string{"trace_id": state.TraceID, "node_id": node.ID}, "sg")
			if err != nil {
				mu.Lock()
				state.Errors = append(state.Errors, models.NewPipelineError(models.ErrUnknown, "failed to derive subgraph id", map[string]any{"node_id": node.ID, "error": err.Error()}))
				mu.Unlock()
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				o.runSubgraph(ctx, state, &mu, adapter, sq, subgraphID)
			}()
		}
		wg.Wait()

		if ctx.Err() != nil {
			o.appendTimeoutOrCancel(state, ctx)
			return false
		}
	}

	return true
}

// runSubgraph runs one subquery's Subgraph to completion and merges its
// contribution into state under mu: artifact_refs (only on success),
// subgraph_outputs (always, keyed by subgraph_id), and errors/reasoning
// (concatenated). Per spec.md §4.9.3, each subgraph writes a distinct
// key in both maps, so this merge step never races on content, only on
// the shared slices/maps it's serialized through.
func (o *Orchestrator) runSubgraph(ctx context.Context, state *models.GraphState, mu *sync.Mutex, adapter datasource.Adapter, sq models.SubQuery, subgraphID string) {
	sub := subgraph.New(subgraph.Deps{
		LLM:         o.deps.LLM,
		Index:       o.deps.VectorIndex,
		SchemaStore: o.deps.SchemaStore,
		Policy:      o.deps.Policy,
		Adapter:     adapter,
		SQLBuilder:  o.deps.SQLBuilder,
		Artifacts:   o.deps.Artifacts,
		LLMBreaker:  o.deps.LLMBreaker,
		VecBreaker:  o.deps.VecBreaker,
		DBBreaker:   o.deps.DBBreaker,
	}, o.deps.SubgraphCfg)

	execState := models.NewSubgraphExecutionState(state.TraceID, sq, state.UserContext, subgraphID)

	_, output := sub.Run(ctx, execState)

	nodeID := "scan_" + sq.ID

	mu.Lock()
	defer mu.Unlock()

	state.SubgraphOutputs[subgraphID] = output
	state.Errors = append(state.Errors, output.Errors...)
	state.Reasoning = append(state.Reasoning, output.Reasoning...)
	if output.Status == models.SubgraphSucceeded && output.Artifact != nil {
		state.ArtifactRefs[nodeID] = *output.Artifact
	}

	slog.Debug("pipeline: subgraph finished", "trace_id", state.TraceID, "subgraph_id", subgraphID, "status", output.Status, "retry_count", output.RetryCount)
}

func (o *Orchestrator) aggregate(ctx context.Context, state *models.GraphState, dag models.ExecutionDAG) bool {
	resp, perr := aggregate.Aggregate(ctx, dag, state.ArtifactRefs, o.deps.Artifacts)
	if perr != nil {
		state.Errors = append(state.Errors, *perr)
		return false
	}
	state.AggregatorResp = &resp
	return true
}

func (o *Orchestrator) synthesize(ctx context.Context, state *models.GraphState, resp models.DecomposerResponse) {
	if state.AggregatorResp == nil {
		return
	}
	synthResp, perr := o.synth.Synthesize(ctx, state.UserQuery, state.AggregatorResp.TerminalResults, resp.UnmappedSubqueries)
	if perr != nil {
		// Non-fatal per spec.md §4.11: raw data remains available even if
		// synthesis fails.
		state.Errors = append(state.Errors, *perr)
		return
	}
	state.SynthResp = &synthResp
}

func (o *Orchestrator) appendTimeoutOrCancel(state *models.GraphState, ctx context.Context) {
	if ctx.Err() == context.DeadlineExceeded {
		state.Errors = append(state.Errors, models.NewPipelineError(models.ErrPipelineTimeout, "pipeline global timeout exceeded", nil))
		return
	}
	state.Errors = append(state.Errors, models.NewPipelineError(models.ErrCancelled, "pipeline cancelled", nil))
}
