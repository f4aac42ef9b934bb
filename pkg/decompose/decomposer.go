// Package decompose implements the LLM-driven subquery splitter: it
// retrieves vector context for candidate tables, calls a StructuredLLM
// to produce subqueries/combine-groups/post-ops, rejects any subquery
// intent containing SQL reserved tokens, assigns stable IDs, remaps
// combine-group/post-op references from LLM-emitted temp IDs to stable
// IDs, and sorts every list by ID for determinism. Grounded on the
// saurabh22suman-canonica-labs federation.Decomposer shape and the
// teacher's pkg/agent/prompt/builder.go structured-prompt pattern.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/promptbuilder"
	"github.com/nl2sql-engine/core/pkg/retrieval"
)

// sqlReservedTokens are rejected, case-insensitively, as whole words
// inside a subquery's intent — intent is semantic-only, never SQL.
var sqlReservedTokens = regexp.MustCompile(`(?i)\b(SELECT|FROM|WHERE|JOIN|UNION|DROP|INSERT|UPDATE|DELETE|ALTER|TRUNCATE|EXEC|GRANT)\b`)

// ErrSQLTokenInIntent is wrapped with the offending intent when a
// subquery's intent contains a rejected SQL reserved token.
type ErrSQLTokenInIntent struct {
	Intent string
}

func (e *ErrSQLTokenInIntent) Error() string {
	return fmt.Sprintf("decompose: intent contains SQL reserved token: %q", e.Intent)
}

// llmSubQuery/llmCombineGroup/llmPostOp are the LLM-facing shapes: they
// carry the LLM's own temp IDs (TempID) instead of the engine's stable
// IDs, which are assigned deterministically after validation.
type llmSubQuery struct {
	TempID         string         `json:"temp_id"`
	DatasourceID   string         `json:"datasource_id"`
	Intent         string         `json:"intent"`
	ExpectedSchema []string       `json:"expected_schema,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
	GroupBy        []string       `json:"group_by,omitempty"`
	Metrics        []string       `json:"metrics,omitempty"`
}

type llmCombineGroup struct {
	TempID   string                   `json:"temp_id"`
	Op       models.CombineOp         `json:"op"`
	Inputs   []string                 `json:"inputs"` // temp ids
	Roles    map[string]string        `json:"roles,omitempty"`
	JoinKeys []models.JoinKeyPair     `json:"join_keys,omitempty"`
}

type llmPostOp struct {
	Op     models.PostOp  `json:"op"`
	Target string         `json:"target"` // temp id of a combine group
	Params map[string]any `json:"params,omitempty"`
}

type llmResponse struct {
	SubQueries     []llmSubQuery     `json:"sub_queries"`
	CombineGroups  []llmCombineGroup `json:"combine_groups,omitempty"`
	PostCombineOps []llmPostOp       `json:"post_combine_ops,omitempty"`
}

const responseSchemaName = "decomposer_response"

var responseSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["sub_queries"],
  "properties": {
    "sub_queries": {"type": "array"},
    "combine_groups": {"type": "array"},
    "post_combine_ops": {"type": "array"}
  }
}`)

// AllowedDatasource describes one resolved, RBAC-permitted datasource the
// decomposer may assign subqueries to, pinned at its latest schema
// version.
type AllowedDatasource struct {
	ID            string
	SchemaVersion string
}

// Decomposer splits a user query into subqueries, combine groups, and
// post-combine ops.
type Decomposer struct {
	llm     llmclient.StructuredLLM
	index   retrieval.VectorIndex
	prompts *promptbuilder.Builder
}

// New constructs a Decomposer.
func New(llm llmclient.StructuredLLM, index retrieval.VectorIndex) *Decomposer {
	return &Decomposer{llm: llm, index: index, prompts: promptbuilder.New()}
}

// Decompose implements spec.md §4.6's full algorithm.
func (d *Decomposer) Decompose(ctx context.Context, userQuery string, allowed []AllowedDatasource) (models.DecomposerResponse, error) {
	allowedIDs := make([]string, 0, len(allowed))
	versionByID := make(map[string]string, len(allowed))
	for _, ds := range allowed {
		allowedIDs = append(allowedIDs, ds.ID)
		versionByID[ds.ID] = ds.SchemaVersion
	}

	// Step 1: retrieve vector context across allowed datasources (best
	// effort — retrieval failures here are not fatal; the LLM still runs
	// with whatever candidates were found, degrading gracefully).
	var candidates []retrieval.Chunk
	if d.index != nil {
		found, err := d.index.RetrieveDatasourceCandidates(ctx, userQuery, 10, retrieval.Filter{AllowedDatasourceIDs: allowedIDs})
		if err == nil {
			candidates = found
		}
	}

	prompt := d.buildPrompt(userQuery, allowedIDs, candidates)

	var raw llmResponse
	if err := d.llm.Invoke(ctx, llmclient.Request{Prompt: prompt, ResponseSchema: responseSchema, SchemaName: responseSchemaName}, &raw); err != nil {
		return models.DecomposerResponse{}, fmt.Errorf("decompose: %w", err)
	}

	return d.process(raw, allowedIDs, versionByID)
}

func (d *Decomposer) buildPrompt(userQuery string, allowedIDs []string, candidates []retrieval.Chunk) string {
	var sb strings.Builder
	sb.WriteString("Decompose the following question into one or more semantic subqueries, ")
	sb.WriteString("each targeting exactly one datasource from the allowed set. ")
	sb.WriteString("Never include SQL syntax in a subquery's intent; describe intent in natural language only.\n\n")
	sb.WriteString("Question: " + userQuery + "\n")
	sb.WriteString("Allowed datasources: " + strings.Join(allowedIDs, ", ") + "\n")
	if len(candidates) > 0 {
		sb.WriteString("Candidate tables:\n")
		sb.WriteString(d.prompts.FormatCandidateChunks(candidates, promptbuilder.DefaultCandidateContextBudget))
		sb.WriteString("\n")
	}
	return sb.String()
}

// process implements steps 3-6: validation, stable-ID assignment, temp-id
// remapping, and deterministic sorting.
func (d *Decomposer) process(raw llmResponse, allowedIDs []string, versionByID map[string]string) (models.DecomposerResponse, error) {
	allowedSet := make(map[string]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowedSet[id] = struct{}{}
	}

	tempToStable := make(map[string]string, len(raw.SubQueries))
	var subQueries, unmapped []models.SubQuery

	for _, lsq := range raw.SubQueries {
		if sqlReservedTokens.MatchString(lsq.Intent) {
			return models.DecomposerResponse{}, &ErrSQLTokenInIntent{Intent: lsq.Intent}
		}

		sq := models.SubQuery{
			DatasourceID:   lsq.DatasourceID,
			Intent:         lsq.Intent,
			ExpectedSchema: lsq.ExpectedSchema,
			Filters:        lsq.Filters,
			GroupBy:        lsq.GroupBy,
			Metrics:        lsq.Metrics,
		}
		if _, ok := allowedSet[lsq.DatasourceID]; !ok {
			unmapped = append(unmapped, sq)
			continue
		}
		sq.SchemaVersion = versionByID[lsq.DatasourceID]
		if err := sq.AssignID(); err != nil {
			return models.DecomposerResponse{}, fmt.Errorf("decompose: assign subquery id: %w", err)
		}
		if lsq.TempID != "" {
			tempToStable[lsq.TempID] = sq.ID
		}
		subQueries = append(subQueries, sq)
	}

	var groups []models.CombineGroup
	groupTempToStable := make(map[string]string, len(raw.CombineGroups))
	for _, lg := range raw.CombineGroups {
		inputs := make([]string, 0, len(lg.Inputs))
		ok := true
		for _, tempID := range lg.Inputs {
			stable, known := tempToStable[tempID]
			if !known {
				ok = false
				break
			}
			inputs = append(inputs, stable)
		}
		if !ok {
			continue // references an unknown subquery: drop per spec.md §4.6 step 4
		}

		group := models.CombineGroup{Op: lg.Op, Inputs: inputs, Roles: remapRoles(lg.Roles, tempToStable), JoinKeys: lg.JoinKeys}
		if err := group.Validate(); err != nil {
			continue
		}
		if err := group.AssignID(); err != nil {
			return models.DecomposerResponse{}, fmt.Errorf("decompose: assign combine group id: %w", err)
		}
		if lg.TempID != "" {
			groupTempToStable[lg.TempID] = group.ID
		}
		groups = append(groups, group)
	}

	var postOps []models.PostCombineOp
	for _, lp := range raw.PostCombineOps {
		target, known := groupTempToStable[lp.Target]
		if !known {
			continue // references an unknown group: drop per spec.md §4.6 step 5
		}
		op := models.PostCombineOp{Op: lp.Op, Target: target, Params: lp.Params}
		if err := op.AssignID(); err != nil {
			return models.DecomposerResponse{}, fmt.Errorf("decompose: assign post op id: %w", err)
		}
		postOps = append(postOps, op)
	}

	sort.Slice(subQueries, func(i, j int) bool { return subQueries[i].ID < subQueries[j].ID })
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	sort.Slice(postOps, func(i, j int) bool { return postOps[i].ID < postOps[j].ID })
	sort.Slice(unmapped, func(i, j int) bool { return unmapped[i].Intent < unmapped[j].Intent })

	return models.DecomposerResponse{
		SubQueries:         subQueries,
		CombineGroups:      groups,
		PostCombineOps:     postOps,
		UnmappedSubqueries: unmapped,
	}, nil
}

func remapRoles(roles map[string]string, tempToStable map[string]string) map[string]string {
	if len(roles) == 0 {
		return nil
	}
	out := make(map[string]string, len(roles))
	for tempID, role := range roles {
		stable, ok := tempToStable[tempID]
		if !ok {
			continue
		}
		out[stable] = role
	}
	return out
}
