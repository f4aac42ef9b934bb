package subgraph

import (
	"context"
	"sort"
	"strings"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/retrieval"
)

// retrieveSchema implements spec.md §4.8.1's staged retrieval. Vector
// failures are non-fatal: RelevantTables is left empty and a reasoning
// entry records the degradation. Authoritative schema always comes from
// the Schema Store; retrieval only narrows which tables to materialize.
func (sg *Subgraph) retrieveSchema(ctx context.Context, state *models.SubgraphExecutionState) {
	query := buildSemanticQuery(state.SubQuery)
	filter := retrieval.Filter{DatasourceID: state.SubQuery.DatasourceID, AllowedDatasourceIDs: []string{state.SubQuery.DatasourceID}}

	tables := sg.candidateTables(ctx, query, filter, state)

	snapshot, err := sg.deps.SchemaStore.Get(ctx, state.SubQuery.DatasourceID, state.SubQuery.SchemaVersion)
	if err != nil {
		state.Errors = append(state.Errors, models.NewPipelineError(models.ErrPlannerFailed, "failed to resolve authoritative schema snapshot", map[string]any{"error": err.Error(), "datasource_id": state.SubQuery.DatasourceID}))
		return
	}

	if len(tables) == 0 {
		warning := models.NewPipelineError(models.ErrSchemaFallbackUsed, "no candidate tables from retrieval; falling back to the complete schema snapshot", map[string]any{"datasource_id": state.SubQuery.DatasourceID})
		state.Errors = append(state.Errors, warning)
		tables = snapshot.Contract.SortedTableNames()
	}

	state.RelevantTables = materializeTables(snapshot, tables)
}

// candidateTables runs the three-step staged retrieval: schema context
// first, column candidates as a fallback source of tables, then
// planning context (columns + relationships) once a table set exists.
func (sg *Subgraph) candidateTables(ctx context.Context, query string, filter retrieval.Filter, state *models.SubgraphExecutionState) []string {
	if sg.deps.Index == nil {
		return nil
	}

	schemaChunks, err := sg.deps.Index.RetrieveSchemaContext(ctx, query, 8, filter)
	if err != nil {
		state.Reasoning = append(state.Reasoning, "vector retrieval failed at schema-context stage: "+err.Error())
		return nil
	}

	tables := tableNames(schemaChunks)
	if len(tables) == 0 {
		colChunks, err := sg.deps.Index.RetrieveColumnCandidates(ctx, query, 16, filter)
		if err != nil {
			state.Reasoning = append(state.Reasoning, "vector retrieval failed at column-candidates stage: "+err.Error())
			return nil
		}
		tables = tableNamesFromColumns(colChunks)
	}

	if len(tables) > 0 {
		if _, err := sg.deps.Index.RetrievePlanningContext(ctx, query, tables, 24, filter); err != nil {
			state.Reasoning = append(state.Reasoning, "vector retrieval failed at planning-context stage: "+err.Error())
		}
	}

	return tables
}

func buildSemanticQuery(sq models.SubQuery) string {
	var sb strings.Builder
	sb.WriteString(sq.Intent)
	if len(sq.Filters) > 0 {
		keys := make([]string, 0, len(sq.Filters))
		for k := range sq.Filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" filters: " + strings.Join(keys, ", "))
	}
	if len(sq.GroupBy) > 0 {
		sb.WriteString(" group by: " + strings.Join(sq.GroupBy, ", "))
	}
	if len(sq.Metrics) > 0 {
		sb.WriteString(" metrics: " + strings.Join(sq.Metrics, ", "))
	}
	if len(sq.ExpectedSchema) > 0 {
		sb.WriteString(" expected columns: " + strings.Join(sq.ExpectedSchema, ", "))
	}
	return sb.String()
}

func tableNames(chunks []retrieval.Chunk) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		if c.Kind != models.ChunkKindTable || c.Table == "" {
			continue
		}
		if _, dup := seen[c.Table]; dup {
			continue
		}
		seen[c.Table] = struct{}{}
		out = append(out, c.Table)
	}
	sort.Strings(out)
	return out
}

func tableNamesFromColumns(chunks []retrieval.Chunk) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		if c.Table == "" {
			continue
		}
		if _, dup := seen[c.Table]; dup {
			continue
		}
		seen[c.Table] = struct{}{}
		out = append(out, c.Table)
	}
	sort.Strings(out)
	return out
}

// materializeTables builds RelevantTable values from the authoritative
// snapshot, restricted to candidate (or falling back to every table the
// caller passed in).
func materializeTables(snapshot models.SchemaSnapshot, tableNames []string) []models.RelevantTable {
	out := make([]models.RelevantTable, 0, len(tableNames))
	for _, name := range tableNames {
		contract, ok := snapshot.Contract.Tables[name]
		if !ok {
			continue
		}
		out = append(out, models.RelevantTable{
			Name:        name,
			Columns:     contract.Columns,
			PrimaryKey:  contract.PrimaryKey,
			ForeignKeys: contract.ForeignKeys,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
