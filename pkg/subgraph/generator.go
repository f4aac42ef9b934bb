package subgraph

import (
	"strings"

	"github.com/nl2sql-engine/core/pkg/models"
)

// generate compiles the validated plan to dialect SQL via the injected
// SqlBuilder, per spec.md §4.8.4. The effective row limit is clamped to
// min(plan.limit, adapter.row_limit); when the plan declares no limit,
// the adapter's row_limit applies unconditionally so no subgraph can
// escape the datasource's bound.
func (sg *Subgraph) generate(state *models.SubgraphExecutionState) (models.GeneratorResponse, *models.PipelineError) {
	plan := state.Plan
	b := sg.deps.SQLBuilder

	effectiveLimit := sg.deps.Adapter.RowLimit()
	if plan.Limit != nil && *plan.Limit > 0 && *plan.Limit < effectiveLimit {
		effectiveLimit = *plan.Limit
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	items := make([]string, 0, len(plan.SelectItems))
	for _, si := range orderedSelectItems(plan.SelectItems) {
		compiled, err := b.CompileExpr(si.Expr)
		if err != nil {
			return models.GeneratorResponse{}, sqlGenError(err)
		}
		if si.Alias != "" {
			compiled += " AS " + b.QuoteIdent(si.Alias)
		}
		items = append(items, compiled)
	}
	sb.WriteString(strings.Join(items, ", "))

	sb.WriteString(" FROM ")
	sb.WriteString(fromClause(b, plan))

	for _, j := range orderedJoins(plan.Joins) {
		cond, err := b.CompileExpr(j.Condition)
		if err != nil {
			return models.GeneratorResponse{}, sqlGenError(err)
		}
		sb.WriteString(" " + b.JoinKeyword(j.Kind) + " " + b.QuoteIdent(joinTableName(plan, j.RightAlias)) + " " + b.QuoteIdent(j.RightAlias) + " ON " + cond)
	}

	if plan.Where != nil {
		compiled, err := b.CompileExpr(*plan.Where)
		if err != nil {
			return models.GeneratorResponse{}, sqlGenError(err)
		}
		sb.WriteString(" WHERE " + compiled)
	}

	if len(plan.GroupBy) > 0 {
		groupItems := make([]string, 0, len(plan.GroupBy))
		for _, g := range orderedGroupBy(plan.GroupBy) {
			compiled, err := b.CompileExpr(g.Expr)
			if err != nil {
				return models.GeneratorResponse{}, sqlGenError(err)
			}
			groupItems = append(groupItems, compiled)
		}
		sb.WriteString(" GROUP BY " + strings.Join(groupItems, ", "))
	}

	if plan.Having != nil {
		compiled, err := b.CompileExpr(*plan.Having)
		if err != nil {
			return models.GeneratorResponse{}, sqlGenError(err)
		}
		sb.WriteString(" HAVING " + compiled)
	}

	if len(plan.OrderBy) > 0 {
		orderItems := make([]string, 0, len(plan.OrderBy))
		for _, o := range orderedOrderBy(plan.OrderBy) {
			compiled, err := b.CompileExpr(o.Expr)
			if err != nil {
				return models.GeneratorResponse{}, sqlGenError(err)
			}
			dir := "ASC"
			if o.Dir == models.SortDesc {
				dir = "DESC"
			}
			orderItems = append(orderItems, compiled+" "+dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(orderItems, ", "))
	}

	if limitClause := b.LimitClause(effectiveLimit); limitClause != "" {
		sb.WriteString(" " + limitClause)
	}

	return models.GeneratorResponse{SQL: sb.String(), EffectiveLimit: effectiveLimit}, nil
}

func sqlGenError(err error) *models.PipelineError {
	e := models.NewPipelineError(models.ErrSQLGenFailed, "sql generation failed", map[string]any{"error": err.Error()})
	return &e
}

func fromClause(b interface {
	QuoteIdent(string) string
}, plan *models.PlanModel) string {
	tables := orderedTables(plan.Tables)
	if len(tables) == 0 {
		return ""
	}
	first := tables[0]
	return b.QuoteIdent(first.Name) + " " + b.QuoteIdent(first.Alias)
}

func joinTableName(plan *models.PlanModel, alias string) string {
	for _, t := range plan.Tables {
		if t.Alias == alias {
			return t.Name
		}
	}
	return alias
}

func orderedTables(tables []models.TableRef) []models.TableRef {
	out := append([]models.TableRef(nil), tables...)
	sortByOrdinal(out, func(t models.TableRef) int { return t.Ordinal })
	return out
}

func orderedJoins(joins []models.Join) []models.Join {
	out := append([]models.Join(nil), joins...)
	sortByOrdinal(out, func(j models.Join) int { return j.Ordinal })
	return out
}

func orderedSelectItems(items []models.SelectItem) []models.SelectItem {
	out := append([]models.SelectItem(nil), items...)
	sortByOrdinal(out, func(s models.SelectItem) int { return s.Ordinal })
	return out
}

func orderedGroupBy(items []models.GroupByItem) []models.GroupByItem {
	out := append([]models.GroupByItem(nil), items...)
	sortByOrdinal(out, func(g models.GroupByItem) int { return g.Ordinal })
	return out
}

func orderedOrderBy(items []models.OrderByItem) []models.OrderByItem {
	out := append([]models.OrderByItem(nil), items...)
	sortByOrdinal(out, func(o models.OrderByItem) int { return o.Ordinal })
	return out
}

func sortByOrdinal[T any](items []T, get func(T) int) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && get(items[j-1]) > get(items[j]); j-- {
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}
