package subgraph

import (
	"sort"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/policy"
)

// validate runs the LogicalValidator's checks in order, accumulating
// errors, per spec.md §4.8.3. It never short-circuits on the first
// finding except where a later check is meaningless without an earlier
// one holding (e.g. column resolution needs a valid alias set).
func (sg *Subgraph) validate(state *models.SubgraphExecutionState) models.ValidatorResponse {
	var errs []models.PipelineError
	plan := state.Plan

	// 1. query_type
	if plan.QueryType != models.ReadOnly {
		errs = append(errs, models.NewPipelineError(models.ErrSecurityViolation, "plan query_type is not READ", map[string]any{"query_type": string(plan.QueryType)}))
		return models.ValidatorResponse{Errors: errs}
	}

	// 2. ordinal contiguity
	errs = append(errs, checkOrdinals(plan)...)

	// 3. alias uniqueness
	aliasSet := plan.AliasSet()
	if len(aliasSet) != len(plan.Tables) {
		errs = append(errs, models.NewPipelineError(models.ErrInvalidPlanStructure, "duplicate table alias", map[string]any{}))
	}

	// 4. expected-schema alignment
	if len(state.SubQuery.ExpectedSchema) > 0 {
		errs = append(errs, checkExpectedSchema(plan, state.SubQuery.ExpectedSchema)...)
	}

	// 5. column resolution
	tablesByAlias := relevantTablesByAlias(plan, state.RelevantTables)
	errs = append(errs, sg.checkColumns(plan, aliasSet, tablesByAlias)...)

	// 6. joins
	errs = append(errs, checkJoins(plan, aliasSet, tablesByAlias)...)

	// 7. policy
	errs = append(errs, sg.checkPolicy(state, plan)...)

	return models.ValidatorResponse{Errors: errs}
}

func checkOrdinals(plan *models.PlanModel) []models.PipelineError {
	var errs []models.PipelineError
	check := func(name string, n int, ordinals []int) {
		if !contiguousFromZero(ordinals) {
			errs = append(errs, models.NewPipelineError(models.ErrInvalidPlanStructure, name+" ordinals are not contiguous from 0", map[string]any{"ordinals": ordinals}))
		}
	}
	check("tables", len(plan.Tables), ordinalsOf(plan.Tables, func(t models.TableRef) int { return t.Ordinal }))
	check("joins", len(plan.Joins), ordinalsOf(plan.Joins, func(j models.Join) int { return j.Ordinal }))
	check("select_items", len(plan.SelectItems), ordinalsOf(plan.SelectItems, func(s models.SelectItem) int { return s.Ordinal }))
	check("group_by", len(plan.GroupBy), ordinalsOf(plan.GroupBy, func(g models.GroupByItem) int { return g.Ordinal }))
	check("order_by", len(plan.OrderBy), ordinalsOf(plan.OrderBy, func(o models.OrderByItem) int { return o.Ordinal }))
	return errs
}

func ordinalsOf[T any](items []T, get func(T) int) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = get(it)
	}
	return out
}

func contiguousFromZero(ordinals []int) bool {
	if len(ordinals) == 0 {
		return true
	}
	sorted := append([]int(nil), ordinals...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i {
			return false
		}
	}
	return true
}

func checkExpectedSchema(plan *models.PlanModel, expected []string) []models.PipelineError {
	if len(plan.SelectItems) != len(expected) {
		return []models.PipelineError{models.NewPipelineError(models.ErrInvalidPlanStructure, "select_items count does not match expected_schema", map[string]any{"got": len(plan.SelectItems), "want": len(expected)})}
	}
	got := make([]string, 0, len(plan.SelectItems))
	for _, si := range plan.SelectItems {
		alias := si.Alias
		if alias == "" && si.Expr.Kind == models.ExprColumn {
			alias = si.Expr.Column
		}
		got = append(got, alias)
	}
	sortedGot := append([]string(nil), got...)
	sortedWant := append([]string(nil), expected...)
	sort.Strings(sortedGot)
	sort.Strings(sortedWant)
	for i := range sortedGot {
		if sortedGot[i] != sortedWant[i] {
			return []models.PipelineError{models.NewPipelineError(models.ErrInvalidPlanStructure, "select_items aliases do not match expected_schema", map[string]any{"got": got, "want": expected})}
		}
	}
	return nil
}

func relevantTablesByAlias(plan *models.PlanModel, tables []models.RelevantTable) map[string]models.RelevantTable {
	byName := make(map[string]models.RelevantTable, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	out := make(map[string]models.RelevantTable, len(plan.Tables))
	for _, t := range plan.Tables {
		if rt, ok := byName[t.Name]; ok {
			out[t.Alias] = rt
		}
	}
	return out
}

// checkColumns walks every Expr tree in the plan and confirms each
// column node resolves to a declared alias and to a column in that
// alias's effective schema. Unqualified columns are resolved only when
// exactly one table is declared; otherwise they are ambiguous.
func (sg *Subgraph) checkColumns(plan *models.PlanModel, aliasSet map[string]models.TableRef, tablesByAlias map[string]models.RelevantTable) []models.PipelineError {
	var errs []models.PipelineError
	var singleAlias string
	if len(plan.Tables) == 1 {
		singleAlias = plan.Tables[0].Alias
	}

	visit := func(e *models.Expr) {
		walkExpr(e, func(node models.Expr) {
			if node.Kind != models.ExprColumn {
				return
			}
			alias := node.Alias
			if alias == "" {
				if singleAlias == "" {
					errs = append(errs, sg.columnError("ambiguous unqualified column reference", map[string]any{"column": node.Column}))
					return
				}
				alias = singleAlias
			}
			if _, ok := aliasSet[alias]; !ok {
				errs = append(errs, sg.columnError("column references unknown alias", map[string]any{"alias": alias, "column": node.Column}))
				return
			}
			table, ok := tablesByAlias[alias]
			if !ok {
				errs = append(errs, sg.columnError("alias has no resolved schema", map[string]any{"alias": alias, "column": node.Column}))
				return
			}
			if _, ok := table.Columns[node.Column]; !ok {
				errs = append(errs, sg.columnError("column not found in resolved schema", map[string]any{"alias": alias, "column": node.Column, "table": table.Name}))
			}
		})
	}

	for i := range plan.SelectItems {
		visit(&plan.SelectItems[i].Expr)
	}
	if plan.Where != nil {
		visit(plan.Where)
	}
	for i := range plan.GroupBy {
		visit(&plan.GroupBy[i].Expr)
	}
	if plan.Having != nil {
		visit(plan.Having)
	}
	for i := range plan.OrderBy {
		visit(&plan.OrderBy[i].Expr)
	}
	for i := range plan.Joins {
		visit(&plan.Joins[i].Condition)
	}
	return errs
}

// columnError returns COLUMN_NOT_FOUND, downgraded to a warning (and
// implicitly non-retryable, since warnings never gate the retry router)
// when StrictColumns is false.
func (sg *Subgraph) columnError(message string, details map[string]any) models.PipelineError {
	e := models.NewPipelineError(models.ErrColumnNotFound, message, details)
	if !sg.cfg.StrictColumns {
		e.Severity = models.SeverityWarning
		e.Retryable = false
	}
	return e
}

// walkExpr recurses into every Expr node, including the children each
// tagged-union kind declares, invoking visit on every node (including
// the root).
func walkExpr(e *models.Expr, visit func(models.Expr)) {
	if e == nil {
		return
	}
	visit(*e)
	switch e.Kind {
	case models.ExprFunc:
		for i := range e.Args {
			walkExpr(&e.Args[i], visit)
		}
	case models.ExprBinary:
		walkExpr(e.Left, visit)
		walkExpr(e.Right, visit)
	case models.ExprUnary:
		walkExpr(e.Operand, visit)
	case models.ExprCase:
		for i := range e.WhenThen {
			walkExpr(&e.WhenThen[i].When, visit)
			walkExpr(&e.WhenThen[i].Then, visit)
		}
		walkExpr(e.Else, visit)
	}
}

// checkJoins validates alias existence, condition references to both
// sides, at least one equality pair, and that the pair matches a
// schema-declared relationship (foreign key) between the two tables.
func checkJoins(plan *models.PlanModel, aliasSet map[string]models.TableRef, tablesByAlias map[string]models.RelevantTable) []models.PipelineError {
	var errs []models.PipelineError
	leftAliasFor := func(j models.Join) string {
		// The left side of a join is any alias declared before this
		// join's right_alias that the condition actually references;
		// in this plan shape the left side is implicit in Condition,
		// so we derive it from the first non-right-alias column found.
		var found string
		walkExpr(&j.Condition, func(n models.Expr) {
			if n.Kind == models.ExprColumn && n.Alias != "" && n.Alias != j.RightAlias && found == "" {
				found = n.Alias
			}
		})
		return found
	}

	for _, j := range plan.Joins {
		if _, ok := aliasSet[j.RightAlias]; !ok {
			errs = append(errs, models.NewPipelineError(models.ErrJoinTableNotInPlan, "join right_alias is not a declared table alias", map[string]any{"right_alias": j.RightAlias}))
			continue
		}
		leftAlias := leftAliasFor(j)
		if leftAlias == "" {
			errs = append(errs, models.NewPipelineError(models.ErrInvalidPlanStructure, "join condition does not reference both sides", map[string]any{"right_alias": j.RightAlias}))
			continue
		}
		if _, ok := aliasSet[leftAlias]; !ok {
			errs = append(errs, models.NewPipelineError(models.ErrJoinTableNotInPlan, "join condition references an undeclared alias", map[string]any{"alias": leftAlias}))
			continue
		}

		pair, ok := findEqualityPair(j.Condition, leftAlias, j.RightAlias)
		if !ok {
			errs = append(errs, models.NewPipelineError(models.ErrInvalidPlanStructure, "join has no equality pair between both sides", map[string]any{"right_alias": j.RightAlias}))
			continue
		}

		leftTable, leftOK := tablesByAlias[leftAlias]
		rightTable, rightOK := tablesByAlias[j.RightAlias]
		if leftOK && rightOK && !relationshipExists(leftTable, rightTable, pair) {
			errs = append(errs, models.NewPipelineError(models.ErrInvalidPlanStructure, "join equality pair is not backed by a declared relationship", map[string]any{"left": leftTable.Name, "right": rightTable.Name, "left_col": pair.leftCol, "right_col": pair.rightCol}))
		}
	}
	return errs
}

type equalityPair struct {
	leftCol, rightCol string
}

// findEqualityPair walks the condition's AND-tree (or a bare equality)
// looking for a binary node with an equality op whose two column
// operands belong one to leftAlias and one to rightAlias.
func findEqualityPair(e models.Expr, leftAlias, rightAlias string) (equalityPair, bool) {
	var found equalityPair
	var ok bool
	var visit func(models.Expr)
	visit = func(n models.Expr) {
		if ok || n.Kind != models.ExprBinary {
			return
		}
		if isAndOp(n.Op) {
			if n.Left != nil {
				visit(*n.Left)
			}
			if n.Right != nil {
				visit(*n.Right)
			}
			return
		}
		if !isEqOp(n.Op) || n.Left == nil || n.Right == nil {
			return
		}
		if n.Left.Kind != models.ExprColumn || n.Right.Kind != models.ExprColumn {
			return
		}
		switch {
		case n.Left.Alias == leftAlias && n.Right.Alias == rightAlias:
			found = equalityPair{leftCol: n.Left.Column, rightCol: n.Right.Column}
			ok = true
		case n.Left.Alias == rightAlias && n.Right.Alias == leftAlias:
			found = equalityPair{leftCol: n.Right.Column, rightCol: n.Left.Column}
			ok = true
		}
	}
	visit(e)
	return found, ok
}

func isAndOp(op string) bool { return op == "and" || op == "AND" || op == "&&" }
func isEqOp(op string) bool  { return op == "eq" || op == "==" || op == "=" }

// relationshipExists reports whether either table declares a foreign
// key whose (columns, ref_table, ref_columns) matches the equality pair
// in either direction.
func relationshipExists(left, right models.RelevantTable, pair equalityPair) bool {
	for _, fk := range left.ForeignKeys {
		if fk.RefTable == right.Name && containsColumnPair(fk.Columns, fk.RefColumns, pair.leftCol, pair.rightCol) {
			return true
		}
	}
	for _, fk := range right.ForeignKeys {
		if fk.RefTable == left.Name && containsColumnPair(fk.Columns, fk.RefColumns, pair.rightCol, pair.leftCol) {
			return true
		}
	}
	return false
}

func containsColumnPair(cols, refCols []string, col, refCol string) bool {
	for i, c := range cols {
		if c == col && i < len(refCols) && refCols[i] == refCol {
			return true
		}
	}
	return false
}

// checkPolicy resolves ds_id.table for every referenced table and denies
// fail-closed if any is missing or disallowed.
func (sg *Subgraph) checkPolicy(state *models.SubgraphExecutionState, plan *models.PlanModel) []models.PipelineError {
	if sg.deps.Policy == nil {
		return nil
	}
	dsID := state.SubQuery.DatasourceID
	refs := make([]policy.TableRef, 0, len(plan.Tables))
	for _, t := range plan.Tables {
		refs = append(refs, policy.TableRef{DatasourceID: dsID, Table: t.Name})
	}
	denied := sg.deps.Policy.CheckAll(state.UserContext, refs)
	if len(denied) == 0 {
		return nil
	}
	var errs []models.PipelineError
	for _, d := range denied {
		errs = append(errs, models.NewPipelineError(models.ErrSecurityViolation, "policy denies access to table", map[string]any{"datasource_id": d.DatasourceID, "table": d.Table}))
	}
	return errs
}
