// Package aggregate applies the global ExecutionDAG's combine and
// post-combine layers over the per-subquery result frames execution
// produced, entirely in memory, and selects the terminal results a
// pipeline run returns. Grounded on the join-plan / post-join-operator
// shape retrieved from saurabh22suman-canonica-labs' federation engine,
// expressed over the teacher's own ResultFrame/PipelineError types.
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/nl2sql-engine/core/pkg/models"
)

// frame is the aggregator's working representation: Columns plus
// row-maps, easier to project/filter/join by name than ResultFrame's
// positional [][]any.
type frame struct {
	columns []string
	rows    []map[string]any
}

func fromResultFrame(rf models.ResultFrame) frame {
	rows := make([]map[string]any, 0, len(rf.Rows))
	for _, r := range rf.Rows {
		row := make(map[string]any, len(rf.Columns))
		for i, col := range rf.Columns {
			if i < len(r) {
				row[col] = r[i]
			}
		}
		rows = append(rows, row)
	}
	return frame{columns: append([]string(nil), rf.Columns...), rows: rows}
}

func (f frame) toResultFrame() models.ResultFrame {
	rows := make([][]any, 0, len(f.rows))
	for _, row := range f.rows {
		r := make([]any, len(f.columns))
		for i, col := range f.columns {
			r[i] = row[col]
		}
		rows = append(rows, r)
	}
	return models.ResultFrame{Columns: f.columns, Rows: rows, RowCount: len(rows)}
}

// Aggregate validates that every scan node's artifact was produced,
// applies the DAG's combine and post-combine layers in topological
// order, and returns the terminal node results (nodes with no outgoing
// edges), sorted by node ID.
func Aggregate(ctx context.Context, dag models.ExecutionDAG, artifactRefs map[string]models.ArtifactRef, store ArtifactLoader) (models.AggregatorResponse, *models.PipelineError) {
	nodeByID := make(map[string]models.LogicalNode, len(dag.Nodes))
	for _, n := range dag.Nodes {
		nodeByID[n.ID] = n
	}

	for _, n := range dag.Nodes {
		if n.Kind != models.NodeScan {
			continue
		}
		if _, ok := artifactRefs[n.ID]; !ok {
			return models.AggregatorResponse{}, aggregatorFailed("scan node has no artifact", map[string]any{"node_id": n.ID})
		}
	}

	computed := make(map[string]frame, len(dag.Nodes))

	for _, layer := range dag.Layers {
		for _, nodeID := range layer {
			node := nodeByID[nodeID]
			switch node.Kind {
			case models.NodeScan:
				ref := artifactRefs[nodeID]
				rf, err := store.Load(ctx, ref)
				if err != nil {
					return models.AggregatorResponse{}, aggregatorFailed("failed to load scan artifact", map[string]any{"node_id": nodeID, "error": err.Error()})
				}
				computed[nodeID] = fromResultFrame(rf)
			case models.NodeCombine:
				f, perr := combine(node, computed)
				if perr != nil {
					return models.AggregatorResponse{}, perr
				}
				computed[nodeID] = f
			default:
				f, perr := postOp(node, computed)
				if perr != nil {
					return models.AggregatorResponse{}, perr
				}
				computed[nodeID] = f
			}
		}
	}

	hasOutgoing := make(map[string]bool, len(dag.Nodes))
	for _, e := range dag.Edges {
		hasOutgoing[e.From] = true
	}

	var terminalIDs []string
	for _, n := range dag.Nodes {
		if !hasOutgoing[n.ID] {
			terminalIDs = append(terminalIDs, n.ID)
		}
	}
	sort.Strings(terminalIDs)

	results := make(map[string]models.ResultFrame, len(terminalIDs))
	for _, id := range terminalIDs {
		results[id] = computed[id].toResultFrame()
	}

	return models.AggregatorResponse{TerminalResults: results}, nil
}

// ArtifactLoader is the subset of artifact.Store the aggregator needs.
type ArtifactLoader interface {
	Load(ctx context.Context, ref models.ArtifactRef) (models.ResultFrame, error)
}

func combine(node models.LogicalNode, computed map[string]frame) (frame, *models.PipelineError) {
	op, _ := node.Attributes["op"].(string)
	inputs := make([]frame, 0, len(node.Inputs))
	for _, in := range node.Inputs {
		f, ok := computed[in]
		if !ok {
			return frame{}, aggregatorFailed("combine input not computed", map[string]any{"node_id": node.ID, "input": in})
		}
		inputs = append(inputs, f)
	}

	switch models.CombineOp(op) {
	case models.CombineOpUnion:
		return unionFrames(inputs), nil
	case models.CombineOpJoin, models.CombineOpCompare:
		// compare shares join's equi-join mechanics; its distinguishing
		// semantics (row-level diffing) belong to whichever post op
		// consumes its output, not to the combine step itself.
		joinKeys := decodeJoinKeys(node.Attributes)
		if len(inputs) != 2 {
			return frame{}, aggregatorFailed("join/compare requires exactly two inputs", map[string]any{"node_id": node.ID, "input_count": len(inputs)})
		}
		return joinFrames(inputs[0], inputs[1], joinKeys), nil
	default:
		return frame{}, aggregatorFailed("unknown combine op", map[string]any{"node_id": node.ID, "op": op})
	}
}

func decodeJoinKeys(attrs map[string]any) []models.JoinKeyPair {
	raw, ok := attrs["join_keys"]
	if !ok {
		return nil
	}
	pairs, ok := raw.([]models.JoinKeyPair)
	if ok {
		return pairs
	}
	return nil
}

func unionFrames(inputs []frame) frame {
	if len(inputs) == 0 {
		return frame{}
	}
	out := frame{columns: inputs[0].columns}
	for _, f := range inputs {
		out.rows = append(out.rows, f.rows...)
	}
	return out
}

func joinFrames(left, right frame, keys []models.JoinKeyPair) frame {
	columns := append([]string(nil), left.columns...)
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		seen[c] = struct{}{}
	}
	for _, c := range right.columns {
		if _, dup := seen[c]; dup {
			continue
		}
		columns = append(columns, c)
		seen[c] = struct{}{}
	}

	index := make(map[string][]map[string]any, len(right.rows))
	for _, r := range right.rows {
		k := joinKey(r, keys, false)
		index[k] = append(index[k], r)
	}

	out := frame{columns: columns}
	for _, lr := range left.rows {
		k := joinKey(lr, keys, true)
		for _, rr := range index[k] {
			merged := make(map[string]any, len(columns))
			for col, v := range lr {
				merged[col] = v
			}
			for col, v := range rr {
				if _, exists := merged[col]; !exists {
					merged[col] = v
				}
			}
			out.rows = append(out.rows, merged)
		}
	}
	return out
}

func joinKey(row map[string]any, keys []models.JoinKeyPair, left bool) string {
	key := ""
	for _, kp := range keys {
		col := kp.Right
		if left {
			col = kp.Left
		}
		key += fmt.Sprintf("%v\x1f", row[col])
	}
	return key
}

func postOp(node models.LogicalNode, computed map[string]frame) (frame, *models.PipelineError) {
	if len(node.Inputs) != 1 {
		return frame{}, aggregatorFailed("post op requires exactly one input", map[string]any{"node_id": node.ID})
	}
	in, ok := computed[node.Inputs[0]]
	if !ok {
		return frame{}, aggregatorFailed("post op input not computed", map[string]any{"node_id": node.ID})
	}

	params, _ := node.Attributes["params"].(map[string]any)

	switch node.Kind {
	case models.NodePostFilter:
		return filterFrame(in, params), nil
	case models.NodePostProject:
		return projectFrame(in, params), nil
	case models.NodePostSort:
		return sortFrame(in, params), nil
	case models.NodePostLimit:
		return limitFrame(in, params), nil
	case models.NodePostAggregate:
		return aggregateFrame(in, params), nil
	default:
		return frame{}, aggregatorFailed("unknown post op node kind", map[string]any{"node_id": node.ID, "kind": string(node.Kind)})
	}
}

func filterFrame(in frame, params map[string]any) frame {
	col, _ := params["column"].(string)
	op, _ := params["op"].(string)
	value := params["value"]
	if col == "" {
		return in
	}

	out := frame{columns: in.columns}
	for _, row := range in.rows {
		if matchesFilter(row[col], op, value) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

func matchesFilter(v any, op string, value any) bool {
	switch op {
	case "", "eq":
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", value)
	case "neq":
		return fmt.Sprintf("%v", v) != fmt.Sprintf("%v", value)
	case "gt":
		return compareNumeric(v, value) > 0
	case "gte":
		return compareNumeric(v, value) >= 0
	case "lt":
		return compareNumeric(v, value) < 0
	case "lte":
		return compareNumeric(v, value) <= 0
	default:
		return false
	}
}

func compareNumeric(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0
	}
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func projectFrame(in frame, params map[string]any) frame {
	raw, ok := params["columns"].([]any)
	if !ok {
		return in
	}
	cols := make([]string, 0, len(raw))
	for _, c := range raw {
		if s, ok := c.(string); ok {
			cols = append(cols, s)
		}
	}
	out := frame{columns: cols}
	for _, row := range in.rows {
		projected := make(map[string]any, len(cols))
		for _, c := range cols {
			projected[c] = row[c]
		}
		out.rows = append(out.rows, projected)
	}
	return out
}

func sortFrame(in frame, params map[string]any) frame {
	col, _ := params["column"].(string)
	dir, _ := params["dir"].(string)
	out := frame{columns: in.columns, rows: append([]map[string]any(nil), in.rows...)}
	if col == "" {
		return out
	}
	sort.SliceStable(out.rows, func(i, j int) bool {
		less := fmt.Sprintf("%v", out.rows[i][col]) < fmt.Sprintf("%v", out.rows[j][col])
		if dir == "desc" {
			return !less
		}
		return less
	})
	return out
}

func limitFrame(in frame, params map[string]any) frame {
	n, ok := toFloat(params["n"])
	if !ok || int(n) >= len(in.rows) {
		return in
	}
	limit := int(n)
	if limit < 0 {
		limit = 0
	}
	return frame{columns: in.columns, rows: in.rows[:limit]}
}

func aggregateFrame(in frame, params map[string]any) frame {
	groupByRaw, _ := params["group_by"].([]any)
	groupBy := make([]string, 0, len(groupByRaw))
	for _, g := range groupByRaw {
		if s, ok := g.(string); ok {
			groupBy = append(groupBy, s)
		}
	}
	metricsRaw, _ := params["metrics"].([]any)

	type bucket struct {
		key  map[string]any
		rows []map[string]any
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, row := range in.rows {
		k := ""
		keyVals := make(map[string]any, len(groupBy))
		for _, g := range groupBy {
			keyVals[g] = row[g]
			k += fmt.Sprintf("%v\x1f", row[g])
		}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: keyVals}
			buckets[k] = b
			order = append(order, k)
		}
		b.rows = append(b.rows, row)
	}
	sort.Strings(order)

	columns := append([]string(nil), groupBy...)
	metricAliases := make([]string, 0, len(metricsRaw))
	for _, m := range metricsRaw {
		spec, ok := m.(map[string]any)
		if !ok {
			continue
		}
		alias, _ := spec["alias"].(string)
		if alias == "" {
			alias, _ = spec["column"].(string)
		}
		metricAliases = append(metricAliases, alias)
		columns = append(columns, alias)
	}

	out := frame{columns: columns}
	for _, k := range order {
		b := buckets[k]
		row := make(map[string]any, len(columns))
		for _, g := range groupBy {
			row[g] = b.key[g]
		}
		for _, m := range metricsRaw {
			spec, ok := m.(map[string]any)
			if !ok {
				continue
			}
			applyMetric(row, spec, b.rows)
		}
		out.rows = append(out.rows, row)
	}
	return out
}

func applyMetric(row map[string]any, spec map[string]any, rows []map[string]any) {
	fn, _ := spec["func"].(string)
	col, _ := spec["column"].(string)
	alias, _ := spec["alias"].(string)
	if alias == "" {
		alias = col
	}
	switch fn {
	case "count":
		row[alias] = len(rows)
	case "sum":
		var sum float64
		for _, r := range rows {
			if f, ok := toFloat(r[col]); ok {
				sum += f
			}
		}
		row[alias] = sum
	case "avg":
		var sum float64
		var n int
		for _, r := range rows {
			if f, ok := toFloat(r[col]); ok {
				sum += f
				n++
			}
		}
		if n > 0 {
			row[alias] = sum / float64(n)
		} else {
			row[alias] = nil
		}
	case "min", "max":
		var best float64
		first := true
		for _, r := range rows {
			f, ok := toFloat(r[col])
			if !ok {
				continue
			}
			if first || (fn == "min" && f < best) || (fn == "max" && f > best) {
				best = f
				first = false
			}
		}
		row[alias] = best
	default:
		row[alias] = nil
	}
}

func aggregatorFailed(message string, details map[string]any) *models.PipelineError {
	e := models.NewPipelineError(models.ErrAggregatorFailed, message, details)
	return &e
}
