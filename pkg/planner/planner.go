// Package planner builds the deterministic ExecutionDAG from a
// decomposer response: one scan node per subquery, one combine node per
// combine group, one post node per post-combine op, mirrored edges, a
// layered topological sort, and the content-hash/dag-id pair.
// Grounded on the routing-plan DAG shape in itsneelabh-gomind's
// orchestration package and the planner node types in
// wbrown-janus-datalog, expressed with the teacher's own error-taxonomy
// conventions (models.PipelineError, not raw Go errors).
package planner

import (
	"sort"

	"github.com/nl2sql-engine/core/pkg/models"
)

const dagVersion = "v1"

// Plan builds an ExecutionDAG from a decomposer response. Subqueries
// must already carry their resolved ExpectedSchema; callers resolve
// that elsewhere (the per-subquery subgraph's ASTPlanner confirms it at
// execution time — the planner only needs the *declared* output shape
// to validate column uniqueness and edge endpoints up front).
func Plan(resp models.DecomposerResponse) (models.ExecutionDAG, *models.PipelineError) {
	nodes := make([]models.LogicalNode, 0, len(resp.SubQueries)+len(resp.CombineGroups)+len(resp.PostCombineOps))
	nodeByID := make(map[string]models.LogicalNode, cap(nodes))

	for _, sq := range resp.SubQueries {
		node := models.LogicalNode{
			ID:           scanNodeID(sq.ID),
			Kind:         models.NodeScan,
			Inputs:       nil,
			OutputSchema: models.RelationSchema{Columns: sq.ExpectedSchema},
			Attributes:   map[string]any{"subquery_id": sq.ID, "datasource_id": sq.DatasourceID},
		}
		nodes = append(nodes, node)
		nodeByID[node.ID] = node
	}

	subqueryByID := make(map[string]models.SubQuery, len(resp.SubQueries))
	for _, sq := range resp.SubQueries {
		subqueryByID[sq.ID] = sq
	}

	var edges []models.Edge

	for _, g := range resp.CombineGroups {
		nodeID := combineNodeID(g.ID)
		inputs := make([]string, 0, len(g.Inputs))
		schema := combinedSchema(g, subqueryByID)
		for _, subID := range g.Inputs {
			from := scanNodeID(subID)
			if _, ok := nodeByID[from]; !ok {
				return models.ExecutionDAG{}, plannerFailed("combine group references unknown subquery", map[string]any{"combine_group_id": g.ID, "subquery_id": subID})
			}
			inputs = append(inputs, from)
			edges = append(edges, models.Edge{From: from, To: nodeID})
		}
		node := models.LogicalNode{
			ID:           nodeID,
			Kind:         models.NodeCombine,
			Inputs:       inputs,
			OutputSchema: schema,
			Attributes:   map[string]any{"combine_group_id": g.ID, "op": string(g.Op), "join_keys": g.JoinKeys, "roles": g.Roles},
		}
		if !node.OutputSchema.UniqueColumns() {
			return models.ExecutionDAG{}, plannerFailed("combine node output schema has duplicate columns", map[string]any{"combine_group_id": g.ID})
		}
		nodes = append(nodes, node)
		nodeByID[node.ID] = node
	}

	for _, op := range resp.PostCombineOps {
		targetNodeID := combineNodeID(op.Target)
		targetNode, ok := nodeByID[targetNodeID]
		if !ok {
			return models.ExecutionDAG{}, plannerFailed("post-combine op references unknown combine group", map[string]any{"post_op_id": op.ID, "target": op.Target})
		}
		nodeID := postNodeID(op.ID)
		node := models.LogicalNode{
			ID:           nodeID,
			Kind:         postOpNodeKind(op.Op),
			Inputs:       []string{targetNodeID},
			OutputSchema: postOpOutputSchema(op, targetNode.OutputSchema),
			Attributes:   map[string]any{"post_op_id": op.ID, "op": string(op.Op), "params": op.Params},
		}
		if !node.OutputSchema.UniqueColumns() {
			return models.ExecutionDAG{}, plannerFailed("post node output schema has duplicate columns", map[string]any{"post_op_id": op.ID})
		}
		edges = append(edges, models.Edge{From: targetNodeID, To: nodeID})
		nodes = append(nodes, node)
		nodeByID[node.ID] = node
	}

	for _, e := range edges {
		if _, ok := nodeByID[e.From]; !ok {
			return models.ExecutionDAG{}, plannerFailed("edge references unknown node", map[string]any{"from": e.From})
		}
		if _, ok := nodeByID[e.To]; !ok {
			return models.ExecutionDAG{}, plannerFailed("edge references unknown node", map[string]any{"to": e.To})
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	layers, err := layer(nodes, edges)
	if err != nil {
		return models.ExecutionDAG{}, err
	}

	contentHash, dagID, hashErr := models.ComputeContentHash(nodes, edges, dagVersion)
	if hashErr != nil {
		return models.ExecutionDAG{}, plannerFailed("failed to compute dag content hash", map[string]any{"error": hashErr.Error()})
	}

	return models.ExecutionDAG{
		DAGID:       dagID,
		Nodes:       nodes,
		Edges:       edges,
		Layers:      layers,
		ContentHash: contentHash,
	}, nil
}

// layer performs a layered topological sort: repeatedly collect the set
// of not-yet-emitted nodes whose inputs are all already emitted, sort
// that ready-set by ID ascending, and emit it as the next layer. A
// non-empty remainder after no ready nodes are found indicates a cycle.
func layer(nodes []models.LogicalNode, edges []models.Edge) ([][]string, *models.PipelineError) {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n.ID] = len(n.Inputs)
	}
	for _, e := range edges {
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	remaining := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		remaining[n.ID] = struct{}{}
	}

	var layers [][]string
	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			if indegree[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, plannerFailed("execution dag contains a cycle", map[string]any{"remaining_node_count": len(remaining)})
		}
		sort.Strings(ready)
		layers = append(layers, ready)
		for _, id := range ready {
			delete(remaining, id)
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
	}
	return layers, nil
}

func combinedSchema(g models.CombineGroup, subqueryByID map[string]models.SubQuery) models.RelationSchema {
	seen := make(map[string]struct{})
	var cols []string
	for _, subID := range g.Inputs {
		sq, ok := subqueryByID[subID]
		if !ok {
			continue
		}
		for _, c := range sq.ExpectedSchema {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	return models.RelationSchema{Columns: cols}
}

func postOpOutputSchema(op models.PostCombineOp, input models.RelationSchema) models.RelationSchema {
	if op.Op != models.PostOpProject {
		return input
	}
	cols, ok := op.Params["columns"].([]any)
	if !ok {
		return input
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if s, ok := c.(string); ok {
			out = append(out, s)
		}
	}
	return models.RelationSchema{Columns: out}
}

func postOpNodeKind(op models.PostOp) models.NodeKind {
	switch op {
	case models.PostOpFilter:
		return models.NodePostFilter
	case models.PostOpAggregate:
		return models.NodePostAggregate
	case models.PostOpProject:
		return models.NodePostProject
	case models.PostOpSort:
		return models.NodePostSort
	case models.PostOpLimit:
		return models.NodePostLimit
	default:
		return models.NodePostFilter
	}
}

func scanNodeID(subqueryID string) string    { return "scan_" + subqueryID }
func combineNodeID(groupID string) string    { return "combine_" + groupID }
func postNodeID(postOpID string) string      { return "post_" + postOpID }

func plannerFailed(message string, details map[string]any) *models.PipelineError {
	e := models.NewPipelineError(models.ErrPlannerFailed, message, details)
	return &e
}
