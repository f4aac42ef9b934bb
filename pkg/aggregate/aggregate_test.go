package aggregate

import (
	"context"
	"testing"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	byURI map[string]models.ResultFrame
}

func (f *fakeLoader) Load(_ context.Context, ref models.ArtifactRef) (models.ResultFrame, error) {
	return f.byURI[ref.URI], nil
}

func scanNode(id string, cols []string) models.LogicalNode {
	return models.LogicalNode{ID: "scan_" + id, Kind: models.NodeScan, OutputSchema: models.RelationSchema{Columns: cols}}
}

func TestAggregate_MissingArtifactFails(t *testing.T) {
	dag := models.ExecutionDAG{Nodes: []models.LogicalNode{scanNode("a", []string{"x"})}, Layers: [][]string{{"scan_a"}}}
	_, perr := Aggregate(context.Background(), dag, map[string]models.ArtifactRef{}, &fakeLoader{})
	require.NotNil(t, perr)
	assert.Equal(t, models.ErrAggregatorFailed, perr.Code)
}

func TestAggregate_SingleScanTerminal(t *testing.T) {
	dag := models.ExecutionDAG{Nodes: []models.LogicalNode{scanNode("a", []string{"region", "revenue"})}, Layers: [][]string{{"scan_a"}}}
	refs := map[string]models.ArtifactRef{"scan_a": {URI: "uri-a"}}
	loader := &fakeLoader{byURI: map[string]models.ResultFrame{
		"uri-a": {Columns: []string{"region", "revenue"}, Rows: [][]any{{"west", 100.0}, {"east", 200.0}}, RowCount: 2},
	}}

	resp, perr := Aggregate(context.Background(), dag, refs, loader)
	require.Nil(t, perr)
	require.Contains(t, resp.TerminalResults, "scan_a")
	assert.Equal(t, 2, resp.TerminalResults["scan_a"].RowCount)
}

func TestAggregate_JoinCombinesOnKeys(t *testing.T) {
	scanOrders := scanNode("orders", []string{"region", "orders"})
	scanAccounts := scanNode("accounts", []string{"region", "accounts"})
	combineNode := models.LogicalNode{
		ID:   "combine_g1",
		Kind: models.NodeCombine,
		Inputs: []string{"scan_orders", "scan_accounts"},
		OutputSchema: models.RelationSchema{Columns: []string{"region", "orders", "accounts"}},
		Attributes: map[string]any{
			"op":        "join",
			"join_keys": []models.JoinKeyPair{{Left: "region", Right: "region"}},
		},
	}
	dag := models.ExecutionDAG{
		Nodes:  []models.LogicalNode{scanOrders, scanAccounts, combineNode},
		Edges:  []models.Edge{{From: "scan_orders", To: "combine_g1"}, {From: "scan_accounts", To: "combine_g1"}},
		Layers: [][]string{{"scan_accounts", "scan_orders"}, {"combine_g1"}},
	}
	refs := map[string]models.ArtifactRef{"scan_orders": {URI: "orders"}, "scan_accounts": {URI: "accounts"}}
	loader := &fakeLoader{byURI: map[string]models.ResultFrame{
		"orders":   {Columns: []string{"region", "orders"}, Rows: [][]any{{"west", 5.0}, {"east", 7.0}}},
		"accounts": {Columns: []string{"region", "accounts"}, Rows: [][]any{{"west", 2.0}}},
	}}

	resp, perr := Aggregate(context.Background(), dag, refs, loader)
	require.Nil(t, perr)
	require.Contains(t, resp.TerminalResults, "combine_g1")
	joined := resp.TerminalResults["combine_g1"]
	require.Equal(t, 1, joined.RowCount)
}

func TestAggregate_LimitPostOp(t *testing.T) {
	scan := scanNode("a", []string{"x"})
	limitNode := models.LogicalNode{
		ID: "post_p1", Kind: models.NodePostLimit, Inputs: []string{"scan_a"},
		OutputSchema: models.RelationSchema{Columns: []string{"x"}},
		Attributes:   map[string]any{"params": map[string]any{"n": 1.0}},
	}
	dag := models.ExecutionDAG{
		Nodes:  []models.LogicalNode{scan, limitNode},
		Edges:  []models.Edge{{From: "scan_a", To: "post_p1"}},
		Layers: [][]string{{"scan_a"}, {"post_p1"}},
	}
	refs := map[string]models.ArtifactRef{"scan_a": {URI: "a"}}
	loader := &fakeLoader{byURI: map[string]models.ResultFrame{
		"a": {Columns: []string{"x"}, Rows: [][]any{{1.0}, {2.0}, {3.0}}},
	}}

	resp, perr := Aggregate(context.Background(), dag, refs, loader)
	require.Nil(t, perr)
	assert.Equal(t, 1, resp.TerminalResults["post_p1"].RowCount)
	assert.NotContains(t, resp.TerminalResults, "scan_a")
}
