package planner

import (
	"testing"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subquery(t *testing.T, dsID, intent string, schema []string) models.SubQuery {
	t.Helper()
	sq := models.SubQuery{DatasourceID: dsID, Intent: intent, ExpectedSchema: schema}
	require.NoError(t, sq.AssignID())
	return sq
}

func TestPlan_SingleScanNoLayers(t *testing.T) {
	sq := subquery(t, "sales_db", "revenue by region", []string{"region", "revenue"})
	dag, err := Plan(models.DecomposerResponse{SubQueries: []models.SubQuery{sq}})
	require.Nil(t, err)

	require.Len(t, dag.Nodes, 1)
	assert.Equal(t, models.NodeScan, dag.Nodes[0].Kind)
	require.Len(t, dag.Layers, 1)
	assert.Equal(t, []string{dag.Nodes[0].ID}, dag.Layers[0])
	assert.NotEmpty(t, dag.DAGID)
	assert.NotEmpty(t, dag.ContentHash)
}

func TestPlan_CombineLayersAfterBothScans(t *testing.T) {
	sq1 := subquery(t, "sales_db", "orders by region", []string{"region", "orders"})
	sq2 := subquery(t, "crm_db", "accounts by region", []string{"region", "accounts"})

	group := models.CombineGroup{
		Op:       models.CombineOpJoin,
		Inputs:   []string{sq1.ID, sq2.ID},
		Roles:    map[string]string{sq1.ID: "left", sq2.ID: "right"},
		JoinKeys: []models.JoinKeyPair{{Left: "region", Right: "region"}},
	}
	require.NoError(t, group.AssignID())

	dag, perr := Plan(models.DecomposerResponse{SubQueries: []models.SubQuery{sq1, sq2}, CombineGroups: []models.CombineGroup{group}})
	require.Nil(t, perr)

	require.Len(t, dag.Layers, 2)
	assert.Len(t, dag.Layers[0], 2)
	assert.Len(t, dag.Layers[1], 1)
	assert.Equal(t, combineNodeID(group.ID), dag.Layers[1][0])
}

func TestPlan_UnknownCombineInputFails(t *testing.T) {
	sq := subquery(t, "sales_db", "revenue", []string{"revenue"})
	group := models.CombineGroup{Op: models.CombineOpUnion, Inputs: []string{sq.ID, "sq_does_not_exist"}}
	require.NoError(t, group.AssignID())

	_, perr := Plan(models.DecomposerResponse{SubQueries: []models.SubQuery{sq}, CombineGroups: []models.CombineGroup{group}})
	require.NotNil(t, perr)
	assert.Equal(t, models.ErrPlannerFailed, perr.Code)
	assert.Equal(t, models.SeverityCritical, perr.Severity)
	assert.False(t, perr.Retryable)
}

func TestPlan_DeterministicContentHash(t *testing.T) {
	build := func() models.ExecutionDAG {
		sq := subquery(t, "sales_db", "revenue by region", []string{"region", "revenue"})
		dag, err := Plan(models.DecomposerResponse{SubQueries: []models.SubQuery{sq}})
		require.Nil(t, err)
		return dag
	}
	d1 := build()
	d2 := build()
	assert.Equal(t, d1.ContentHash, d2.ContentHash)
	assert.Equal(t, d1.DAGID, d2.DAGID)
}
