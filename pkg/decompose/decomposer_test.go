package decompose

import (
	"context"
	"testing"

	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_SingleSubquery(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddSequential(llmclient.ScriptEntry{Response: map[string]any{
		"sub_queries": []map[string]any{
			{"temp_id": "t1", "datasource_id": "sales_db", "intent": "total revenue last quarter"},
		},
	}})

	d := New(llm, nil)
	resp, err := d.Decompose(context.Background(), "what was revenue last quarter", []AllowedDatasource{{ID: "sales_db", SchemaVersion: "v1"}})
	require.NoError(t, err)

	require.Len(t, resp.SubQueries, 1)
	assert.Equal(t, "sales_db", resp.SubQueries[0].DatasourceID)
	assert.Equal(t, "v1", resp.SubQueries[0].SchemaVersion)
	assert.NotEmpty(t, resp.SubQueries[0].ID)
	assert.Empty(t, resp.UnmappedSubqueries)
}

func TestDecompose_UnmappedDatasourceIsDropped(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddSequential(llmclient.ScriptEntry{Response: map[string]any{
		"sub_queries": []map[string]any{
			{"temp_id": "t1", "datasource_id": "not_allowed_db", "intent": "widget counts"},
		},
	}})

	d := New(llm, nil)
	resp, err := d.Decompose(context.Background(), "how many widgets", []AllowedDatasource{{ID: "sales_db", SchemaVersion: "v1"}})
	require.NoError(t, err)

	assert.Empty(t, resp.SubQueries)
	require.Len(t, resp.UnmappedSubqueries, 1)
	assert.Equal(t, "not_allowed_db", resp.UnmappedSubqueries[0].DatasourceID)
}

func TestDecompose_RejectsSQLTokenInIntent(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddSequential(llmclient.ScriptEntry{Response: map[string]any{
		"sub_queries": []map[string]any{
			{"temp_id": "t1", "datasource_id": "sales_db", "intent": "SELECT total revenue FROM orders"},
		},
	}})

	d := New(llm, nil)
	_, err := d.Decompose(context.Background(), "revenue", []AllowedDatasource{{ID: "sales_db", SchemaVersion: "v1"}})
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*ErrSQLTokenInIntent))
}

func TestDecompose_CombineGroupRemapsTempIDsAndDropsUnknownInputs(t *testing.T) {
	llm := llmclient.NewScripted()
	llm.AddSequential(llmclient.ScriptEntry{Response: map[string]any{
		"sub_queries": []map[string]any{
			{"temp_id": "t1", "datasource_id": "sales_db", "intent": "orders by region"},
			{"temp_id": "t2", "datasource_id": "crm_db", "intent": "accounts by region"},
		},
		"combine_groups": []map[string]any{
			{
				"temp_id": "g1", "op": "join",
				"inputs":    []string{"t1", "t2"},
				"roles":     map[string]string{"t1": "left", "t2": "right"},
				"join_keys": []map[string]string{{"left": "region", "right": "region"}},
			},
			{
				"temp_id": "g2", "op": "union",
				"inputs": []string{"t1", "t_unknown"},
			},
		},
		"post_combine_ops": []map[string]any{
			{"op": "limit", "target": "g1", "params": map[string]any{"n": 10}},
			{"op": "sort", "target": "g_missing"},
		},
	}})

	d := New(llm, nil)
	resp, err := d.Decompose(context.Background(), "compare regions", []AllowedDatasource{
		{ID: "sales_db", SchemaVersion: "v1"},
		{ID: "crm_db", SchemaVersion: "v1"},
	})
	require.NoError(t, err)

	require.Len(t, resp.CombineGroups, 1)
	group := resp.CombineGroups[0]
	assert.Len(t, group.Inputs, 2)
	for _, in := range group.Inputs {
		assert.Contains(t, []string{resp.SubQueries[0].ID, resp.SubQueries[1].ID}, in)
	}

	require.Len(t, resp.PostCombineOps, 1)
	assert.Equal(t, group.ID, resp.PostCombineOps[0].Target)
}

func TestDecompose_DeterministicAcrossRuns(t *testing.T) {
	build := func() (any, error) {
		llm := llmclient.NewScripted()
		llm.AddSequential(llmclient.ScriptEntry{Response: map[string]any{
			"sub_queries": []map[string]any{
				{"temp_id": "t1", "datasource_id": "sales_db", "intent": "total revenue last quarter"},
			},
		}})
		d := New(llm, nil)
		return d.Decompose(context.Background(), "what was revenue last quarter", []AllowedDatasource{{ID: "sales_db", SchemaVersion: "v1"}})
	}

	r1, err := build()
	require.NoError(t, err)
	r2, err := build()
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
