package retrieval

import (
	"context"
	"testing"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestChunks(t *testing.T) []models.Chunk {
	t.Helper()
	contract := models.SchemaContract{Tables: map[string]models.TableContract{
		"machines": {
			Columns: map[string]models.ColumnContract{
				"id":     {Type: "int"},
				"status": {Type: "text"},
			},
			PrimaryKey: []string{"id"},
		},
	}}
	snapshot := models.SchemaSnapshot{DatasourceID: "ops", Version: "20260101000000_abcd1234", Contract: contract}
	chunks, err := BuildChunks("ops", snapshot, []string{"list machines"})
	require.NoError(t, err)
	return chunks
}

func TestInMemoryIndex_RBACFilterExcludesDeniedDatasources(t *testing.T) {
	idx := NewInMemoryIndex(NewHashEmbedder(16))
	ctx := context.Background()
	require.NoError(t, idx.Refresh(ctx, "ops", WrapChunks(buildTestChunks(t))))

	results, err := idx.RetrieveDatasourceCandidates(ctx, "machines", 5, Filter{AllowedDatasourceIDs: []string{"other_ds"}})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.RetrieveDatasourceCandidates(ctx, "machines", 5, Filter{AllowedDatasourceIDs: []string{"ops"}})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestInMemoryIndex_RetrieveSchemaContextReturnsTableChunks(t *testing.T) {
	idx := NewInMemoryIndex(NewHashEmbedder(16))
	ctx := context.Background()
	require.NoError(t, idx.Refresh(ctx, "ops", WrapChunks(buildTestChunks(t))))

	results, err := idx.RetrieveSchemaContext(ctx, "machines", 5, Filter{AllowedDatasourceIDs: []string{"ops"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ChunkKindTable, results[0].Kind)
	assert.Equal(t, "machines", results[0].Table)
}

func TestInMemoryIndex_RetrievePlanningContextScopesToTables(t *testing.T) {
	idx := NewInMemoryIndex(NewHashEmbedder(16))
	ctx := context.Background()
	require.NoError(t, idx.Refresh(ctx, "ops", WrapChunks(buildTestChunks(t))))

	results, err := idx.RetrievePlanningContext(ctx, "status", []string{"machines"}, 5, Filter{AllowedDatasourceIDs: []string{"ops"}})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, models.ChunkKindColumn, r.Kind)
	}
}

func TestBuildChunks_DeterministicIDsIncludeSchemaVersion(t *testing.T) {
	chunks1 := buildTestChunks(t)
	chunks2 := buildTestChunks(t)
	require.Equal(t, len(chunks1), len(chunks2))
	for i := range chunks1 {
		assert.Equal(t, chunks1[i].ID, chunks2[i].ID)
	}
}
