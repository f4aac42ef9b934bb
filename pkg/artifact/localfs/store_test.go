package localfs

import (
	"context"
	"testing"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutThenLoadRoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	frame := models.ResultFrame{Columns: []string{"id", "name"}, Rows: [][]any{{1, "a"}, {2, "b"}}, RowCount: 2}
	ref, err := store.Put(context.Background(), "tenant1", "req1", "sg1", "node1", "v1", frame)
	require.NoError(t, err)
	assert.Equal(t, "local", ref.Backend)
	assert.NotEmpty(t, ref.ContentHash)

	loaded, err := store.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, frame.Columns, loaded.Columns)
	assert.Equal(t, frame.RowCount, loaded.RowCount)
}

func TestArtifactContentHash_IdempotentOnIdenticalInputs(t *testing.T) {
	h1, err := models.ArtifactContentHash([]string{"a"}, 1, "path")
	require.NoError(t, err)
	h2, err := models.ArtifactContentHash([]string{"a"}, 1, "path")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
