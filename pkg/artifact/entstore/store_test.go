package entstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nl2sql-engine/core/pkg/artifact/localfs"
	"github.com/nl2sql-engine/core/pkg/models"
	testutil "github.com/nl2sql-engine/core/test/util"
)

func TestStore_PutIndexesRefThenListByRequest(t *testing.T) {
	client, _ := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	inner, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	store := New(client, inner)

	frame := models.ResultFrame{Columns: []string{"id"}, Rows: [][]any{{1}, {2}}, RowCount: 2}
	ref, err := store.Put(ctx, "tenant1", "req1", "sg1", "node1", "v1", frame)
	require.NoError(t, err)
	assert.Equal(t, "local", ref.Backend)

	loaded, err := store.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, frame.RowCount, loaded.RowCount)

	refs, err := store.ListByRequest(ctx, "tenant1", "req1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, ref.ContentHash, refs[0].ContentHash)
	assert.Equal(t, "v1", refs[0].SchemaVersion)
}

func TestStore_PutSameContentTwiceIsNotAnError(t *testing.T) {
	client, _ := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	inner, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	store := New(client, inner)

	frame := models.ResultFrame{Columns: []string{"id"}, Rows: [][]any{{1}}, RowCount: 1}
	ref1, err := store.Put(ctx, "tenant1", "req1", "sg1", "node1", "v1", frame)
	require.NoError(t, err)
	ref2, err := store.Put(ctx, "tenant1", "req1", "sg1", "node1", "v1", frame)
	require.NoError(t, err)
	assert.Equal(t, ref1.ContentHash, ref2.ContentHash)
}
