package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/nl2sql-engine/core/test/util"
)

func TestPipelineRunQueueEnqueueAndGet(t *testing.T) {
	client, _ := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	q := NewPipelineRunQueue(client)
	run, err := q.Enqueue(ctx, EnqueueRequest{
		TraceID:   "trace-1",
		UserQuery: "how many orders last week",
	})
	require.NoError(t, err)
	assert.Equal(t, "trace-1", run.ID)
	assert.Equal(t, "queued", string(run.Status))

	fetched, err := q.Get(ctx, "trace-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
}

func TestPipelineRunQueueEnqueueValidation(t *testing.T) {
	client, _ := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	q := NewPipelineRunQueue(client)

	_, err := q.Enqueue(ctx, EnqueueRequest{UserQuery: "missing trace id"})
	assert.Error(t, err)

	_, err = q.Enqueue(ctx, EnqueueRequest{TraceID: "trace-2"})
	assert.Error(t, err)
}
