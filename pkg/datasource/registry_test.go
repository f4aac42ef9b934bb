package datasource

import (
	"context"
	"testing"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	id   string
	caps models.Capabilities
}

func (f *fakeAdapter) DatasourceID() string                { return f.id }
func (f *fakeAdapter) EngineType() string                   { return "postgres" }
func (f *fakeAdapter) Dialect() string                      { return "postgres" }
func (f *fakeAdapter) RowLimit() int                        { return 1000 }
func (f *fakeAdapter) MaxBytes() int64                      { return 1 << 20 }
func (f *fakeAdapter) Capabilities() models.Capabilities     { return f.caps }
func (f *fakeAdapter) FetchSchemaSnapshot(context.Context) (models.SchemaSnapshot, error) {
	return models.SchemaSnapshot{}, nil
}
func (f *fakeAdapter) Execute(context.Context, Request) (models.ResultFrame, error) {
	return models.ResultFrame{}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{id: "ops", caps: models.Capabilities{SupportsSQL: true}}
	reg.Register(a)

	got, ok := reg.Get("ops")
	require.True(t, ok)
	assert.Equal(t, "ops", got.DatasourceID())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_IDsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{id: "zeta"})
	reg.Register(&fakeAdapter{id: "alpha"})
	assert.Equal(t, []string{"alpha", "zeta"}, reg.IDs())
}

func TestSubgraphRegistry_SelectFirstCompatible(t *testing.T) {
	sr := NewSubgraphRegistry()
	sr.Register(SubgraphDescriptor{Name: "dry-run-sql", RequiredCapabilities: models.Capabilities{SupportsSQL: true, SupportsDryRun: true}})
	sr.Register(SubgraphDescriptor{Name: "plain-sql", RequiredCapabilities: models.Capabilities{SupportsSQL: true}})

	caps := models.Capabilities{SupportsSQL: true}
	d, err := sr.Select(caps)
	require.NoError(t, err)
	assert.Equal(t, "plain-sql", d.Name)
}

func TestSubgraphRegistry_NoCompatible(t *testing.T) {
	sr := NewSubgraphRegistry()
	sr.Register(SubgraphDescriptor{Name: "plain-sql", RequiredCapabilities: models.Capabilities{SupportsSQL: true}})

	_, err := sr.Select(models.Capabilities{})
	require.ErrorIs(t, err, ErrNoCompatibleSubgraph)
}
