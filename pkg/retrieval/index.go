package retrieval

import (
	"context"
	"errors"

	"github.com/nl2sql-engine/core/pkg/models"
)

// Embedder produces a vector embedding for a piece of text. Concrete
// embedding services live outside this module; the core consumes this
// interface only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Filter restricts retrieval results to a hard allow-list of datasource
// IDs — the RBAC pre-filter spec.md §4.3 requires on every retrieval
// call. An empty AllowedDatasourceIDs denies everything; retrieval
// callers must always populate it from the policy engine.
type Filter struct {
	AllowedDatasourceIDs []string
	DatasourceID         string // optional: narrow to one ds, e.g. planning context
}

func (f Filter) allows(dsID string) bool {
	if f.DatasourceID != "" && f.DatasourceID != dsID {
		return false
	}
	for _, allowed := range f.AllowedDatasourceIDs {
		if allowed == dsID {
			return true
		}
	}
	return false
}

// VectorIndex is the seam the core consumes for staged schema retrieval.
// Concrete vector database backends live outside this module.
type VectorIndex interface {
	// Refresh full-replaces the chunks for dsID under the schema version
	// embedded in each chunk.
	Refresh(ctx context.Context, dsID string, chunks []Chunk) error

	RetrieveDatasourceCandidates(ctx context.Context, query string, k int, filter Filter) ([]Chunk, error)
	RetrieveSchemaContext(ctx context.Context, query string, k int, filter Filter) ([]Chunk, error)
	RetrieveColumnCandidates(ctx context.Context, query string, k int, filter Filter) ([]Chunk, error)
	RetrievePlanningContext(ctx context.Context, query string, tables []string, k int, filter Filter) ([]Chunk, error)
}

// Chunk pairs a models.Chunk with its embedding vector, as held inside
// the index.
type Chunk = chunkWithScore

// ErrVectorUnavailable is the sentinel the VECTOR_BREAKER wraps around
// when the breaker is open; callers treat this as a non-fatal retrieval
// failure (empty candidates, reasoning entry).
var ErrVectorUnavailable = errors.New("retrieval: vector index unavailable")

// WrapChunks adapts plain models.Chunk values (as produced by
// BuildChunks) into the Chunk type VectorIndex.Refresh expects, with no
// embedding attached — the index computes one lazily from chunk text.
func WrapChunks(chunks []models.Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Chunk{Chunk: c})
	}
	return out
}

// RankingDefaults are the MMR parameters spec.md §4.3 specifies.
const (
	DefaultLambdaMult = 0.7
	DefaultFetchKMult = 4
)
