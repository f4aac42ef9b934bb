package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/nl2sql-engine/core/pkg/models"
)

// chunkWithScore is the index's internal representation: a models.Chunk
// plus its embedding vector. Exported as the Chunk alias so callers never
// need to import this file's internals.
type chunkWithScore struct {
	models.Chunk
	Embedding []float64
}

// InMemoryIndex is a process-local VectorIndex backed by a slice of
// embedded chunks, ranked by maximum-marginal-relevance. It exists so the
// core is independently testable without a concrete vector database;
// production deployments supply their own VectorIndex.
type InMemoryIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	byDS     map[string][]chunkWithScore
}

// NewInMemoryIndex constructs an empty index using embedder to vectorize
// both chunk text and queries.
func NewInMemoryIndex(embedder Embedder) *InMemoryIndex {
	return &InMemoryIndex{embedder: embedder, byDS: make(map[string][]chunkWithScore)}
}

// Refresh implements VectorIndex: full-replace of dsID's chunks.
func (idx *InMemoryIndex) Refresh(ctx context.Context, dsID string, chunks []Chunk) error {
	embedded := make([]chunkWithScore, 0, len(chunks))
	for _, c := range chunks {
		vec := c.Embedding
		if vec == nil {
			text := c.Text
			if text == "" {
				text = chunkSearchText(c.Chunk)
			}
			v, err := idx.embedder.Embed(ctx, text)
			if err != nil {
				return err
			}
			vec = v
		}
		embedded = append(embedded, chunkWithScore{Chunk: c.Chunk, Embedding: vec})
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byDS[dsID] = embedded
	return nil
}

func chunkSearchText(c models.Chunk) string {
	switch c.Kind {
	case models.ChunkKindDatasource:
		return c.Description
	case models.ChunkKindTable:
		return c.Table
	case models.ChunkKindColumn:
		return c.Table + "." + c.Column
	case models.ChunkKindRelationship:
		return c.FromTable + "->" + c.ToTable
	default:
		return ""
	}
}

func (idx *InMemoryIndex) candidates(filter Filter) []chunkWithScore {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []chunkWithScore
	for dsID, chunks := range idx.byDS {
		if !filter.allows(dsID) {
			continue
		}
		out = append(out, chunks...)
	}
	return out
}

// RetrieveDatasourceCandidates implements VectorIndex, restricted to
// datasource-kind chunks.
func (idx *InMemoryIndex) RetrieveDatasourceCandidates(ctx context.Context, query string, k int, filter Filter) ([]Chunk, error) {
	return idx.retrieveKind(ctx, query, k, filter, models.ChunkKindDatasource)
}

// RetrieveSchemaContext implements VectorIndex, restricted to table-kind
// chunks (table/metric candidates).
func (idx *InMemoryIndex) RetrieveSchemaContext(ctx context.Context, query string, k int, filter Filter) ([]Chunk, error) {
	return idx.retrieveKind(ctx, query, k, filter, models.ChunkKindTable)
}

// RetrieveColumnCandidates implements VectorIndex, restricted to
// column-kind chunks.
func (idx *InMemoryIndex) RetrieveColumnCandidates(ctx context.Context, query string, k int, filter Filter) ([]Chunk, error) {
	return idx.retrieveKind(ctx, query, k, filter, models.ChunkKindColumn)
}

// RetrievePlanningContext implements VectorIndex: columns and
// relationships scoped to the given tables.
func (idx *InMemoryIndex) RetrievePlanningContext(ctx context.Context, query string, tables []string, k int, filter Filter) ([]Chunk, error) {
	tableSet := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		tableSet[t] = struct{}{}
	}

	pool := idx.candidates(filter)
	var scoped []chunkWithScore
	for _, c := range pool {
		switch c.Kind {
		case models.ChunkKindColumn:
			if _, ok := tableSet[c.Table]; ok {
				scoped = append(scoped, c)
			}
		case models.ChunkKindRelationship:
			_, fromOK := tableSet[c.FromTable]
			_, toOK := tableSet[c.ToTable]
			if fromOK || toOK {
				scoped = append(scoped, c)
			}
		}
	}
	return idx.rank(ctx, query, k, scoped)
}

func (idx *InMemoryIndex) retrieveKind(ctx context.Context, query string, k int, filter Filter, kind models.ChunkKind) ([]Chunk, error) {
	pool := idx.candidates(filter)
	var scoped []chunkWithScore
	for _, c := range pool {
		if c.Kind == kind {
			scoped = append(scoped, c)
		}
	}
	return idx.rank(ctx, query, k, scoped)
}

// rank applies maximum-marginal-relevance over scoped against a
// fetch_k = DefaultFetchKMult*k candidate pool, returning the top k.
func (idx *InMemoryIndex) rank(ctx context.Context, query string, k int, scoped []chunkWithScore) ([]Chunk, error) {
	if len(scoped) == 0 {
		return nil, nil
	}
	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	fetchK := k * DefaultFetchKMult
	if fetchK <= 0 || fetchK > len(scoped) {
		fetchK = len(scoped)
	}
	pool := make([]mmrCandidate, 0, len(scoped))
	for _, c := range scoped {
		pool = append(pool, mmrCandidate{chunkWithScore: c, sim: cosineSimilarity(queryVec, c.Embedding)})
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].sim > pool[j].sim })
	if len(pool) > fetchK {
		pool = pool[:fetchK]
	}

	selected := mmrSelect(pool, k, DefaultLambdaMult)
	out := make([]Chunk, 0, len(selected))
	for _, s := range selected {
		out = append(out, s.chunkWithScore)
	}
	return out, nil
}

// mmrCandidate pairs a chunk with its query similarity score, the input
// to maximum-marginal-relevance selection.
type mmrCandidate struct {
	chunkWithScore
	sim float64
}

// mmrSelect greedily picks up to k candidates from pool, at each step
// choosing the candidate maximizing
// lambda*relevance - (1-lambda)*max_similarity_to_already_selected.
func mmrSelect(pool []mmrCandidate, k int, lambda float64) []mmrCandidate {
	if k <= 0 || k > len(pool) {
		k = len(pool)
	}
	selected := make([]mmrCandidate, 0, k)
	remaining := append([]mmrCandidate(nil), pool...)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			redundancy := 0.0
			for _, s := range selected {
				sim := cosineSimilarity(cand.Embedding, s.Embedding)
				if sim > redundancy {
					redundancy = sim
				}
			}
			mmrScore := lambda*cand.sim - (1-lambda)*redundancy
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
