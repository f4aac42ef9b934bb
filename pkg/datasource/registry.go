package datasource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nl2sql-engine/core/pkg/models"
)

// Registry holds registered adapters, keyed by datasource ID. Safe for
// concurrent reads; registration is expected at startup or via an admin
// API and is serialized internally.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for its DatasourceID().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.DatasourceID()] = a
}

// Get returns the adapter registered for id, if any.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns every registered datasource ID, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Datasource returns the models.Datasource view of a registered adapter.
func (r *Registry) Datasource(id string) (models.Datasource, bool) {
	a, ok := r.Get(id)
	if !ok {
		return models.Datasource{}, false
	}
	return models.Datasource{ID: a.DatasourceID(), EngineType: a.EngineType(), Capabilities: a.Capabilities()}, true
}

// ErrNoCompatibleSubgraph is returned (wrapped with details) when no
// registered subgraph's required capability set is a subset of the
// adapter's advertised capabilities.
var ErrNoCompatibleSubgraph = fmt.Errorf("datasource: no compatible subgraph")

// SubgraphDescriptor is one entry in a SubgraphRegistry: a name plus the
// capability set it requires from an adapter to run against it.
type SubgraphDescriptor struct {
	Name                 string
	RequiredCapabilities models.Capabilities
}

// SubgraphRegistry holds the ordered list of registered subgraph
// descriptors. Selection picks the first whose required capabilities are
// a subset of the adapter's advertised set, matching registration order.
type SubgraphRegistry struct {
	mu          sync.RWMutex
	descriptors []SubgraphDescriptor
}

// NewSubgraphRegistry constructs an empty SubgraphRegistry.
func NewSubgraphRegistry() *SubgraphRegistry {
	return &SubgraphRegistry{}
}

// Register appends a subgraph descriptor. Order matters: Select returns
// the first match in registration order.
func (s *SubgraphRegistry) Register(d SubgraphDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors = append(s.descriptors, d)
}

// Select returns the first registered descriptor whose required
// capabilities are satisfied by caps, or ErrNoCompatibleSubgraph.
func (s *SubgraphRegistry) Select(caps models.Capabilities) (SubgraphDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.descriptors {
		if caps.IsSupersetOf(d.RequiredCapabilities) {
			return d, nil
		}
	}
	return SubgraphDescriptor{}, ErrNoCompatibleSubgraph
}
