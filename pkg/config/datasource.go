package config

import (
	"fmt"
	"sync"
)

// DatasourceConfig declares one datasource the engine may resolve and
// query. It is the YAML-level shape; pkg/datasource.Registry holds the
// runtime Adapter built from it (connection pooling, dialect, the
// capability set actually negotiated with the backend).
type DatasourceConfig struct {
	// Engine selects the driver family the adapter speaks.
	Engine EngineType `yaml:"engine" validate:"required"`

	// Description is surfaced to the decomposer's vector retrieval as
	// a Datasource chunk (spec.md §3).
	Description string `yaml:"description,omitempty"`

	// SampleQuestions seed the Datasource chunk's sample_questions.
	SampleQuestions []string `yaml:"sample_questions,omitempty"`

	// DSNEnv names the environment variable holding the connection
	// string. Never stored in YAML directly.
	DSNEnv string `yaml:"dsn_env" validate:"required"`

	// RowLimit and MaxBytes bound every query issued against this
	// datasource; the Generator clamps plan.limit to RowLimit (spec.md
	// §4.8.4) regardless of what the plan requests.
	RowLimit int   `yaml:"row_limit,omitempty"`
	MaxBytes int64 `yaml:"max_bytes,omitempty"`

	// TimeoutMS bounds a single AdapterRequest's execution time.
	TimeoutMS int `yaml:"timeout_ms,omitempty"`

	// Capabilities this datasource's adapter advertises. Mirrors
	// models.Capabilities field names.
	Capabilities DatasourceCapabilitiesConfig `yaml:"capabilities,omitempty"`
}

// DatasourceCapabilitiesConfig is the YAML shape of models.Capabilities.
type DatasourceCapabilitiesConfig struct {
	SupportsSQL                 bool `yaml:"supports_sql"`
	SupportsSchemaIntrospection bool `yaml:"supports_schema_introspection"`
	SupportsDryRun              bool `yaml:"supports_dry_run"`
	SupportsCostEstimate        bool `yaml:"supports_cost_estimate"`
}

// DatasourceRegistry stores datasource configurations in memory with
// thread-safe access. Distinct from pkg/datasource.Registry, which holds
// live Adapter instances built from these entries.
type DatasourceRegistry struct {
	datasources map[string]*DatasourceConfig
	mu          sync.RWMutex
}

// NewDatasourceRegistry creates a new datasource registry.
func NewDatasourceRegistry(datasources map[string]DatasourceConfig) *DatasourceRegistry {
	copied := make(map[string]*DatasourceConfig, len(datasources))
	for k, v := range datasources {
		vCopy := v
		copied[k] = &vCopy
	}
	return &DatasourceRegistry{datasources: copied}
}

// Get retrieves a datasource configuration by ID (thread-safe).
func (r *DatasourceRegistry) Get(id string) (*DatasourceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, exists := r.datasources[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDatasourceNotFound, id)
	}
	return ds, nil
}

// GetAll returns all datasource configurations (thread-safe, returns copy).
func (r *DatasourceRegistry) GetAll() map[string]*DatasourceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*DatasourceConfig, len(r.datasources))
	for k, v := range r.datasources {
		result[k] = v
	}
	return result
}

// Has checks if a datasource exists in the registry (thread-safe).
func (r *DatasourceRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.datasources[id]
	return exists
}

// Len returns the number of datasources in the registry (thread-safe).
func (r *DatasourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.datasources)
}
