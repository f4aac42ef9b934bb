package config

import (
	"time"

	"github.com/nl2sql-engine/core/pkg/subgraph"
)

// Defaults contains system-wide default configurations applied when a
// request or datasource does not override them.
type Defaults struct {
	// GlobalTimeoutSeconds bounds one pipeline run end to end (spec.md §4.12).
	GlobalTimeoutSeconds int `yaml:"global_timeout_seconds,omitempty" validate:"omitempty,min=1"`

	// SchemaVersionMismatchPolicy controls whether a stale schema_version
	// on an incoming request is a warning or a hard failure (spec.md §9).
	SchemaVersionMismatchPolicy SchemaVersionMismatchPolicy `yaml:"schema_version_mismatch_policy,omitempty"`

	// LogicalValidatorStrictColumns, when true, rejects a plan that
	// references a column absent from the resolved schema snapshot
	// instead of merely warning.
	LogicalValidatorStrictColumns bool `yaml:"logical_validator_strict_columns,omitempty"`

	// RowLimitDefault and MaxBytesDefault are filled in by the loader
	// (1000 rows, 10 MiB) and validated, but no other package reads them:
	// a subquery's result frame is bounded by its adapter's RowLimit and
	// MaxBytes only.
	RowLimitDefault int   `yaml:"row_limit_default,omitempty" validate:"omitempty,min=1"`
	MaxBytesDefault int64 `yaml:"max_bytes_default,omitempty" validate:"omitempty,min=1"`

	// VectorL1Threshold and VectorL2Threshold are retrieval relevance
	// thresholds (spec.md §4.3); the validator rejects an L2 above L1. No
	// retrieval code reads them: InMemoryIndex ranks candidates by MMR
	// with no score cutoff.
	VectorL1Threshold float64 `yaml:"vector_l1_threshold,omitempty"`
	VectorL2Threshold float64 `yaml:"vector_l2_threshold,omitempty"`

	// TenantID is the configured default tenant namespace. No package
	// reads it; a request's tenant comes only from its UserContext.
	TenantID string `yaml:"tenant_id,omitempty"`
}

// RetryConfig configures the subgraph plan/validate/refine retry loop
// (spec.md §4.8.7). Seconds here so the YAML stays duration-unit free;
// ToRetryPolicy converts to subgraph.RetryPolicy's time.Duration fields.
type RetryConfig struct {
	MaxRetries       int     `yaml:"max_retries,omitempty" validate:"omitempty,min=0"`
	BaseDelaySeconds float64 `yaml:"retry_base_delay_sec,omitempty"`
	MaxDelaySeconds  float64 `yaml:"retry_max_delay_sec,omitempty"`
	JitterSeconds    float64 `yaml:"retry_jitter_sec,omitempty"`
}

// DefaultRetryConfig mirrors subgraph.DefaultRetryPolicy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:       subgraph.DefaultRetryPolicy.MaxRetries,
		BaseDelaySeconds: subgraph.DefaultRetryPolicy.BaseDelay.Seconds(),
		MaxDelaySeconds:  subgraph.DefaultRetryPolicy.MaxDelay.Seconds(),
		JitterSeconds:    subgraph.DefaultRetryPolicy.Jitter.Seconds(),
	}
}

// ToRetryPolicy converts the YAML-level seconds fields to a
// subgraph.RetryPolicy ready to hand to subgraph.Config.
func (r *RetryConfig) ToRetryPolicy() subgraph.RetryPolicy {
	return subgraph.RetryPolicy{
		MaxRetries: r.MaxRetries,
		BaseDelay:  secondsToDuration(r.BaseDelaySeconds),
		MaxDelay:   secondsToDuration(r.MaxDelaySeconds),
		Jitter:     secondsToDuration(r.JitterSeconds),
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// BreakerSettings configures one named circuit breaker (spec.md §4.12).
type BreakerSettings struct {
	FailureThreshold    int `yaml:"failure_threshold,omitempty" validate:"omitempty,min=1"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_sec,omitempty" validate:"omitempty,min=1"`
}

// ResetTimeout returns s.ResetTimeoutSeconds as a time.Duration.
func (s BreakerSettings) ResetTimeout() time.Duration {
	return time.Duration(s.ResetTimeoutSeconds) * time.Second
}

// BreakerConfig groups the engine's three named breakers: LLM_BREAKER,
// VECTOR_BREAKER, DB_BREAKER.
type BreakerConfig struct {
	LLM    BreakerSettings `yaml:"llm,omitempty"`
	Vector BreakerSettings `yaml:"vector,omitempty"`
	DB     BreakerSettings `yaml:"db,omitempty"`
}

// DefaultBreakerConfig returns conservative defaults for all three breakers.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		LLM:    BreakerSettings{FailureThreshold: 5, ResetTimeoutSeconds: 30},
		Vector: BreakerSettings{FailureThreshold: 5, ResetTimeoutSeconds: 15},
		DB:     BreakerSettings{FailureThreshold: 5, ResetTimeoutSeconds: 30},
	}
}

// SchemaStoreConfig selects and bounds the schemastore.Store backend
// (spec.md §4.2).
type SchemaStoreConfig struct {
	// Backend is "inmemory" or "persistent"; persistent uses entstore.
	Backend     string `yaml:"backend,omitempty"`
	MaxVersions int    `yaml:"max_versions,omitempty" validate:"omitempty,min=1"`
}

// DefaultSchemaStoreConfig returns the persistent backend with the
// package's default version-retention bound.
func DefaultSchemaStoreConfig() *SchemaStoreConfig {
	return &SchemaStoreConfig{Backend: "persistent", MaxVersions: 10}
}

// ArtifactConfig selects the artifact.Store backend result frames are
// persisted to (spec.md §6).
type ArtifactConfig struct {
	Backend  ArtifactBackendType `yaml:"backend,omitempty"`
	LocalDir string              `yaml:"local_dir,omitempty"`
}

// DefaultArtifactConfig returns the local filesystem backend rooted at
// a conventional data directory.
func DefaultArtifactConfig() *ArtifactConfig {
	return &ArtifactConfig{Backend: ArtifactBackendLocal, LocalDir: "./data/artifacts"}
}
