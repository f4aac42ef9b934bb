// Package datasource defines the Adapter contract consumed by the core
// and the capability-based registry used to select adapters and
// compatible subgraphs. Concrete drivers (Postgres, MySQL, MSSQL,
// SQLite) live outside this module; this package only defines the seam.
package datasource

import (
	"context"

	"github.com/nl2sql-engine/core/pkg/models"
)

// Limits bounds one adapter execution request.
type Limits struct {
	RowLimit  int
	ByteLimit int64
	TimeoutMS int64
}

// Request is the payload the Executor hands to an Adapter.
type Request struct {
	PlanType string
	Payload  string
	Limits   Limits
	TraceID  string
	TenantID string
}

// Adapter is the seam every concrete datasource driver implements. The
// core never imports a concrete driver; it consumes this interface only.
type Adapter interface {
	DatasourceID() string
	EngineType() string
	Dialect() string
	RowLimit() int
	MaxBytes() int64
	Capabilities() models.Capabilities

	FetchSchemaSnapshot(ctx context.Context) (models.SchemaSnapshot, error)
	Execute(ctx context.Context, req Request) (models.ResultFrame, error)
}

// DryRunner is an optional capability: adapters advertising
// SupportsDryRun should also implement this.
type DryRunner interface {
	DryRun(ctx context.Context, sql string) error
}

// CostEstimator is an optional capability: adapters advertising
// SupportsCostEstimate should also implement this.
type CostEstimator interface {
	CostEstimate(ctx context.Context, sql string) (float64, error)
}

// Explainer is an optional capability surfaced for diagnostics; not
// required by any spec.md invariant.
type Explainer interface {
	Explain(ctx context.Context, sql string) (string, error)
}
