// Package artifact defines the ArtifactStore seam used to persist
// per-subquery result frames and load them back for aggregation, plus a
// local filesystem backend. Concrete object-store backends (S3, ADLS)
// implement the same Store contract.
package artifact

import (
	"context"

	"github.com/nl2sql-engine/core/pkg/models"
)

// Store persists ResultFrame values keyed by tenant/request/node and
// loads them back as tabular frames. Implementations must be safe for
// concurrent use by multiple subgraphs writing distinct keys.
type Store interface {
	// Put persists frame at the path template spec.md §6 defines and
	// returns the resulting ArtifactRef.
	Put(ctx context.Context, tenantID, requestID, subgraphName, nodeID, schemaVersion string, frame models.ResultFrame) (models.ArtifactRef, error)

	// Load reads back the tabular frame a previous Put persisted.
	Load(ctx context.Context, ref models.ArtifactRef) (models.ResultFrame, error)
}
