// Package schemastore registers and retrieves fingerprinted, versioned
// schema snapshots. Both backends (InMemory, ent-backed persistent KV)
// satisfy the same Store contract so the rest of the engine never
// branches on backend.
package schemastore

import (
	"context"
	"errors"

	"github.com/nl2sql-engine/core/pkg/models"
)

// ErrNotFound is returned when a datasource or version has no snapshot.
var ErrNotFound = errors.New("schemastore: snapshot not found")

// Store registers and retrieves schema snapshots for a datasource.
// Implementations must be safe for concurrent reads; Register calls for
// a given datasource are serialized by the implementation.
type Store interface {
	// Register computes the contract's fingerprint and returns the
	// existing version if one already carries that fingerprint,
	// otherwise allocates and stores a new version.
	Register(ctx context.Context, datasourceID string, contract models.SchemaContract, metadata models.SchemaMetadata) (string, error)

	// Get returns the snapshot at version, or the latest snapshot if
	// version is empty.
	Get(ctx context.Context, datasourceID string, version string) (models.SchemaSnapshot, error)

	// LatestVersion returns the lexicographically greatest version
	// registered for datasourceID.
	LatestVersion(ctx context.Context, datasourceID string) (string, error)
}

// MaxVersionsDefault is the default eviction bound when a backend is
// constructed without an explicit override.
const MaxVersionsDefault = 20
