// Package entstore indexes artifact metadata into the
// ent.ArtifactRefRecord entity (see ent/schema/artifactrefrecord.go),
// wrapping an inner artifact.Store that owns the actual tabular payload
// (local filesystem, object store, ...). The index lets an operator
// list or look up artifacts by tenant/request without touching the
// payload backend, the same separation the teacher keeps between a
// session's row and its large timeline/interaction payloads.
package entstore

import (
	"context"
	"fmt"

	"github.com/nl2sql-engine/core/ent"
	"github.com/nl2sql-engine/core/ent/artifactrefrecord"
	"github.com/nl2sql-engine/core/pkg/artifact"
	"github.com/nl2sql-engine/core/pkg/models"
)

// Store is the ent-backed artifact metadata index. It satisfies
// artifact.Store by delegating Put/Load to inner and recording/looking
// up the resulting ArtifactRef's metadata in Postgres.
type Store struct {
	client *ent.Client
	inner  artifact.Store
}

// New constructs a Store that indexes inner's artifact refs.
func New(client *ent.Client, inner artifact.Store) *Store {
	return &Store{client: client, inner: inner}
}

// Put implements artifact.Store: persists the frame via inner, then
// records the resulting ref's metadata. A duplicate content hash (the
// same frame persisted twice) is not an error — the existing row wins.
func (s *Store) Put(ctx context.Context, tenantID, requestID, subgraphName, nodeID, schemaVersion string, frame models.ResultFrame) (models.ArtifactRef, error) {
	ref, err := s.inner.Put(ctx, tenantID, requestID, subgraphName, nodeID, schemaVersion, frame)
	if err != nil {
		return models.ArtifactRef{}, err
	}

	create := s.client.ArtifactRefRecord.Create().
		SetID(ref.ContentHash).
		SetURI(ref.URI).
		SetBackend(ref.Backend).
		SetFormat(ref.Format).
		SetTenantID(ref.TenantID).
		SetRequestID(ref.RequestID)
	if ref.SchemaVersion != "" {
		create = create.SetSchemaVersion(ref.SchemaVersion)
	}

	if _, err := create.Save(ctx); err != nil {
		if ent.IsConstraintError(err) {
			return ref, nil
		}
		return models.ArtifactRef{}, fmt.Errorf("entstore: record artifact ref: %w", err)
	}
	return ref, nil
}

// Load implements artifact.Store by delegating to inner; the metadata
// index is not consulted since ref already carries everything inner
// needs to locate the payload.
func (s *Store) Load(ctx context.Context, ref models.ArtifactRef) (models.ResultFrame, error) {
	return s.inner.Load(ctx, ref)
}

// ListByRequest returns the indexed artifact refs for one tenant/request
// pair, for admin/debugging endpoints that never need the payload.
func (s *Store) ListByRequest(ctx context.Context, tenantID, requestID string) ([]models.ArtifactRef, error) {
	recs, err := s.client.ArtifactRefRecord.Query().
		Where(
			artifactrefrecord.TenantID(tenantID),
			artifactrefrecord.RequestID(requestID),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("entstore: list artifact refs: %w", err)
	}

	refs := make([]models.ArtifactRef, 0, len(recs))
	for _, rec := range recs {
		var schemaVersion string
		if rec.SchemaVersion != nil {
			schemaVersion = *rec.SchemaVersion
		}
		refs = append(refs, models.ArtifactRef{
			URI:           rec.URI,
			Backend:       rec.Backend,
			Format:        rec.Format,
			ContentHash:   rec.ID,
			TenantID:      rec.TenantID,
			RequestID:     rec.RequestID,
			SchemaVersion: schemaVersion,
			CreatedAt:     rec.CreatedAt,
		})
	}
	return refs, nil
}
