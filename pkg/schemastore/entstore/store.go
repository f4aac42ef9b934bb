// Package entstore is the persistent-KV SchemaStore backend, backed by
// the ent.SchemaSnapshotRecord entity (see ent/schema/schemasnapshotrecord.go).
// It satisfies the same schemastore.Store contract as pkg/schemastore/inmemory
// so the rest of the engine never branches on which backend is configured.
package entstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nl2sql-engine/core/ent"
	"github.com/nl2sql-engine/core/ent/schemasnapshotrecord"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/schemastore"
)

// Store is the ent-backed schemastore.Store implementation. Register
// calls for a given datasource are serialized by the database's unique
// index on (datasource_id, fingerprint); concurrent Gets are plain reads.
type Store struct {
	client      *ent.Client
	maxVersions int
}

// New constructs a Store over an existing ent client. maxVersions <= 0
// uses schemastore.MaxVersionsDefault.
func New(client *ent.Client, maxVersions int) *Store {
	if maxVersions <= 0 {
		maxVersions = schemastore.MaxVersionsDefault
	}
	return &Store{client: client, maxVersions: maxVersions}
}

// Register implements schemastore.Store.
func (s *Store) Register(ctx context.Context, datasourceID string, contract models.SchemaContract, metadata models.SchemaMetadata) (string, error) {
	fp, err := contract.Fingerprint()
	if err != nil {
		return "", fmt.Errorf("entstore: fingerprint contract: %w", err)
	}

	existing, err := s.client.SchemaSnapshotRecord.Query().
		Where(
			schemasnapshotrecord.DatasourceID(datasourceID),
			schemasnapshotrecord.Fingerprint(fp),
		).
		Only(ctx)
	if err == nil {
		return existing.Version, nil
	}
	if !ent.IsNotFound(err) {
		return "", fmt.Errorf("entstore: lookup existing fingerprint: %w", err)
	}

	contractMap, err := toMap(contract)
	if err != nil {
		return "", fmt.Errorf("entstore: marshal contract: %w", err)
	}
	metadataMap, err := toMap(metadata)
	if err != nil {
		return "", fmt.Errorf("entstore: marshal metadata: %w", err)
	}

	version := models.VersionFor(time.Now(), fp)
	id := datasourceID + ":" + version

	_, err = s.client.SchemaSnapshotRecord.Create().
		SetID(id).
		SetDatasourceID(datasourceID).
		SetVersion(version).
		SetFingerprint(fp).
		SetContract(contractMap).
		SetMetadata(metadataMap).
		Save(ctx)
	if err != nil {
		// A racing Register with the same fingerprint may have won the
		// unique-index race between our lookup and our insert; re-check
		// rather than surfacing a spurious duplicate-key error.
		if ent.IsConstraintError(err) {
			existing, lookupErr := s.client.SchemaSnapshotRecord.Query().
				Where(
					schemasnapshotrecord.DatasourceID(datasourceID),
					schemasnapshotrecord.Fingerprint(fp),
				).
				Only(ctx)
			if lookupErr == nil {
				return existing.Version, nil
			}
		}
		return "", fmt.Errorf("entstore: create snapshot record: %w", err)
	}

	s.evict(ctx, datasourceID)
	return version, nil
}

// Get implements schemastore.Store.
func (s *Store) Get(ctx context.Context, datasourceID string, version string) (models.SchemaSnapshot, error) {
	if version == "" {
		latest, err := s.LatestVersion(ctx, datasourceID)
		if err != nil {
			return models.SchemaSnapshot{}, err
		}
		version = latest
	}

	rec, err := s.client.SchemaSnapshotRecord.Query().
		Where(
			schemasnapshotrecord.DatasourceID(datasourceID),
			schemasnapshotrecord.Version(version),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return models.SchemaSnapshot{}, schemastore.ErrNotFound
		}
		return models.SchemaSnapshot{}, fmt.Errorf("entstore: get snapshot: %w", err)
	}
	return fromRecord(rec)
}

// LatestVersion implements schemastore.Store.
func (s *Store) LatestVersion(ctx context.Context, datasourceID string) (string, error) {
	recs, err := s.client.SchemaSnapshotRecord.Query().
		Where(schemasnapshotrecord.DatasourceID(datasourceID)).
		Select(schemasnapshotrecord.FieldVersion).
		All(ctx)
	if err != nil {
		return "", fmt.Errorf("entstore: list versions: %w", err)
	}
	if len(recs) == 0 {
		return "", schemastore.ErrNotFound
	}
	versions := make([]string, 0, len(recs))
	for _, r := range recs {
		versions = append(versions, r.Version)
	}
	sort.Strings(versions)
	return versions[len(versions)-1], nil
}

// evict keeps at most s.maxVersions rows for datasourceID, deleting the
// lexicographically oldest first. Best-effort: an eviction failure does
// not fail the Register call that triggered it.
func (s *Store) evict(ctx context.Context, datasourceID string) {
	recs, err := s.client.SchemaSnapshotRecord.Query().
		Where(schemasnapshotrecord.DatasourceID(datasourceID)).
		Select(schemasnapshotrecord.FieldVersion, schemasnapshotrecord.FieldID).
		All(ctx)
	if err != nil || len(recs) <= s.maxVersions {
		return
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Version < recs[j].Version })
	toEvict := recs[:len(recs)-s.maxVersions]
	ids := make([]string, 0, len(toEvict))
	for _, r := range toEvict {
		ids = append(ids, r.ID)
	}
	_, _ = s.client.SchemaSnapshotRecord.Delete().
		Where(schemasnapshotrecord.IDIn(ids...)).
		Exec(ctx)
}

func fromRecord(rec *ent.SchemaSnapshotRecord) (models.SchemaSnapshot, error) {
	var contract models.SchemaContract
	if err := fromMap(rec.Contract, &contract); err != nil {
		return models.SchemaSnapshot{}, fmt.Errorf("entstore: unmarshal contract: %w", err)
	}
	var metadata models.SchemaMetadata
	if err := fromMap(rec.Metadata, &metadata); err != nil {
		return models.SchemaSnapshot{}, fmt.Errorf("entstore: unmarshal metadata: %w", err)
	}
	return models.SchemaSnapshot{
		DatasourceID: rec.DatasourceID,
		Version:      rec.Version,
		Contract:     contract,
		Metadata:     metadata,
		RegisteredAt: rec.RegisteredAt,
	}, nil
}

// toMap round-trips v through JSON into the map shape ent's JSON field
// type expects, preserving field tags and omitempty semantics.
func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
