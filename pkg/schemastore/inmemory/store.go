// Package inmemory is the in-memory SchemaStore backend: a map keyed by
// datasource ID, holding a version-sorted slice of snapshots with bounded
// retention. Safe for concurrent use.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/schemastore"
)

// Store is the in-memory schemastore.Store implementation.
type Store struct {
	mu          sync.RWMutex
	byDS        map[string]map[string]models.SchemaSnapshot // ds_id -> version -> snapshot
	fingerprint map[string]map[string]string                 // ds_id -> fingerprint -> version
	maxVersions int
	now         func() time.Time
}

// New constructs an empty Store with the given per-datasource version
// retention bound. maxVersions <= 0 uses schemastore.MaxVersionsDefault.
func New(maxVersions int) *Store {
	if maxVersions <= 0 {
		maxVersions = schemastore.MaxVersionsDefault
	}
	return &Store{
		byDS:        make(map[string]map[string]models.SchemaSnapshot),
		fingerprint: make(map[string]map[string]string),
		maxVersions: maxVersions,
		now:         time.Now,
	}
}

// Register implements schemastore.Store.
func (s *Store) Register(_ context.Context, datasourceID string, contract models.SchemaContract, metadata models.SchemaMetadata) (string, error) {
	fp, err := contract.Fingerprint()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fpMap, ok := s.fingerprint[datasourceID]
	if ok {
		if existing, ok := fpMap[fp]; ok {
			return existing, nil
		}
	} else {
		fpMap = make(map[string]string)
		s.fingerprint[datasourceID] = fpMap
	}

	version := models.VersionFor(s.now(), fp)
	snapshot := models.SchemaSnapshot{
		DatasourceID: datasourceID,
		Version:      version,
		Contract:     contract,
		Metadata:     metadata,
		RegisteredAt: s.now(),
	}

	versions, ok := s.byDS[datasourceID]
	if !ok {
		versions = make(map[string]models.SchemaSnapshot)
		s.byDS[datasourceID] = versions
	}
	versions[version] = snapshot
	fpMap[fp] = version

	s.evictLocked(datasourceID)
	return version, nil
}

// Get implements schemastore.Store.
func (s *Store) Get(_ context.Context, datasourceID string, version string) (models.SchemaSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.byDS[datasourceID]
	if !ok || len(versions) == 0 {
		return models.SchemaSnapshot{}, schemastore.ErrNotFound
	}
	if version == "" {
		latest := latestVersionLocked(versions)
		return versions[latest], nil
	}
	snap, ok := versions[version]
	if !ok {
		return models.SchemaSnapshot{}, schemastore.ErrNotFound
	}
	return snap, nil
}

// LatestVersion implements schemastore.Store.
func (s *Store) LatestVersion(_ context.Context, datasourceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.byDS[datasourceID]
	if !ok || len(versions) == 0 {
		return "", schemastore.ErrNotFound
	}
	return latestVersionLocked(versions), nil
}

func latestVersionLocked(versions map[string]models.SchemaSnapshot) string {
	keys := make([]string, 0, len(versions))
	for k := range versions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[len(keys)-1]
}

// evictLocked keeps at most s.maxVersions snapshots for datasourceID,
// dropping the lexicographically oldest first. Caller holds s.mu.
func (s *Store) evictLocked(datasourceID string) {
	versions := s.byDS[datasourceID]
	if len(versions) <= s.maxVersions {
		return
	}
	keys := make([]string, 0, len(versions))
	for k := range versions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	toEvict := keys[:len(keys)-s.maxVersions]
	fpMap := s.fingerprint[datasourceID]
	for _, v := range toEvict {
		snap := versions[v]
		fp, err := snap.Contract.Fingerprint()
		if err == nil {
			delete(fpMap, fp)
		}
		delete(versions, v)
	}
}
