// Package localfs is the local-filesystem ArtifactStore backend. It
// persists ResultFrame as JSON (a stand-in for a columnar format — the
// path template and content-hash identity are what spec.md actually
// pins down; the on-disk encoding is an implementation detail any
// backend may vary) under "<base>/<tenant_id>/<request_id>/<node_id>.<format>",
// the spec's shortened local-backend path with node_id appended so that
// multiple scan nodes within one request never collide on disk.
package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nl2sql-engine/core/pkg/models"
)

// Store is the local filesystem artifact.Store backend.
type Store struct {
	baseDir string
	now     func() time.Time
}

// New constructs a Store rooted at baseDir, creating it if absent.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: mkdir base dir: %w", err)
	}
	return &Store{baseDir: baseDir, now: time.Now}, nil
}

// Put implements artifact.Store.
func (s *Store) Put(_ context.Context, tenantID, requestID, subgraphName, nodeID, schemaVersion string, frame models.ResultFrame) (models.ArtifactRef, error) {
	dir := filepath.Join(s.baseDir, tenantID, requestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("localfs: mkdir request dir: %w", err)
	}

	path := filepath.Join(dir, nodeID+".json")
	raw, err := json.Marshal(frame)
	if err != nil {
		return models.ArtifactRef{}, fmt.Errorf("localfs: marshal frame: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("localfs: write file: %w", err)
	}

	contentHash, err := models.ArtifactContentHash(frame.Columns, frame.RowCount, path)
	if err != nil {
		return models.ArtifactRef{}, fmt.Errorf("localfs: content hash: %w", err)
	}

	return models.ArtifactRef{
		URI:           "file://" + path,
		Backend:       "local",
		Format:        "json",
		ContentHash:   contentHash,
		TenantID:      tenantID,
		RequestID:     requestID,
		SchemaVersion: schemaVersion,
		CreatedAt:     s.now(),
	}, nil
}

// Load implements artifact.Store.
func (s *Store) Load(_ context.Context, ref models.ArtifactRef) (models.ResultFrame, error) {
	path := ref.URI
	const filePrefix = "file://"
	if len(path) >= len(filePrefix) && path[:len(filePrefix)] == filePrefix {
		path = path[len(filePrefix):]
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.ResultFrame{}, fmt.Errorf("localfs: read file: %w", err)
	}
	var frame models.ResultFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return models.ResultFrame{}, fmt.Errorf("localfs: unmarshal frame: %w", err)
	}
	return frame, nil
}
