package models

import (
	"time"

	"github.com/nl2sql-engine/core/pkg/ids"
)

// ResultFrame is the standard tabular response contract every adapter
// returns.
type ResultFrame struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows,omitempty"`
	RowDicts []map[string]any `json:"row_dicts,omitempty"`
	RowCount int      `json:"row_count"`
	Error    string   `json:"error,omitempty"`
}

// ArtifactRef references a persisted tabular frame.
type ArtifactRef struct {
	URI           string    `json:"uri"`
	Backend       string    `json:"backend"`
	Format        string    `json:"format"`
	ContentHash   string    `json:"content_hash"`
	TenantID      string    `json:"tenant_id"`
	RequestID     string    `json:"request_id"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type artifactContentIdentity struct {
	Columns  []string `json:"columns"`
	RowCount int      `json:"row_count"`
	Path     string   `json:"path"`
}

// ArtifactContentHash computes the SHA-256 content hash of
// {columns, row_count, path}, the artifact's stable identity.
func ArtifactContentHash(columns []string, rowCount int, path string) (string, error) {
	return ids.StableID(artifactContentIdentity{Columns: columns, RowCount: rowCount, Path: path}, "")
}

// DefaultArtifactFormat is the tabular format artifacts are persisted
// in absent an explicit override.
const DefaultArtifactFormat = "parquet"
