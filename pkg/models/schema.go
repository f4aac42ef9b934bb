package models

import (
	"sort"
	"strings"
	"time"

	"github.com/nl2sql-engine/core/pkg/ids"
)

// ColumnContract describes one column's type-level shape. Stats and PII
// flags are descriptive metadata, not part of the structural contract,
// but travel with the column for convenience at validation time.
type ColumnContract struct {
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Stats    *ColumnStats `json:"stats,omitempty"`
	PII      bool   `json:"pii,omitempty"`
}

// ColumnStats holds the descriptive extras from SchemaMetadata that are
// useful to attach directly to a column when materializing relevant
// tables for a subgraph.
type ColumnStats struct {
	RowCount    *int64   `json:"row_count,omitempty"`
	Min         string   `json:"min,omitempty"`
	Max         string   `json:"max,omitempty"`
	NullPercent *float64 `json:"null_percent,omitempty"`
	TopValues   []string `json:"top_values,omitempty"`
	Description string   `json:"description,omitempty"`
	Synonyms    []string `json:"synonyms,omitempty"`
}

// ForeignKey is a single FK relationship declared on a table.
type ForeignKey struct {
	Columns        []string `json:"columns"`
	RefTable       string   `json:"ref_table"`
	RefColumns     []string `json:"ref_columns"`
}

// TableContract is the canonical shape of one table: its columns keyed
// by name, its primary key, and its foreign keys.
type TableContract struct {
	Columns    map[string]ColumnContract `json:"columns"`
	PrimaryKey []string                  `json:"primary_key"`
	ForeignKeys []ForeignKey             `json:"foreign_keys"`
}

// SchemaContract is the canonical structure of a datasource's schema:
// an ordered-by-name map of table name to TableContract. Canonicalization
// sorts tables, columns, and FK lists by name before hashing or
// serializing for storage.
type SchemaContract struct {
	Tables map[string]TableContract `json:"tables"`
}

// SortedTableNames returns table names in canonical (sorted) order.
func (c SchemaContract) SortedTableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedColumnNames returns a table's column names in canonical order.
func (t TableContract) SortedColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fingerprint computes the SHA-256 content hash of the canonicalized
// contract. Identical contracts always yield identical fingerprints,
// regardless of map iteration order, because StableID canonicalizes
// object keys recursively before hashing.
func (c SchemaContract) Fingerprint() (string, error) {
	canon := SchemaContract{Tables: make(map[string]TableContract, len(c.Tables))}
	for name, t := range c.Tables {
		fks := append([]ForeignKey(nil), t.ForeignKeys...)
		fkKey := func(fk ForeignKey) string {
			return strings.Join(fk.Columns, ",") + ">" + fk.RefTable + "." + strings.Join(fk.RefColumns, ",")
		}
		sort.SliceStable(fks, func(i, j int) bool { return fkKey(fks[i]) < fkKey(fks[j]) })
		t.ForeignKeys = fks
		canon.Tables[name] = t
	}
	return ids.StableID(canon, "")
}

// SchemaMetadata carries descriptive, non-structural extras about a
// schema: row counts, value distributions, human descriptions.
type SchemaMetadata struct {
	TableDescriptions  map[string]string            `json:"table_descriptions,omitempty"`
	ColumnDescriptions map[string]map[string]string  `json:"column_descriptions,omitempty"`
	SampleQuestions    []string                      `json:"sample_questions,omitempty"`
}

// SchemaSnapshot is the authoritative (contract, metadata) pair for a
// datasource at a point in time.
type SchemaSnapshot struct {
	DatasourceID string         `json:"datasource_id"`
	Version      string         `json:"version"`
	Contract     SchemaContract `json:"contract"`
	Metadata     SchemaMetadata `json:"metadata"`
	RegisteredAt time.Time      `json:"registered_at"`
}

// VersionFor derives the store's version string for a fingerprint,
// using a store-issued timestamp: YYYYMMDDhhmmss_<fingerprint[:8]>.
func VersionFor(issuedAt time.Time, fingerprint string) string {
	fp8 := fingerprint
	if len(fp8) > 8 {
		fp8 = fp8[:8]
	}
	return issuedAt.UTC().Format("20060102150405") + "_" + fp8
}
