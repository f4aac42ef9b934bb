package models

import "github.com/nl2sql-engine/core/pkg/ids"

// ChunkKind discriminates the typed chunk union embedded into the
// vector index.
type ChunkKind string

const (
	ChunkKindDatasource   ChunkKind = "datasource"
	ChunkKindTable        ChunkKind = "table"
	ChunkKindColumn       ChunkKind = "column"
	ChunkKindRelationship ChunkKind = "relationship"
)

// Chunk is the typed union of retrievable units built from a schema
// snapshot. Only the fields relevant to Kind are populated; the rest are
// left zero. Every chunk carries ds_id and schema_version in its
// identity payload so that chunk IDs are deterministic including the
// schema version they were built from.
type Chunk struct {
	ID           string    `json:"id"`
	Kind         ChunkKind `json:"kind"`
	DatasourceID string    `json:"ds_id"`
	SchemaVersion string   `json:"schema_version"`
	Text         string    `json:"text"`

	// Datasource chunk fields.
	Description     string   `json:"description,omitempty"`
	SampleQuestions []string `json:"sample_questions,omitempty"`

	// Table chunk fields.
	Table          string   `json:"table,omitempty"`
	PrimaryKey     []string `json:"pk,omitempty"`
	Columns        []string `json:"columns,omitempty"`
	FKSummaries    []string `json:"fk_summaries,omitempty"`
	RowCount       *int64   `json:"row_count,omitempty"`

	// Column chunk fields (Table/Column reused above for table name).
	Column    string   `json:"column,omitempty"`
	ColType   string   `json:"type,omitempty"`
	Synonyms  []string `json:"synonyms,omitempty"`
	PII       bool     `json:"pii,omitempty"`

	// Relationship chunk fields.
	FromTable   string   `json:"from_table,omitempty"`
	ToTable     string   `json:"to_table,omitempty"`
	JoinColumns []string `json:"join_cols,omitempty"`
	Cardinality string   `json:"cardinality,omitempty"`
}

// chunkIdentity is the subset of fields that define a chunk's
// identity: everything that would change the meaning of the chunk, and
// nothing volatile.
type chunkIdentity struct {
	Kind          ChunkKind `json:"kind"`
	DatasourceID  string    `json:"ds_id"`
	SchemaVersion string    `json:"schema_version"`
	Table         string    `json:"table,omitempty"`
	Column        string    `json:"column,omitempty"`
	FromTable     string    `json:"from_table,omitempty"`
	ToTable       string    `json:"to_table,omitempty"`
}

// AssignID computes and sets the chunk's deterministic ID from its
// identity fields, embedding schema_version so that re-snapshotting a
// datasource under a new schema version produces fresh chunk IDs.
func (c *Chunk) AssignID() error {
	id, err := ids.StableID(chunkIdentity{
		Kind:          c.Kind,
		DatasourceID:  c.DatasourceID,
		SchemaVersion: c.SchemaVersion,
		Table:         c.Table,
		Column:        c.Column,
		FromTable:     c.FromTable,
		ToTable:       c.ToTable,
	}, "chunk")
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}
