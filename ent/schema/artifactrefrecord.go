package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ArtifactRefRecord is the persisted metadata row for one artifact the
// aggregator later loads by reference. The tabular payload itself lives
// in the backend named by Backend (local FS / object store); this row
// only carries the pointer and its content hash.
type ArtifactRefRecord struct {
	ent.Schema
}

// Fields of the ArtifactRefRecord.
func (ArtifactRefRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("content_hash").
			Unique().
			Immutable(),
		field.String("uri").
			Immutable(),
		field.String("backend").
			Immutable(),
		field.String("format").
			Default("parquet").
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("request_id").
			Immutable(),
		field.String("schema_version").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the ArtifactRefRecord.
func (ArtifactRefRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "request_id"),
	}
}
