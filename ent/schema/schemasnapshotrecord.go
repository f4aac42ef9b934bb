package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SchemaSnapshotRecord is the persistent-KV backend's row shape for one
// fingerprinted schema snapshot. The canonical contract JSON is stored
// verbatim; fingerprint and version are derived once at register time and
// never recomputed from the stored JSON (re-deriving on every read would
// make Get a hashing hot path for no benefit, since content is immutable
// once registered).
type SchemaSnapshotRecord struct {
	ent.Schema
}

// Fields of the SchemaSnapshotRecord.
func (SchemaSnapshotRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("datasource_id + ':' + version"),
		field.String("datasource_id").
			Immutable(),
		field.String("version").
			Immutable(),
		field.String("fingerprint").
			Immutable(),
		field.JSON("contract", map[string]interface{}{}).
			Immutable(),
		field.JSON("metadata", map[string]interface{}{}).
			Optional(),
		field.Time("registered_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the SchemaSnapshotRecord.
func (SchemaSnapshotRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("datasource_id", "fingerprint").
			Unique(),
		index.Fields("datasource_id", "version"),
	}
}
