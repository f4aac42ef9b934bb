package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SubqueryExecutionRecord tracks one per-subquery subgraph's progress,
// used by the dashboard and by orphan/timeout recovery.
type SubqueryExecutionRecord struct {
	ent.Schema
}

// Fields of the SubqueryExecutionRecord.
func (SubqueryExecutionRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("subgraph_id").
			Unique().
			Immutable(),
		field.String("trace_id"),
		field.String("subquery_id"),
		field.String("datasource_id"),
		field.Enum("state").
			Values("SCHEMA", "PLAN", "VALIDATE", "REFINE", "GENERATE", "EXECUTE", "END").
			Default("SCHEMA"),
		field.Int("retry_count").
			Default(0),
		field.Time("created_at").
			Default(time.Now),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Bool("succeeded").
			Default(false),
	}
}

// Edges of the SubqueryExecutionRecord.
func (SubqueryExecutionRecord) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("pipeline_run", PipelineRun.Type).
			Ref("subquery_executions").
			Unique(),
	}
}

// Indexes of the SubqueryExecutionRecord.
func (SubqueryExecutionRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("trace_id"),
		index.Fields("state"),
	}
}
