package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PipelineRun holds the schema definition for one queued, end-to-end
// NL2SQL request.
type PipelineRun struct {
	ent.Schema
}

// Fields of the PipelineRun.
func (PipelineRun) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("trace_id").
			Unique().
			Immutable(),
		field.String("tenant_id"),
		field.String("user_id"),
		field.Text("user_query"),
		field.Enum("status").
			Values("queued", "running", "completed", "failed", "cancelled", "timed_out").
			Default("queued"),
		field.Time("created_at").
			Default(time.Now),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.String("error_message").
			Optional().
			Nillable(),
		field.String("pod_id").
			Optional().
			Nillable().
			Comment("Worker that claimed the run, for orphan detection"),
		field.Time("last_heartbeat_at").
			Optional().
			Nillable(),
		field.JSON("result", map[string]interface{}{}).
			Optional().
			Comment("terminal GraphState, marshaled once the run reaches a terminal status"),
	}
}

// Edges of the PipelineRun.
func (PipelineRun) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("subquery_executions", SubqueryExecutionRecord.Type),
	}
}

// Indexes of the PipelineRun.
func (PipelineRun) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("status", "created_at"),
		index.Fields("status", "last_heartbeat_at"),
		index.Fields("tenant_id"),
	}
}
