// Package models defines the data contracts shared across every stage of
// the pipeline: user context, datasource registration, schema contracts,
// retrieval chunks, the plan AST, the execution DAG, and the root state
// objects the orchestrator and subgraphs pass between stages.
package models

// UserContext is carried through the whole pipeline and consulted by the
// policy engine and the retrieval layer's RBAC pre-filter.
type UserContext struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}
