package models

import "github.com/nl2sql-engine/core/pkg/ids"

// SubQuery is one semantic unit the decomposer splits the user's
// question into. Intent is natural language, never SQL: the decomposer
// rejects any intent containing SQL reserved tokens.
type SubQuery struct {
	ID             string            `json:"id"`
	DatasourceID   string            `json:"datasource_id"`
	Intent         string            `json:"intent"`
	ExpectedSchema []string          `json:"expected_schema,omitempty"`
	SchemaVersion  string            `json:"schema_version,omitempty"`
	Filters        map[string]any    `json:"filters,omitempty"`
	GroupBy        []string          `json:"group_by,omitempty"`
	Metrics        []string          `json:"metrics,omitempty"`
}

// subQueryIdentity is the content used to derive a subquery's stable ID.
// ID itself is excluded, and so is anything that would vary run to run.
type subQueryIdentity struct {
	DatasourceID   string         `json:"datasource_id"`
	Intent         string         `json:"intent"`
	ExpectedSchema []string       `json:"expected_schema,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
	GroupBy        []string       `json:"group_by,omitempty"`
	Metrics        []string       `json:"metrics,omitempty"`
}

// AssignID computes and sets ID from the subquery's content.
func (s *SubQuery) AssignID() error {
	id, err := ids.StableID(subQueryIdentity{
		DatasourceID:   s.DatasourceID,
		Intent:         s.Intent,
		ExpectedSchema: s.ExpectedSchema,
		Filters:        s.Filters,
		GroupBy:        s.GroupBy,
		Metrics:        s.Metrics,
	}, "sq")
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// CombineOp enumerates how a CombineGroup merges its inputs.
type CombineOp string

const (
	CombineOpUnion   CombineOp = "union"
	CombineOpJoin    CombineOp = "join"
	CombineOpCompare CombineOp = "compare"
)

// JoinKeyPair is one equi-join column pair between two combine inputs.
type JoinKeyPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// CombineGroup merges two or more subquery results. Join and compare
// require a role assignment per input and at least one join-key pair.
type CombineGroup struct {
	ID        string            `json:"id"`
	Op        CombineOp         `json:"op"`
	Inputs    []string          `json:"inputs"`
	Roles     map[string]string `json:"roles,omitempty"`
	JoinKeys  []JoinKeyPair     `json:"join_keys,omitempty"`
}

type combineGroupIdentity struct {
	Op       CombineOp         `json:"op"`
	Inputs   []string          `json:"inputs"`
	Roles    map[string]string `json:"roles,omitempty"`
	JoinKeys []JoinKeyPair     `json:"join_keys,omitempty"`
}

// AssignID computes and sets ID from the group's content.
func (g *CombineGroup) AssignID() error {
	id, err := ids.StableID(combineGroupIdentity{
		Op:       g.Op,
		Inputs:   g.Inputs,
		Roles:    g.Roles,
		JoinKeys: g.JoinKeys,
	}, "cg")
	if err != nil {
		return err
	}
	g.ID = id
	return nil
}

// Validate enforces the join/compare role+join-key invariant.
func (g CombineGroup) Validate() error {
	if g.Op == CombineOpJoin || g.Op == CombineOpCompare {
		if len(g.Roles) != len(g.Inputs) {
			return errCombineGroupMissingRoles
		}
		if len(g.JoinKeys) == 0 {
			return errCombineGroupMissingJoinKeys
		}
	}
	return nil
}

// PostOp enumerates the single-input transform operators applied after
// a combine group.
type PostOp string

const (
	PostOpFilter    PostOp = "filter"
	PostOpAggregate PostOp = "aggregate"
	PostOpProject   PostOp = "project"
	PostOpSort      PostOp = "sort"
	PostOpLimit     PostOp = "limit"
)

// PostCombineOp is a single-input transform targeting a combine group's
// output.
type PostCombineOp struct {
	ID     string         `json:"id"`
	Op     PostOp         `json:"op"`
	Target string         `json:"target"`
	Params map[string]any `json:"params,omitempty"`
}

type postCombineOpIdentity struct {
	Op     PostOp         `json:"op"`
	Target string         `json:"target"`
	Params map[string]any `json:"params,omitempty"`
}

// AssignID computes and sets ID from the op's content.
func (p *PostCombineOp) AssignID() error {
	id, err := ids.StableID(postCombineOpIdentity{
		Op:     p.Op,
		Target: p.Target,
		Params: p.Params,
	}, "pop")
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// DecomposerResponse is the decomposer's full output: the subqueries,
// the groups that combine them, the post-combine operators, and any
// subqueries that could not be mapped to an allowed, registered
// datasource.
type DecomposerResponse struct {
	SubQueries         []SubQuery      `json:"sub_queries"`
	CombineGroups      []CombineGroup  `json:"combine_groups"`
	PostCombineOps     []PostCombineOp `json:"post_combine_ops"`
	UnmappedSubqueries []SubQuery      `json:"unmapped_subqueries"`
}
