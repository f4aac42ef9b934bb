// Package policy implements the strict datasource.table RBAC namespacing
// engine: role-keyed allow-lists, fail-closed evaluation, no implicit
// grants. Every validator plan check and every retrieval pre-filter goes
// through this package.
package policy

import (
	"fmt"
	"strings"

	"github.com/nl2sql-engine/core/pkg/models"
)

// Role is one entry in the policy map: the datasources and tables a role
// grants access to. AllowedTables entries must be "ds_id.table", "ds_id.*",
// or "*" — the loader rejects any other shape.
type Role struct {
	AllowedDatasources []string `json:"allowed_datasources" yaml:"allowed_datasources"`
	AllowedTables      []string `json:"allowed_tables" yaml:"allowed_tables"`
}

// Engine evaluates RBAC policy for a role-keyed map. It is safe for
// concurrent reads; policy is loaded once at startup and is immutable for
// the engine's lifetime (reload constructs a new Engine).
type Engine struct {
	roles map[string]Role
}

// Load validates and constructs an Engine from a role-keyed policy map.
// Load rejects any AllowedTables entry that is not "ds_id.table",
// "ds_id.*", or "*" — the strict namespacing invariant spec.md §4.5
// requires.
func Load(roles map[string]Role) (*Engine, error) {
	for roleID, r := range roles {
		for _, entry := range r.AllowedTables {
			if !isValidTableEntry(entry) {
				return nil, fmt.Errorf("policy: role %q: invalid allowed_tables entry %q: must be ds_id.table, ds_id.*, or *", roleID, entry)
			}
		}
	}
	return &Engine{roles: roles}, nil
}

func isValidTableEntry(entry string) bool {
	if entry == "*" {
		return true
	}
	parts := strings.SplitN(entry, ".", 2)
	if len(parts) != 2 {
		return false
	}
	dsID, table := parts[0], parts[1]
	if dsID == "" || table == "" {
		return false
	}
	// Reject any further dots: namespacing is exactly one level.
	if strings.Contains(table, ".") {
		return false
	}
	return true
}

// AllowedDatasources returns the union of allowed datasource IDs across
// every role the user holds.
func (e *Engine) AllowedDatasources(user models.UserContext) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, roleID := range user.Roles {
		role, ok := e.roles[roleID]
		if !ok {
			continue
		}
		for _, ds := range role.AllowedDatasources {
			if _, dup := seen[ds]; dup {
				continue
			}
			seen[ds] = struct{}{}
			out = append(out, ds)
		}
	}
	return out
}

// AllowedTable reports whether any role held by user grants access to
// table on datasource dsID. Fail-closed: an empty dsID is always denied
// regardless of role content.
func (e *Engine) AllowedTable(user models.UserContext, dsID, table string) bool {
	if dsID == "" {
		return false
	}
	for _, roleID := range user.Roles {
		role, ok := e.roles[roleID]
		if !ok {
			continue
		}
		if !containsString(role.AllowedDatasources, dsID) {
			continue
		}
		for _, entry := range role.AllowedTables {
			if entryMatches(entry, dsID, table) {
				return true
			}
		}
	}
	return false
}

// entryMatches reports whether a validated allowed_tables entry grants
// access to dsID.table.
func entryMatches(entry, dsID, table string) bool {
	if entry == "*" {
		return true
	}
	parts := strings.SplitN(entry, ".", 2)
	if len(parts) != 2 {
		return false
	}
	if parts[0] != dsID {
		return false
	}
	return parts[1] == "*" || parts[1] == table
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// TableRef identifies one ds_id.table pair a plan references, used by the
// LogicalValidator's policy check.
type TableRef struct {
	DatasourceID string
	Table        string
}

// CheckAll evaluates every ref in refs against user's policy, fail-closed.
// It returns the set of refs that are denied (empty means every reference
// is permitted).
func (e *Engine) CheckAll(user models.UserContext, refs []TableRef) []TableRef {
	var denied []TableRef
	for _, ref := range refs {
		if !e.AllowedTable(user, ref.DatasourceID, ref.Table) {
			denied = append(denied, ref)
		}
	}
	return denied
}
