package config

import (
	"fmt"
	"sync"

	"github.com/nl2sql-engine/core/pkg/policy"
)

// PolicyRegistry stores role-keyed RBAC policy entries in memory with
// thread-safe access. Load converts it into a policy.Engine once at
// startup; the registry itself is only the YAML-level holding shape.
type PolicyRegistry struct {
	roles map[string]policy.Role
	mu    sync.RWMutex
}

// NewPolicyRegistry creates a new policy registry.
func NewPolicyRegistry(roles map[string]policy.Role) *PolicyRegistry {
	copied := make(map[string]policy.Role, len(roles))
	for k, v := range roles {
		copied[k] = v
	}
	return &PolicyRegistry{roles: copied}
}

// Get retrieves a role's policy entry by ID (thread-safe).
func (r *PolicyRegistry) Get(roleID string) (policy.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, exists := r.roles[roleID]
	if !exists {
		return policy.Role{}, fmt.Errorf("%w: %s", ErrPolicyRoleNotFound, roleID)
	}
	return role, nil
}

// GetAll returns all role policy entries (thread-safe, returns copy).
func (r *PolicyRegistry) GetAll() map[string]policy.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]policy.Role, len(r.roles))
	for k, v := range r.roles {
		result[k] = v
	}
	return result
}

// Len returns the number of roles in the registry (thread-safe).
func (r *PolicyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles)
}

// Engine builds the immutable policy.Engine this registry's roles
// describe. Called once at wiring time after validation.
func (r *PolicyRegistry) Engine() (*policy.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return policy.Load(r.roles)
}
