package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuiltinConfigIsSingleton(t *testing.T) {
	first := GetBuiltinConfig()
	second := GetBuiltinConfig()
	assert.Same(t, first, second)
}

func TestBuiltinPolicyRolesSeedsAdmin(t *testing.T) {
	builtin := GetBuiltinConfig()
	admin, ok := builtin.PolicyRoles["admin"]
	if assert.True(t, ok, "admin role should be seeded") {
		assert.Contains(t, admin.AllowedDatasources, "*")
		assert.Contains(t, admin.AllowedTables, "*")
	}
}

func TestBuiltinLLMProvidersAreValid(t *testing.T) {
	builtin := GetBuiltinConfig()
	assert.NotEmpty(t, builtin.LLMProviders)
	for name, provider := range builtin.LLMProviders {
		assert.True(t, provider.Type.IsValid(), "provider %s has invalid type", name)
		assert.NotEmpty(t, provider.Model, "provider %s missing model", name)
		assert.GreaterOrEqual(t, provider.MaxPromptTokens, 1000, "provider %s token budget too low", name)
	}
}

func TestBuiltinDatasourcesEmpty(t *testing.T) {
	builtin := GetBuiltinConfig()
	assert.Empty(t, builtin.Datasources, "no datasource can be assumed built-in")
}
