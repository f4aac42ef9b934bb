package config

import (
	"sync"

	"github.com/nl2sql-engine/core/pkg/policy"
)

// BuiltinConfig holds all built-in configuration data: sensible LLM
// provider defaults and a bootstrap policy role, merged with user YAML
// at load time.
type BuiltinConfig struct {
	Datasources  map[string]DatasourceConfig
	PolicyRoles  map[string]policy.Role
	LLMProviders map[string]LLMProviderConfig
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe, lazy-initialized)
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Datasources:  initBuiltinDatasources(),
		PolicyRoles:  initBuiltinPolicyRoles(),
		LLMProviders: initBuiltinLLMProviders(),
	}
}

// initBuiltinDatasources returns an empty set: every deployment declares
// its own datasources; there is no built-in datasource the core can
// sensibly assume exists.
func initBuiltinDatasources() map[string]DatasourceConfig {
	return map[string]DatasourceConfig{}
}

// initBuiltinPolicyRoles seeds an "admin" role with unrestricted access,
// so a fresh deployment with no policy.yaml still has one usable role to
// test against rather than a fail-closed dead end.
func initBuiltinPolicyRoles() map[string]policy.Role {
	return map[string]policy.Role{
		"admin": {
			AllowedDatasources: []string{"*"},
			AllowedTables:      []string{"*"},
		},
	}
}

func initBuiltinLLMProviders() map[string]LLMProviderConfig {
	return map[string]LLMProviderConfig{
		"openai-default": {
			Type:            LLMProviderTypeOpenAI,
			Model:           "gpt-5",
			APIKeyEnv:       "OPENAI_API_KEY",
			MaxPromptTokens: 250000, // Conservative for 272K context
		},
		"anthropic-default": {
			Type:            LLMProviderTypeAnthropic,
			Model:           "claude-sonnet-4-20250514",
			APIKeyEnv:       "ANTHROPIC_API_KEY",
			MaxPromptTokens: 150000, // Conservative for 200K context
		},
		"google-default": {
			Type:            LLMProviderTypeGoogle,
			Model:           "gemini-2.5-pro",
			APIKeyEnv:       "GOOGLE_API_KEY",
			MaxPromptTokens: 950000, // Conservative for 1M context
		},
		"vertexai-default": {
			Type:            LLMProviderTypeVertexAI,
			Model:           "claude-sonnet-4-5@20250929",
			ProjectEnv:      "GOOGLE_CLOUD_PROJECT",
			LocationEnv:     "GOOGLE_CLOUD_LOCATION",
			MaxPromptTokens: 150000,
		},
	}
}
