package config

import "github.com/nl2sql-engine/core/pkg/policy"

// mergeDatasources merges built-in and user-defined datasource
// configurations. User-defined datasources override built-ins with the
// same ID.
func mergeDatasources(builtinDatasources map[string]DatasourceConfig, userDatasources map[string]DatasourceConfig) map[string]DatasourceConfig {
	result := make(map[string]DatasourceConfig, len(builtinDatasources)+len(userDatasources))

	for id, ds := range builtinDatasources {
		result[id] = ds
	}
	for id, ds := range userDatasources {
		result[id] = ds
	}

	return result
}

// mergePolicyRoles merges built-in and user-defined policy roles.
// User-defined roles override built-ins with the same ID.
func mergePolicyRoles(builtinRoles map[string]policy.Role, userRoles map[string]policy.Role) map[string]policy.Role {
	result := make(map[string]policy.Role, len(builtinRoles)+len(userRoles))

	for id, role := range builtinRoles {
		result[id] = role
	}
	for id, role := range userRoles {
		result[id] = role
	}

	return result
}

// mergeLLMProviders merges built-in and user-defined LLM provider configurations.
// User-defined providers override built-in providers with the same name.
func mergeLLMProviders(builtinProviders map[string]LLMProviderConfig, userProviders map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	result := make(map[string]*LLMProviderConfig)

	// First, add built-in providers
	for name, provider := range builtinProviders {
		providerCopy := provider
		result[name] = &providerCopy
	}

	// Then, override with user-defined providers (or add new ones)
	for name, userProvider := range userProviders {
		providerCopy := userProvider
		result[name] = &providerCopy
	}

	return result
}
