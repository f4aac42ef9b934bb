package config

// Config is the umbrella configuration object that encapsulates all
// registries, defaults, and configuration state. This is the primary
// object returned by Initialize() and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// System-wide defaults
	Defaults *Defaults
	Retry    *RetryConfig
	Breakers *BreakerConfig
	Schema   *SchemaStoreConfig
	Artifact *ArtifactConfig
	Queue    *QueueConfig

	// Component registries
	DatasourceRegistry  *DatasourceRegistry
	PolicyRegistry      *PolicyRegistry
	LLMProviderRegistry *LLMProviderRegistry
}

// Initialize is defined in loader.go

// ConfigStats contains statistics about loaded configuration
type ConfigStats struct {
	Datasources  int
	PolicyRoles  int
	LLMProviders int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		Datasources:  c.DatasourceRegistry.Len(),
		PolicyRoles:  c.PolicyRegistry.Len(),
		LLMProviders: len(c.LLMProviderRegistry.GetAll()),
	}
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetDatasource retrieves a datasource configuration by ID.
// This is a convenience method that wraps DatasourceRegistry.Get().
func (c *Config) GetDatasource(id string) (*DatasourceConfig, error) {
	return c.DatasourceRegistry.Get(id)
}

// GetLLMProvider retrieves an LLM provider configuration by name.
// This is a convenience method that wraps LLMProviderRegistry.Get().
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}
