package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/nl2sql-engine/core/pkg/policy"
)

// EngineYAMLConfig represents the complete nl2sql.yaml file structure.
type EngineYAMLConfig struct {
	Datasources map[string]DatasourceConfig `yaml:"datasources"`
	Policy      map[string]policy.Role      `yaml:"policy"`
	Defaults    *Defaults                   `yaml:"defaults"`
	Retry       *RetryConfig                `yaml:"retry"`
	Breakers    *BreakerConfig              `yaml:"breakers"`
	Schema      *SchemaStoreConfig          `yaml:"schema"`
	Artifact    *ArtifactConfig             `yaml:"artifact"`
	Queue       *QueueConfig                `yaml:"queue"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file structure
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configurations
//  5. Build in-memory registries
//  6. Apply default values
//  7. Validate all configuration
//  8. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"datasources", stats.Datasources,
		"policy_roles", stats.PolicyRoles,
		"llm_providers", stats.LLMProviders)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	engineConfig, err := loader.loadEngineYAML()
	if err != nil {
		return nil, NewLoadError("nl2sql.yaml", err)
	}

	llmProviders, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	builtin := GetBuiltinConfig()

	datasources := mergeDatasources(builtin.Datasources, engineConfig.Datasources)
	policyRoles := mergePolicyRoles(builtin.PolicyRoles, engineConfig.Policy)
	llmProvidersMerged := mergeLLMProviders(builtin.LLMProviders, llmProviders)

	datasourceRegistry := NewDatasourceRegistry(datasources)
	policyRegistry := NewPolicyRegistry(policyRoles)
	llmProviderRegistry := NewLLMProviderRegistry(llmProvidersMerged)

	defaults := engineConfig.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	if defaults.SchemaVersionMismatchPolicy == "" {
		defaults.SchemaVersionMismatchPolicy = SchemaVersionMismatchWarn
	}
	if defaults.GlobalTimeoutSeconds == 0 {
		defaults.GlobalTimeoutSeconds = 120
	}
	if defaults.RowLimitDefault == 0 {
		defaults.RowLimitDefault = 1000
	}
	if defaults.MaxBytesDefault == 0 {
		defaults.MaxBytesDefault = 10 * 1024 * 1024
	}

	retry := DefaultRetryConfig()
	if engineConfig.Retry != nil {
		if err := mergo.Merge(retry, engineConfig.Retry, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retry config: %w", err)
		}
	}

	breakers := DefaultBreakerConfig()
	if engineConfig.Breakers != nil {
		if err := mergo.Merge(breakers, engineConfig.Breakers, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge breaker config: %w", err)
		}
	}

	schemaStore := DefaultSchemaStoreConfig()
	if engineConfig.Schema != nil {
		if err := mergo.Merge(schemaStore, engineConfig.Schema, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge schema store config: %w", err)
		}
	}

	artifact := DefaultArtifactConfig()
	if engineConfig.Artifact != nil {
		if err := mergo.Merge(artifact, engineConfig.Artifact, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge artifact config: %w", err)
		}
	}

	queue := DefaultQueueConfig()
	if engineConfig.Queue != nil {
		if err := mergo.Merge(queue, engineConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	return &Config{
		configDir:           configDir,
		Defaults:            defaults,
		Retry:               retry,
		Breakers:            breakers,
		Schema:              schemaStore,
		Artifact:            artifact,
		Queue:               queue,
		DatasourceRegistry:  datasourceRegistry,
		PolicyRegistry:      policyRegistry,
		LLMProviderRegistry: llmProviderRegistry,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax. Note:
	// ExpandEnv passes through original data on parse/execution errors,
	// allowing the YAML parser to fail with a clearer message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadEngineYAML() (*EngineYAMLConfig, error) {
	var config EngineYAMLConfig
	config.Datasources = make(map[string]DatasourceConfig)
	config.Policy = make(map[string]policy.Role)

	if err := l.loadYAML("nl2sql.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]LLMProviderConfig, error) {
	var config LLMProvidersYAMLConfig
	config.LLMProviders = make(map[string]LLMProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &config); err != nil {
		return nil, err
	}

	return config.LLMProviders, nil
}
