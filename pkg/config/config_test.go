package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nl2sql-engine/core/pkg/policy"
)

func TestConfigStats(t *testing.T) {
	cfg := &Config{
		DatasourceRegistry: NewDatasourceRegistry(map[string]DatasourceConfig{
			"warehouse": {Engine: EngineTypePostgres, DSNEnv: "WAREHOUSE_DSN"},
		}),
		PolicyRegistry: NewPolicyRegistry(map[string]policy.Role{
			"analyst": {AllowedDatasources: []string{"warehouse"}},
		}),
		LLMProviderRegistry: NewLLMProviderRegistry(map[string]*LLMProviderConfig{
			"openai-default": {Type: LLMProviderTypeOpenAI, Model: "gpt-5"},
		}),
	}

	stats := cfg.Stats()
	assert.Equal(t, 1, stats.Datasources)
	assert.Equal(t, 1, stats.PolicyRoles)
	assert.Equal(t, 1, stats.LLMProviders)
}

func TestConfigGetDatasource(t *testing.T) {
	cfg := &Config{
		DatasourceRegistry: NewDatasourceRegistry(map[string]DatasourceConfig{
			"warehouse": {Engine: EngineTypePostgres, DSNEnv: "WAREHOUSE_DSN"},
		}),
	}

	ds, err := cfg.GetDatasource("warehouse")
	require.NoError(t, err)
	assert.Equal(t, EngineTypePostgres, ds.Engine)

	_, err = cfg.GetDatasource("ghost")
	assert.ErrorIs(t, err, ErrDatasourceNotFound)
}

func TestConfigGetLLMProvider(t *testing.T) {
	cfg := &Config{
		LLMProviderRegistry: NewLLMProviderRegistry(map[string]*LLMProviderConfig{
			"openai-default": {Type: LLMProviderTypeOpenAI, Model: "gpt-5"},
		}),
	}

	provider, err := cfg.GetLLMProvider("openai-default")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", provider.Model)

	_, err = cfg.GetLLMProvider("ghost")
	assert.ErrorIs(t, err, ErrLLMProviderNotFound)
}

func TestConfigDir(t *testing.T) {
	cfg := &Config{configDir: "/etc/nl2sql"}
	assert.Equal(t, "/etc/nl2sql", cfg.ConfigDir())
}
