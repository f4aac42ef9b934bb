package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitializeLoadsAndValidates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WAREHOUSE_DSN", "postgres://localhost/warehouse")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	writeConfigFile(t, dir, "nl2sql.yaml", `
datasources:
  warehouse:
    engine: postgres
    dsn_env: WAREHOUSE_DSN
    row_limit: 5000
policy:
  analyst:
    allowed_datasources: ["warehouse"]
    allowed_tables: ["warehouse.orders", "warehouse.customers"]
defaults:
  schema_version_mismatch_policy: fail
  row_limit_default: 500
`)
	writeConfigFile(t, dir, "llm-providers.yaml", `
llm_providers:
  openai-default:
    type: openai
    model: gpt-5
    api_key_env: OPENAI_API_KEY
    max_prompt_tokens: 100000
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.True(t, cfg.DatasourceRegistry.Has("warehouse"))
	ds, err := cfg.GetDatasource("warehouse")
	require.NoError(t, err)
	assert.Equal(t, 5000, ds.RowLimit)

	_, err = cfg.PolicyRegistry.Get("analyst")
	require.NoError(t, err)

	// admin role merged in from built-ins, not wiped out by user policy.
	_, err = cfg.PolicyRegistry.Get("admin")
	require.NoError(t, err)

	provider, err := cfg.GetLLMProvider("openai-default")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", provider.Model)

	assert.Equal(t, SchemaVersionMismatchFail, cfg.Defaults.SchemaVersionMismatchPolicy)
	assert.Equal(t, 500, cfg.Defaults.RowLimitDefault)
}

func TestInitializeFailsOnMissingConfigDir(t *testing.T) {
	_, err := Initialize(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestInitializeFailsValidationOnBadDatasourceEngine(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WAREHOUSE_DSN", "postgres://localhost/warehouse")

	writeConfigFile(t, dir, "nl2sql.yaml", `
datasources:
  warehouse:
    engine: oracle
    dsn_env: WAREHOUSE_DSN
`)
	writeConfigFile(t, dir, "llm-providers.yaml", `llm_providers: {}`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine")
}

func TestInitializeExpandsEnvVarsInDescription(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOST_OVERRIDE", "db.internal")

	writeConfigFile(t, dir, "nl2sql.yaml", `
datasources:
  warehouse:
    engine: postgres
    dsn_env: RESOLVED_DSN
    description: "host is {{.HOST_OVERRIDE}}"
`)
	writeConfigFile(t, dir, "llm-providers.yaml", `llm_providers: {}`)
	t.Setenv("RESOLVED_DSN", "postgres://db.internal/warehouse")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	ds, err := cfg.GetDatasource("warehouse")
	require.NoError(t, err)
	assert.Contains(t, ds.Description, "db.internal")
}
