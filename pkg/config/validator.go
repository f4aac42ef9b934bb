package config

import (
	"fmt"
	"os"
	"strings"
)

// Validator validates configuration comprehensively with clear error messages
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *Validator) ValidateAll() error {
	// Validate in order: datasources → policy roles → LLM providers →
	// defaults → retry/breaker/schema-store settings. This ensures
	// dependencies are validated before dependents reference them.

	if err := v.validateDatasources(); err != nil {
		return fmt.Errorf("datasource validation failed: %w", err)
	}

	if err := v.validatePolicyRoles(); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}

	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}

	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}

	if err := v.validateRetry(); err != nil {
		return fmt.Errorf("retry validation failed: %w", err)
	}

	if err := v.validateBreakers(); err != nil {
		return fmt.Errorf("breaker validation failed: %w", err)
	}

	if err := v.validateSchemaStore(); err != nil {
		return fmt.Errorf("schema store validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	return nil
}

func (v *Validator) validateDatasources() error {
	for id, ds := range v.cfg.DatasourceRegistry.GetAll() {
		if !ds.Engine.IsValid() {
			return NewValidationError("datasource", id, "engine", fmt.Errorf("invalid engine: %s", ds.Engine))
		}
		if ds.DSNEnv == "" {
			return NewValidationError("datasource", id, "dsn_env", fmt.Errorf("required"))
		}
		if value := os.Getenv(ds.DSNEnv); value == "" {
			return NewValidationError("datasource", id, "dsn_env", fmt.Errorf("environment variable %s is not set", ds.DSNEnv))
		}
		if ds.RowLimit < 0 {
			return NewValidationError("datasource", id, "row_limit", fmt.Errorf("must be non-negative"))
		}
		if ds.MaxBytes < 0 {
			return NewValidationError("datasource", id, "max_bytes", fmt.Errorf("must be non-negative"))
		}
	}
	return nil
}

func (v *Validator) validatePolicyRoles() error {
	datasources := v.cfg.DatasourceRegistry.GetAll()

	for roleID, role := range v.cfg.PolicyRegistry.GetAll() {
		for _, dsID := range role.AllowedDatasources {
			if dsID == "*" {
				continue
			}
			if !v.cfg.DatasourceRegistry.Has(dsID) {
				return NewValidationError("policy_role", roleID, "allowed_datasources", fmt.Errorf("datasource '%s' not found", dsID))
			}
		}

		for _, entry := range role.AllowedTables {
			if entry == "*" {
				continue
			}
			parts := strings.SplitN(entry, ".", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return NewValidationError("policy_role", roleID, "allowed_tables", fmt.Errorf("entry '%s' must be ds_id.table, ds_id.*, or *", entry))
			}
			dsID := parts[0]
			if dsID == "*" {
				continue
			}
			if _, ok := datasources[dsID]; !ok {
				return NewValidationError("policy_role", roleID, "allowed_tables", fmt.Errorf("datasource '%s' not found", dsID))
			}
		}
	}

	// policy.Load re-checks the namespacing shape; surface its error with
	// the same validation wrapping if construction itself would fail.
	if _, err := v.cfg.PolicyRegistry.Engine(); err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

func (v *Validator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("invalid provider type: %s", provider.Type))
		}
		if provider.Model == "" {
			return NewValidationError("llm_provider", name, "model", fmt.Errorf("model required"))
		}
		if provider.MaxPromptTokens < 1000 {
			return NewValidationError("llm_provider", name, "max_prompt_tokens", fmt.Errorf("must be at least 1000"))
		}

		if provider.APIKeyEnv != "" {
			if value := os.Getenv(provider.APIKeyEnv); value == "" {
				return NewValidationError("llm_provider", name, "api_key_env", fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv))
			}
		}

		if provider.Type == LLMProviderTypeVertexAI {
			if provider.ProjectEnv != "" {
				if value := os.Getenv(provider.ProjectEnv); value == "" {
					return NewValidationError("llm_provider", name, "project_env", fmt.Errorf("environment variable %s is not set", provider.ProjectEnv))
				}
			}
			if provider.LocationEnv != "" {
				if value := os.Getenv(provider.LocationEnv); value == "" {
					return NewValidationError("llm_provider", name, "location_env", fmt.Errorf("environment variable %s is not set", provider.LocationEnv))
				}
			}
		}

		if provider.Type == LLMProviderTypeGRPC && provider.GRPCAddr == "" {
			return NewValidationError("llm_provider", name, "grpc_addr", fmt.Errorf("required for grpc provider type"))
		}
	}

	return nil
}

func (v *Validator) validateDefaults() error {
	defaults := v.cfg.Defaults
	if defaults == nil {
		return nil
	}

	if defaults.GlobalTimeoutSeconds < 0 {
		return NewValidationError("defaults", "", "global_timeout_seconds", fmt.Errorf("must be non-negative"))
	}
	if !defaults.SchemaVersionMismatchPolicy.IsValid() {
		return NewValidationError("defaults", "", "schema_version_mismatch_policy", fmt.Errorf("invalid policy: %s", defaults.SchemaVersionMismatchPolicy))
	}
	if defaults.RowLimitDefault < 0 {
		return NewValidationError("defaults", "", "row_limit_default", fmt.Errorf("must be non-negative"))
	}
	if defaults.MaxBytesDefault < 0 {
		return NewValidationError("defaults", "", "max_bytes_default", fmt.Errorf("must be non-negative"))
	}
	if defaults.VectorL2Threshold > defaults.VectorL1Threshold {
		return NewValidationError("defaults", "", "vector_l2_threshold", fmt.Errorf("must not exceed vector_l1_threshold"))
	}

	return nil
}

func (v *Validator) validateRetry() error {
	r := v.cfg.Retry
	if r == nil {
		return fmt.Errorf("retry configuration is nil")
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", r.MaxRetries)
	}
	if r.BaseDelaySeconds < 0 {
		return fmt.Errorf("retry_base_delay_sec must be non-negative, got %v", r.BaseDelaySeconds)
	}
	if r.MaxDelaySeconds < r.BaseDelaySeconds {
		return fmt.Errorf("retry_max_delay_sec must be at least retry_base_delay_sec, got max=%v base=%v", r.MaxDelaySeconds, r.BaseDelaySeconds)
	}
	if r.JitterSeconds < 0 {
		return fmt.Errorf("retry_jitter_sec must be non-negative, got %v", r.JitterSeconds)
	}
	return nil
}

func (v *Validator) validateBreakers() error {
	b := v.cfg.Breakers
	if b == nil {
		return fmt.Errorf("breaker configuration is nil")
	}
	for name, s := range map[string]BreakerSettings{"llm": b.LLM, "vector": b.Vector, "db": b.DB} {
		if s.FailureThreshold < 1 {
			return fmt.Errorf("breakers.%s.failure_threshold must be at least 1, got %d", name, s.FailureThreshold)
		}
		if s.ResetTimeoutSeconds < 1 {
			return fmt.Errorf("breakers.%s.reset_timeout_sec must be at least 1, got %d", name, s.ResetTimeoutSeconds)
		}
	}
	return nil
}

func (v *Validator) validateSchemaStore() error {
	s := v.cfg.Schema
	if s == nil {
		return fmt.Errorf("schema store configuration is nil")
	}
	if s.Backend != "inmemory" && s.Backend != "persistent" {
		return fmt.Errorf("schema.backend must be 'inmemory' or 'persistent', got %q", s.Backend)
	}
	if s.MaxVersions < 1 {
		return fmt.Errorf("schema.max_versions must be at least 1, got %d", s.MaxVersions)
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.WorkerCount < 1 {
		return fmt.Errorf("queue.worker_count must be at least 1, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentRuns < 1 {
		return fmt.Errorf("queue.max_concurrent_runs must be at least 1, got %d", q.MaxConcurrentRuns)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive, got %v", q.PollInterval)
	}
	if q.RunTimeout <= 0 {
		return fmt.Errorf("queue.run_timeout must be positive, got %v", q.RunTimeout)
	}
	if q.OrphanThreshold <= q.HeartbeatInterval {
		return fmt.Errorf("queue.orphan_threshold must exceed queue.heartbeat_interval, got orphan=%v heartbeat=%v", q.OrphanThreshold, q.HeartbeatInterval)
	}
	return nil
}
