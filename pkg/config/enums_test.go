package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineTypeIsValid(t *testing.T) {
	tests := []struct {
		name string
		t    EngineType
		want bool
	}{
		{"postgres", EngineTypePostgres, true},
		{"mysql", EngineTypeMySQL, true},
		{"mssql", EngineTypeMSSQL, true},
		{"sqlite", EngineTypeSQLite, true},
		{"unknown", EngineType("oracle"), false},
		{"empty", EngineType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.IsValid())
		})
	}
}

func TestArtifactBackendTypeIsValid(t *testing.T) {
	assert.True(t, ArtifactBackendLocal.IsValid())
	assert.True(t, ArtifactBackendS3.IsValid())
	assert.True(t, ArtifactBackendADLS.IsValid())
	assert.False(t, ArtifactBackendType("gcs").IsValid())
}

func TestSchemaVersionMismatchPolicyIsValid(t *testing.T) {
	assert.True(t, SchemaVersionMismatchWarn.IsValid())
	assert.True(t, SchemaVersionMismatchFail.IsValid())
	assert.False(t, SchemaVersionMismatchPolicy("").IsValid(), "empty string must not be an implicit third state")
	assert.False(t, SchemaVersionMismatchPolicy("ignore").IsValid())
}

func TestLLMProviderTypeIsValid(t *testing.T) {
	valid := []LLMProviderType{
		LLMProviderTypeOpenAI,
		LLMProviderTypeAnthropic,
		LLMProviderTypeGoogle,
		LLMProviderTypeVertexAI,
		LLMProviderTypeGRPC,
	}
	for _, v := range valid {
		assert.True(t, v.IsValid(), "%s should be valid", v)
	}
	assert.False(t, LLMProviderType("cohere").IsValid())
}
