package config

// EngineType names the concrete datasource driver family a registered
// datasource speaks. The core never branches on it directly — it only
// flows through to the Adapter's own dialect selection — but validation
// rejects unknown engines early, before a bad config reaches the
// datasource registry.
type EngineType string

const (
	EngineTypePostgres EngineType = "postgres"
	EngineTypeMySQL    EngineType = "mysql"
	EngineTypeMSSQL    EngineType = "mssql"
	EngineTypeSQLite   EngineType = "sqlite"
)

// IsValid reports whether t is one of the recognized engine types.
func (t EngineType) IsValid() bool {
	switch t {
	case EngineTypePostgres, EngineTypeMySQL, EngineTypeMSSQL, EngineTypeSQLite:
		return true
	default:
		return false
	}
}

// ArtifactBackendType selects which artifact.Store implementation the
// aggregator reads result frames from, per spec.md §6's
// result_artifact_backend enum.
type ArtifactBackendType string

const (
	ArtifactBackendLocal ArtifactBackendType = "local"
	ArtifactBackendS3    ArtifactBackendType = "s3"
	ArtifactBackendADLS  ArtifactBackendType = "adls"
)

// IsValid reports whether b is a recognized artifact backend.
func (b ArtifactBackendType) IsValid() bool {
	switch b {
	case ArtifactBackendLocal, ArtifactBackendS3, ArtifactBackendADLS:
		return true
	default:
		return false
	}
}

// SchemaVersionMismatchPolicy is the YAML-level spelling of
// pipeline.SchemaVersionMismatchPolicy — kept as a distinct type here so
// the config package does not need to import pkg/pipeline; cmd/nl2sqlctl
// converts between the two at wiring time.
type SchemaVersionMismatchPolicy string

const (
	SchemaVersionMismatchWarn SchemaVersionMismatchPolicy = "warn"
	SchemaVersionMismatchFail SchemaVersionMismatchPolicy = "fail"
)

// IsValid reports whether p is one of the two explicit policies.
// spec.md §9 disallows an implicit third state, so the empty string is
// deliberately NOT valid here — Initialize always resolves it to a
// built-in default before validation runs.
func (p SchemaVersionMismatchPolicy) IsValid() bool {
	return p == SchemaVersionMismatchWarn || p == SchemaVersionMismatchFail
}

// LLMProviderType names the StructuredLLM backend a provider entry
// configures. The core only ever talks to the llmclient.StructuredLLM
// interface; this selects which concrete client pkg/llmclient builds.
type LLMProviderType string

const (
	LLMProviderTypeOpenAI    LLMProviderType = "openai"
	LLMProviderTypeAnthropic LLMProviderType = "anthropic"
	LLMProviderTypeGoogle    LLMProviderType = "google"
	LLMProviderTypeVertexAI  LLMProviderType = "vertexai"
	LLMProviderTypeGRPC      LLMProviderType = "grpc"
)

// IsValid reports whether t is a recognized LLM provider type.
func (t LLMProviderType) IsValid() bool {
	switch t {
	case LLMProviderTypeOpenAI, LLMProviderTypeAnthropic, LLMProviderTypeGoogle, LLMProviderTypeVertexAI, LLMProviderTypeGRPC:
		return true
	default:
		return false
	}
}
