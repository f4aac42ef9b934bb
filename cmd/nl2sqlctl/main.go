// Command nl2sqlctl wires the engine's collaborators from configuration
// and serves the orchestrator over HTTP. Grounded on the teacher's
// cmd/tarsy/main.go wiring order: flags -> .env -> config -> database
// -> services -> gin router -> listen.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/googleai/vertex"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/nl2sql-engine/core/pkg/artifact"
	artifactentstore "github.com/nl2sql-engine/core/pkg/artifact/entstore"
	"github.com/nl2sql-engine/core/pkg/artifact/localfs"
	"github.com/nl2sql-engine/core/pkg/config"
	"github.com/nl2sql-engine/core/pkg/database"
	"github.com/nl2sql-engine/core/pkg/datasource"
	"github.com/nl2sql-engine/core/pkg/httpapi"
	"github.com/nl2sql-engine/core/pkg/llmclient"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/pipeline"
	"github.com/nl2sql-engine/core/pkg/queue"
	"github.com/nl2sql-engine/core/pkg/resilience"
	"github.com/nl2sql-engine/core/pkg/retrieval"
	"github.com/nl2sql-engine/core/pkg/schemastore"
	schemaentstore "github.com/nl2sql-engine/core/pkg/schemastore/entstore"
	"github.com/nl2sql-engine/core/pkg/schemastore/inmemory"
	"github.com/nl2sql-engine/core/pkg/sqlbuilder/genericsql"
	"github.com/nl2sql-engine/core/pkg/subgraph"
	"github.com/nl2sql-engine/core/pkg/version"
)

const defaultEmbeddingDims = 256

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	llmProvider := flag.String("llm-provider",
		getEnv("LLM_PROVIDER", "default"),
		"Name of the LLM provider entry to use from llm-providers.yaml")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Printf("starting %s", version.Full())
	log.Printf("config directory: %s", *configDir)

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL, schema migrated")

	schemaStore := buildSchemaStore(cfg, dbClient)

	policyEngine, err := cfg.PolicyRegistry.Engine()
	if err != nil {
		log.Fatalf("failed to build policy engine: %v", err)
	}

	vectorIndex := retrieval.NewInMemoryIndex(retrieval.NewHashEmbedder(defaultEmbeddingDims))

	llmClient, err := buildLLMClient(ctx, *llmProvider, cfg.LLMProviderRegistry)
	if err != nil {
		log.Fatalf("failed to build LLM client for provider %q: %v", *llmProvider, err)
	}

	artifactStore, err := buildArtifactStore(cfg, dbClient)
	if err != nil {
		log.Fatalf("failed to build artifact store: %v", err)
	}

	breakers := cfg.Breakers
	llmBreaker := resilience.New("LLM_BREAKER", resilience.Config{
		FailureThreshold: breakers.LLM.FailureThreshold,
		ResetTimeout:     breakers.LLM.ResetTimeout(),
	})
	vecBreaker := resilience.New("VECTOR_BREAKER", resilience.Config{
		FailureThreshold: breakers.Vector.FailureThreshold,
		ResetTimeout:     breakers.Vector.ResetTimeout(),
	})
	dbBreaker := resilience.New("DB_BREAKER", resilience.Config{
		FailureThreshold: breakers.DB.FailureThreshold,
		ResetTimeout:     breakers.DB.ResetTimeout(),
	})

	datasourceRegistry := datasource.NewRegistry()
	subgraphRegistry := datasource.NewSubgraphRegistry()
	subgraphRegistry.Register(datasource.SubgraphDescriptor{
		Name:                 "sql_agent",
		RequiredCapabilities: models.Capabilities{SupportsSQL: true, SupportsSchemaIntrospection: true},
	})
	if len(datasourceRegistry.IDs()) == 0 {
		slog.Warn("no datasource adapters registered at startup; concrete drivers are wired by the deployment, not this binary")
	}

	mismatchPolicy := pipeline.SchemaVersionWarn
	if cfg.Defaults.SchemaVersionMismatchPolicy == config.SchemaVersionMismatchFail {
		mismatchPolicy = pipeline.SchemaVersionFail
	}

	orch := pipeline.New(pipeline.Deps{
		VectorIndex: vectorIndex,
		SchemaStore: schemaStore,
		Policy:      policyEngine,
		Datasources: datasourceRegistry,
		Subgraphs:   subgraphRegistry,
		LLM:         llmClient,
		SQLBuilder:  genericsql.New(),
		Artifacts:   artifactStore,
		LLMBreaker:  llmBreaker,
		VecBreaker:  vecBreaker,
		DBBreaker:   dbBreaker,
		SubgraphCfg: subgraph.Config{
			Retry:         cfg.Retry.ToRetryPolicy(),
			StrictColumns: cfg.Defaults.LogicalValidatorStrictColumns,
			SubgraphName:  "sql_agent",
		},
	}, pipeline.Config{
		GlobalTimeout:               time.Duration(cfg.Defaults.GlobalTimeoutSeconds) * time.Second,
		SchemaVersionMismatchPolicy: mismatchPolicy,
		DatasourceCandidateK:        5,
	})

	podID := podIdentity()
	if err := queue.CleanupStartupOrphans(ctx, dbClient.Client, podID); err != nil {
		log.Printf("warning: startup orphan cleanup failed: %v", err)
	}

	runQueue := queue.NewPipelineRunQueue(dbClient.Client)
	workerPool := queue.NewWorkerPool(podID, dbClient.Client, cfg.Queue, queue.NewPipelineRunExecutor(orch))
	if err := workerPool.Start(ctx); err != nil {
		log.Fatalf("failed to start worker pool: %v", err)
	}

	server := httpapi.New(orch, cfg, dbClient, runQueue, workerPool)
	log.Printf("HTTP server listening on :%s", httpPort)
	log.Printf("health check available at http://localhost:%s/health", httpPort)

	go func() {
		<-ctx.Done()
		log.Printf("shutdown signal received, draining worker pool")
		workerPool.Stop()
	}()

	if err := server.Run(":" + httpPort); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// podIdentity returns the pod/replica identity used to claim runs and
// attribute heartbeats. POD_ID is set by the deployment (e.g. Kubernetes
// downward API); os.Hostname is the local-dev fallback.
func podIdentity() string {
	if v := os.Getenv("POD_ID"); v != "" {
		return v
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "nl2sqlctl-local"
}

func buildSchemaStore(cfg *config.Config, dbClient *database.Client) schemastore.Store {
	if cfg.Schema.Backend == "inmemory" {
		return inmemory.New(cfg.Schema.MaxVersions)
	}
	return schemaentstore.New(dbClient.Client, cfg.Schema.MaxVersions)
}

// buildArtifactStore wraps the configured payload backend in the ent
// metadata index so every persisted artifact is also discoverable by
// tenant/request without reading the payload itself.
func buildArtifactStore(cfg *config.Config, dbClient *database.Client) (artifact.Store, error) {
	var payload artifact.Store
	switch cfg.Artifact.Backend {
	case config.ArtifactBackendLocal, "":
		var err error
		payload, err = localfs.New(cfg.Artifact.LocalDir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("artifact backend %q has no concrete driver in this binary; only %q is built",
			cfg.Artifact.Backend, config.ArtifactBackendLocal)
	}
	return artifactentstore.New(dbClient.Client, payload), nil
}

// buildLLMClient selects the concrete langchaingo model (or the raw-codec
// gRPC transport) for the named provider entry and wraps it behind
// llmclient.StructuredLLM. Grounded on the Zqzqsb-ReActSqlExp reference
// adapter's provider-type switch over langchaingo's model constructors.
func buildLLMClient(ctx context.Context, name string, reg *config.LLMProviderRegistry) (llmclient.StructuredLLM, error) {
	provider, err := reg.Get(name)
	if err != nil {
		return nil, err
	}

	switch provider.Type {
	case config.LLMProviderTypeOpenAI:
		opts := []openai.Option{openai.WithModel(provider.Model)}
		if provider.APIKeyEnv != "" {
			opts = append(opts, openai.WithToken(os.Getenv(provider.APIKeyEnv)))
		}
		if provider.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(provider.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return llmclient.NewLangchainClient(model, provider.MaxPromptTokens, 0.0), nil

	case config.LLMProviderTypeAnthropic:
		opts := []anthropic.Option{anthropic.WithModel(provider.Model)}
		if provider.APIKeyEnv != "" {
			opts = append(opts, anthropic.WithToken(os.Getenv(provider.APIKeyEnv)))
		}
		model, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		return llmclient.NewLangchainClient(model, provider.MaxPromptTokens, 0.0), nil

	case config.LLMProviderTypeGoogle:
		opts := []googleai.Option{googleai.WithDefaultModel(provider.Model)}
		if provider.APIKeyEnv != "" {
			opts = append(opts, googleai.WithAPIKey(os.Getenv(provider.APIKeyEnv)))
		}
		model, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		return llmclient.NewLangchainClient(model, provider.MaxPromptTokens, 0.0), nil

	case config.LLMProviderTypeVertexAI:
		opts := []googleai.Option{
			googleai.WithCloudProject(os.Getenv(provider.ProjectEnv)),
			googleai.WithCloudLocation(os.Getenv(provider.LocationEnv)),
			googleai.WithDefaultModel(provider.Model),
		}
		model, err := vertex.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("vertexai: %w", err)
		}
		return llmclient.NewLangchainClient(model, provider.MaxPromptTokens, 0.0), nil

	case config.LLMProviderTypeGRPC:
		client, err := llmclient.NewGRPCClient(provider.GRPCAddr)
		if err != nil {
			return nil, fmt.Errorf("grpc: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider type %q", provider.Type)
	}
}
