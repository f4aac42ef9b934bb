// Package httpapi exposes the orchestrator as a thin HTTP boundary:
// one endpoint to run a query through the control graph, one for
// health. Grounded on the teacher's cmd/tarsy/main.go gin.Default()
// router and /health handler shape, generalized from the alert-session
// API onto the query pipeline.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nl2sql-engine/core/ent"
	"github.com/nl2sql-engine/core/pkg/config"
	"github.com/nl2sql-engine/core/pkg/database"
	"github.com/nl2sql-engine/core/pkg/models"
	"github.com/nl2sql-engine/core/pkg/pipeline"
	"github.com/nl2sql-engine/core/pkg/queue"
)

// Server wires the pipeline orchestrator and the run queue behind a gin
// router.
type Server struct {
	router  *gin.Engine
	orch    *pipeline.Orchestrator
	cfg     *config.Config
	db      *database.Client
	runs    *queue.PipelineRunQueue
	pool    *queue.WorkerPool
	healthT time.Duration
}

// New constructs a Server. cfg and db are used only by /health; orch
// handles the synchronous /v1/query path; runs and pool back the
// asynchronous /v1/runs submit-and-poll path. runs/pool may be nil,
// disabling the async endpoints (e.g. in tests that only exercise
// /v1/query).
func New(orch *pipeline.Orchestrator, cfg *config.Config, db *database.Client, runs *queue.PipelineRunQueue, pool *queue.WorkerPool) *Server {
	s := &Server{
		router:  gin.Default(),
		orch:    orch,
		cfg:     cfg,
		db:      db,
		runs:    runs,
		pool:    pool,
		healthT: 5 * time.Second,
	}
	s.routes()
	return s
}

// Router exposes the underlying gin.Engine for Run or testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/v1/query", s.handleQuery)
	if s.runs != nil && s.pool != nil {
		s.router.POST("/v1/runs", s.handleSubmitRun)
		s.router.GET("/v1/runs/:trace_id", s.handleRunStatus)
		s.router.POST("/v1/runs/:trace_id/cancel", s.handleCancelRun)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.healthT)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	stats := s.cfg.Stats()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
		"configuration": gin.H{
			"datasources":   stats.Datasources,
			"policy_roles":  stats.PolicyRoles,
			"llm_providers": stats.LLMProviders,
		},
	})
}

// queryRequest is the wire shape of a /v1/query call.
type queryRequest struct {
	TraceID       string   `json:"trace_id,omitempty"`
	Query         string   `json:"query" binding:"required"`
	DatasourceID  string   `json:"datasource_id,omitempty"`
	SchemaVersion string   `json:"schema_version,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	TenantID      string   `json:"tenant_id,omitempty"`
	Roles         []string `json:"roles,omitempty"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	state := s.orch.Run(c.Request.Context(), pipeline.Request{
		TraceID:   traceID,
		UserQuery: req.Query,
		UserContext: models.UserContext{
			UserID:   req.UserID,
			TenantID: req.TenantID,
			Roles:    req.Roles,
		},
		DatasourceID:  req.DatasourceID,
		SchemaVersion: req.SchemaVersion,
	})

	status := http.StatusOK
	if len(state.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, state)
}

// submitRunRequest is the wire shape of a /v1/runs submission. Unlike
// /v1/query it returns immediately with the run's trace ID instead of
// blocking for the control graph to finish.
type submitRunRequest struct {
	TraceID  string `json:"trace_id,omitempty"`
	Query    string `json:"query" binding:"required"`
	UserID   string `json:"user_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

func (s *Server) handleSubmitRun(c *gin.Context) {
	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	run, err := s.runs.Enqueue(c.Request.Context(), queue.EnqueueRequest{
		TraceID:   traceID,
		UserQuery: req.Query,
		UserContext: models.UserContext{
			UserID:   req.UserID,
			TenantID: req.TenantID,
		},
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"trace_id": run.ID,
		"status":   run.Status,
	})
}

func (s *Server) handleRunStatus(c *gin.Context) {
	run, err := s.runs.Get(c.Request.Context(), c.Param("trace_id"))
	if err != nil {
		if ent.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"trace_id":   run.ID,
		"status":     run.Status,
		"created_at": run.CreatedAt,
	}
	if run.StartedAt != nil {
		resp["started_at"] = run.StartedAt
	}
	if run.CompletedAt != nil {
		resp["completed_at"] = run.CompletedAt
	}
	if run.ErrorMessage != nil {
		resp["error"] = *run.ErrorMessage
	}
	if run.Result != nil {
		resp["result"] = run.Result
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancelRun(c *gin.Context) {
	traceID := c.Param("trace_id")
	if s.pool.CancelRun(traceID) {
		c.JSON(http.StatusAccepted, gin.H{"trace_id": traceID, "cancelled": true})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "run not actively claimed on this pod"})
}

// Run starts the HTTP server on addr (e.g. ":8080").
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
