// Package server wires the decision engine into an HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/Rivega42/FRADECT/internal/circuitbreaker"
	"github.com/Rivega42/FRADECT/internal/config"
	"github.com/Rivega42/FRADECT/internal/decisions"
	"github.com/Rivega42/FRADECT/internal/engine"
	"github.com/Rivega42/FRADECT/internal/features"
	"github.com/Rivega42/FRADECT/internal/health"
	"github.com/Rivega42/FRADECT/internal/idgen"
	"github.com/Rivega42/FRADECT/internal/logging"
	"github.com/Rivega42/FRADECT/internal/metrics"
	"github.com/Rivega42/FRADECT/internal/policy"
	"github.com/Rivega42/FRADECT/internal/ratelimit"
	"github.com/Rivega42/FRADECT/internal/realtime"
	"github.com/Rivega42/FRADECT/internal/scoring"
	"github.com/Rivega42/FRADECT/internal/security"
	"github.com/Rivega42/FRADECT/internal/traces"
	"github.com/Rivega42/FRADECT/internal/validation"
)

// Server is the HTTP front of the decision engine.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine

	db       *sql.DB
	svc      *engine.Service
	policies policy.Store
	hub      *realtime.Hub
	enricher scoring.Enricher

	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	httpSrv      *http.Server
	cancelRunCtx context.CancelFunc
	shutdownOTel func(context.Context) error

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithEnricher plugs in a real external risk registry client. Without
// one, the enrichment source always reports a registry miss.
func WithEnricher(e scoring.Enricher) Option {
	return func(s *Server) { s.enricher = e }
}

// New builds a fully wired server. Storage is PostgreSQL when
// DATABASE_URL is set, in-memory otherwise.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthy.Store(true)
	s.healthReg = health.NewRegistry()

	var (
		policies policy.Store
		records  decisions.Store
		lookup   features.Lookup
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.healthReg.Register("postgres", health.DBChecker("postgres", db))

		policies = policy.NewPostgresStore(db)
		records = decisions.NewPostgresStore(db)
		lookup = features.NewMemoryLookup() // feature store is engine-local for now
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		policies = policy.NewMemoryStore()
		records = decisions.NewMemoryStore()
		lookup = features.NewMemoryLookup()
		s.logger.Info("using in-memory storage (DATABASE_URL not set)")
	}
	s.policies = policies

	s.hub = realtime.NewHub(s.logger)

	enricher := s.enricher
	if enricher == nil {
		enricher = noopEnricher{}
	}
	breaker := circuitbreaker.New(5, 30*time.Second)
	sources := []scoring.Source{
		scoring.NewModelScorer("model", scoring.DefaultEnsemble()),
		scoring.NewRuleEvaluator("rules", scoring.DefaultRules()),
		scoring.NewEnrichmentClient("enrichment", enricher, breaker),
	}

	s.svc = engine.New(
		cfg,
		features.NewAssembler(lookup),
		scoring.NewOrchestrator(sources, cfg.AdapterBudget()),
		policies,
		records,
		s.hub,
	)

	if gin.Mode() != gin.TestMode {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// maskDSN hides credentials when logging a connection string.
func maskDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	{
		v1.POST("/score", s.scoreHandler)
		v1.POST("/batch", s.submitBatchHandler)
		v1.GET("/batch/:id", validation.IDParamMiddleware(), s.batchStatusHandler)

		v1.GET("/decisions", s.listDecisionsHandler)
		v1.GET("/decisions/:id", validation.IDParamMiddleware(), s.getDecisionHandler)
		v1.POST("/decisions/:id/outcome", validation.IDParamMiddleware(), s.recordOutcomeHandler)

		v1.GET("/policies", s.listPoliciesHandler)
		v1.PUT("/policies", s.putPolicyHandler)

		v1.GET("/stream", func(c *gin.Context) {
			s.hub.HandleWebSocket(c.Writer, c.Request)
		})
		v1.GET("/stream/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.hub.Stats())
		})
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownOTel, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed, continuing without", "error", err)
	} else {
		s.shutdownOTel = shutdownOTel
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	go s.svc.Run(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownOTel != nil {
		if err := s.shutdownOTel(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Service returns the underlying engine, for seeding in tests and demos.
func (s *Server) Service() *engine.Service {
	return s.svc
}

// Policies exposes the policy store so operators and tests can install
// tenant configuration.
func (s *Server) Policies() policy.Store {
	return s.policies
}

// noopEnricher stands in when no external registry is configured: every
// entity is simply unknown.
type noopEnricher struct{}

func (noopEnricher) Lookup(context.Context, string) (scoring.EnrichmentResult, error) {
	return scoring.EnrichmentResult{}, scoring.ErrNotFound
}
