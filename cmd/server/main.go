package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/vpr-analytics/internal/apidoc"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/cache"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/config"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/dashboard"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/database"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/dataset"
	apperrors "github.com/ZanzyTHEbar/vpr-analytics/internal/errors"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/middleware"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/monitoring"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/ratelimit"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/resilience"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/security"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLoggerWithWriter(os.Stdout, monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(appLogger.Logger)
	gin.SetMode(cfg.GinMode)

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := newServer(cfg, db, appLogger)
	defer srv.Close()

	loadCtx, cancelLoad := context.WithCancel(context.Background())
	defer cancelLoad()
	go srv.load(loadCtx)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	cancelLoad()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// server holds every long-lived component of the API
type server struct {
	cfg config.Config
	db  *database.DB

	repo      *database.Repository
	memo      *cache.Memo
	respCache *cache.Cache
	dashboard *dashboard.Service
	sessions  *session.Store
	loader    *dataset.Loader

	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter
	security *security.SecurityMiddleware
	compress *middleware.CompressionMiddleware

	metrics *monitoring.Metrics
	prom    *monitoring.PrometheusMetrics
	logger  *monitoring.Logger
}

func newServer(cfg config.Config, db *database.DB, logger *monitoring.Logger) *server {
	metrics := monitoring.NewMetrics()
	prom := monitoring.NewPrometheusMetrics()

	// a failed ping still yields a disabled client, so the limiter falls back to memory
	redisClient, err := ratelimit.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Warn("Redis unavailable, continuing without it", "error", err)
	}

	secCfg := security.DefaultSecurityConfig()
	secCfg.AllowedOrigins = cfg.AllowedOrigins

	repo := database.NewRepository(db)
	memo := cache.NewMemo(cfg.CacheTTL)

	s := &server{
		cfg:       cfg,
		db:        db,
		repo:      repo,
		memo:      memo,
		respCache: cache.NewCache(cfg.CacheTTL),
		dashboard: dashboard.NewService(repo, memo, metrics, prom, logger),
		sessions:  session.NewStore(cfg.SessionTTL),
		redis:     redisClient,
		limiter:   ratelimit.NewRateLimiter(redisClient, cfg.RateLimit, metrics, prom),
		security:  security.NewSecurityMiddleware(secCfg),
		compress:  middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		metrics:   metrics,
		prom:      prom,
		logger:    logger,
	}

	s.loader = dataset.NewLoader(cfg.StageDelay, s.materialize)
	s.loader.OnStage(s.onStage)

	return s
}

// load runs the staged loader, then warms the aggregation cache
func (s *server) load(ctx context.Context) {
	err := s.loader.Run(ctx)
	s.metrics.RecordDatasetLoad(err == nil)
	if err != nil {
		s.logger.SystemLogger("dataset_load_failed", err.Error())
		return
	}

	if _, err := s.dashboard.WarmCache(ctx); err != nil {
		slog.Warn("Dashboard cache warming failed", "error", err)
	}
	s.dashboard.AutoRefresh(ctx, s.cfg.CacheTTL)
}

// materialize reuses the stored dataset unless regeneration is requested
func (s *server) materialize(ctx context.Context) error {
	if !s.cfg.Regenerate {
		info, err := s.repo.LatestDataset(ctx)
		if err == nil {
			slog.Info("Reusing stored dataset", "version", info.ID, "created_at", info.CreatedAt)
			s.datasetLoaded(info)
			return nil
		}
		if !errors.Is(err, database.ErrNoDataset) {
			return err
		}
	}

	ds := dataset.Generate(s.cfg.Generator)

	retry := resilience.DefaultRetryConfig()
	retry.Retryable = database.IsTransient

	var info *database.DatasetInfo
	err := resilience.RetryWithConfig(ctx, retry, func() error {
		var err error
		info, err = s.repo.ReplaceAll(ctx, ds)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("Generated dataset", "version", info.ID, "rows", ds.Rows())
	s.datasetLoaded(info)
	return nil
}

func (s *server) datasetLoaded(info *database.DatasetInfo) {
	s.dashboard.Invalidate()
	s.respCache.Clear()

	s.prom.SetDatasetRows("marks", info.MarkRows)
	s.prom.SetDatasetRows("scores", info.ScoreRows)
	s.prom.SetDatasetRows("bias", info.BiasRows)
}

func (s *server) onStage(p dataset.Progress) {
	s.logger.LoaderLogger(p.Stage, p.Message, p.Percent, p.Done, p.Error)
	s.prom.SetLoaderStage(p.Stage)
}

func (s *server) router() *gin.Engine {
	r := gin.New()

	r.Use(s.security.CORSConfig())
	r.Use(s.compress.Handler())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.prom, s.logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(s.security.SecurityHeaders)
	r.Use(s.security.RequestTimeout)
	r.Use(s.security.ValidateContentType)
	r.Use(s.limiter.IPRateLimitMiddleware())
	r.Use(s.respCache.Middleware(s.metrics, s.repo.Version))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/metrics/prometheus", gin.WrapH(s.prom.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	{
		api.GET("/loading", s.handleLoading)

		data := api.Group("", s.requireReady)
		data.GET("/filters/options", s.handleOptions)
		data.GET("/marks", s.handleMarks)
		data.GET("/scores", s.handleScores)
		data.GET("/bias", s.handleBias)
		data.GET("/dashboard", s.handleDashboard)
		data.GET("/validation", s.handleValidation)

		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions/:id", s.handleGetSession)
		api.PATCH("/sessions/:id/filters", s.handleUpdateSession)
		api.DELETE("/sessions/:id", s.handleDeleteSession)
		data.GET("/sessions/:id/dashboard", s.handleSessionDashboard)
	}

	if s.cfg.GinMode == gin.DebugMode {
		r.GET("/debug/pprof/*name", handlePprof)
	}

	return r
}

// handlePprof mounts net/http/pprof under a single catch-all route
func handlePprof(c *gin.Context) {
	switch strings.TrimPrefix(c.Param("name"), "/") {
	case "cmdline":
		pprof.Cmdline(c.Writer, c.Request)
	case "profile":
		pprof.Profile(c.Writer, c.Request)
	case "symbol":
		pprof.Symbol(c.Writer, c.Request)
	case "trace":
		pprof.Trace(c.Writer, c.Request)
	default:
		pprof.Index(c.Writer, c.Request)
	}
}

// Close stops background workers
func (s *server) Close() {
	s.limiter.Close()
	s.sessions.Close()
	s.memo.Close()
	s.respCache.Close()
	apperrors.SafeClose(s.redis, "redis client")
}
