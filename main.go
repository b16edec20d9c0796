package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/config"
	"github.com/ikonrealty/closingdesk/handler"
	"github.com/ikonrealty/closingdesk/middleware"
	"github.com/ikonrealty/closingdesk/pkg/logger"
	"github.com/ikonrealty/closingdesk/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully", "snapshot_source", cfg.Snapshot.Source)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendClient := service.NewBackendClient(&cfg.Backend)
	source, backend, err := buildCollaborators(ctx, cfg, backendClient)
	if err != nil {
		slog.Error("failed to initialize snapshot source", "error", err)
		os.Exit(1)
	}

	service.InitSnapshotStore()
	store := service.GetSnapshotStore()
	// A failed first load leaves an empty dashboard that reports the error.
	if err := store.Refresh(ctx, source); err != nil {
		slog.Warn("initial snapshot load failed", "error", err)
	}
	if cfg.Server.RefreshSeconds > 0 {
		go refreshLoop(ctx, store, source, time.Duration(cfg.Server.RefreshSeconds)*time.Second)
	}

	mutator := service.NewMutator(store, source, backend)

	authHandler := handler.NewAuthHandler(cfg)
	contractHandler := handler.NewContractHandler(store, mutator, cfg.Dashboard.RecentCount)
	dashboardHandler := handler.NewDashboardHandler(store, cfg.Dashboard.LeaderboardSize)
	retentionHandler := handler.NewRetentionHandler(store, mutator)
	uploadHandler := handler.NewUploadHandler(backendClient)
	callbackHandler := handler.NewCallbackHandler(backendClient, store, source)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(cacheMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"timestamp":    time.Now().Format(time.RFC3339),
			"snapshot_at":  store.FetchedAt(),
			"transactions": store.Count(),
		})
	})

	// One limiter: keyed by IP before sign-in, by agent after.
	rateLimit := middleware.RateLimit(cfg.Server.RateLimit, time.Minute)

	api := router.Group("/api")
	public := api.Group("/")
	public.Use(rateLimit)
	{
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/signup/validate", authHandler.ValidateSignUp)
		public.POST("/events/backend", callbackHandler.HandleCallback)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth), rateLimit)
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.GET("/groups", contractHandler.List)
		protected.GET("/groups/:id", contractHandler.Get)
		protected.POST("/groups/:id/stage", contractHandler.AdvanceStage)
		protected.DELETE("/files/*key", contractHandler.DeleteFile)
		protected.GET("/me/files", contractHandler.MyFiles)

		protected.POST("/address/select", handler.SelectAddress)
		protected.POST("/address/candidates", handler.Candidates)
		protected.POST("/uploads/plan", uploadHandler.Plan)
		protected.POST("/uploads/commission", uploadHandler.SaveCommission)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/dashboard", dashboardHandler.Summary)
		admin.GET("/dashboard/recent", dashboardHandler.Recent)
		admin.POST("/refresh", callbackHandler.Refresh)

		admin.GET("/retention", retentionHandler.Tiers)
		admin.GET("/retention/preview", retentionHandler.Preview)
		admin.POST("/retention/sessions", retentionHandler.OpenSession)
		admin.GET("/retention/sessions/:id", retentionHandler.Status)
		admin.PUT("/retention/sessions/:id/text", retentionHandler.SetText)
		admin.POST("/retention/sessions/:id/confirm", retentionHandler.Confirm)
		admin.DELETE("/retention/sessions/:id", retentionHandler.Cancel)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// buildCollaborators picks the snapshot source and the backend that persists
// mutations for the configured source
func buildCollaborators(ctx context.Context, cfg *config.Config, client *service.BackendClient) (service.SnapshotSource, service.Backend, error) {
	switch cfg.Snapshot.Source {
	case config.SourceMinio:
		minioSvc, err := service.NewMinioService(&cfg.Minio)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize MINIO service: %w", err)
		}
		if err := minioSvc.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure MINIO bucket: %w", err)
		}
		return minioSvc, service.NewTrashBackend(client, minioSvc), nil
	case config.SourceS3:
		s3Src, err := service.NewS3Source(ctx, &cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return s3Src, client, nil
	case config.SourceAPI:
		return client, client, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshot source %q", cfg.Snapshot.Source)
}

// refreshLoop re-fetches the snapshot every interval until ctx is done
func refreshLoop(ctx context.Context, store *service.SnapshotStore, source service.SnapshotSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = store.Refresh(ctx, source)
		}
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// cacheMiddleware keeps API responses out of caches; snapshots change under
// every mutation
func cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}
		c.Next()
	}
}
