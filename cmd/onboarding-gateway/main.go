package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TheNyokabi/MoranIP-sub003/internal/auth"
	"github.com/TheNyokabi/MoranIP-sub003/internal/config"
	"github.com/TheNyokabi/MoranIP-sub003/internal/onboarding"
	"github.com/TheNyokabi/MoranIP-sub003/internal/onboarding/push"
)

func main() {
	// Local overrides for development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	// Progress push hub
	pushManager := push.NewManager(logger)

	// Onboarding wizard sessions, feeding the push hub from each poller tick
	sessions := onboarding.NewSessionManager(
		cfg.Upstream.BaseURL,
		logger,
		cfg.Onboarding.PollInterval,
		pushManager.BroadcastState,
	)

	sessionMiddleware := auth.NewMiddleware(cfg.Security.JWTSecret)
	authHandler := auth.NewHandler()
	onboardingHandler := onboarding.NewHandler(sessions, logger, func(w http.ResponseWriter, r *http.Request, tenantID string) error {
		_, err := pushManager.HandleConnection(w, r, tenantID)
		return err
	})

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	auth.RegisterRoutes(router, authHandler, sessionMiddleware)

	api := router.Group("/api/v1")
	api.Use(sessionMiddleware.RequireSession())
	{
		onboardingHandler.RegisterRoutes(api)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"connections": pushManager.ConnectionCount(),
			"timestamp":   time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    cfg.Server.GetServerAddr(),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Onboarding gateway started",
		zap.String("addr", cfg.Server.GetServerAddr()),
		zap.String("upstream", cfg.Upstream.BaseURL))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down gateway...")

	sessions.Shutdown()
	pushManager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Gateway exiting")
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}
