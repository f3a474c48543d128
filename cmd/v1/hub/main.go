package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/gauravbhatia4601/meet/internal/v1/admin"
	"github.com/gauravbhatia4601/meet/internal/v1/bus"
	"github.com/gauravbhatia4601/meet/internal/v1/config"
	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/middleware"
	"github.com/gauravbhatia4601/meet/internal/v1/ratelimit"
	"github.com/gauravbhatia4601/meet/internal/v1/registry"
	"github.com/gauravbhatia4601/meet/internal/v1/signaling"
	"github.com/gauravbhatia4601/meet/internal/v1/tracing"
)

func main() {
	// Load .env file for local development. Missing files are fine; the
	// process environment is authoritative.
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		// Logger is not up yet.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.IsDevelopment()); err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx := context.Background()
	logging.Info(ctx, "Starting signaling hub",
		zap.String("port", cfg.Port),
		zap.Int("maxParticipants", cfg.MaxParticipants),
		zap.Duration("roomIdleTimeout", cfg.RoomIdleTimeout))

	// --- Tracing ---
	if cfg.OtelEnabled {
		tp, err := tracing.InitTracer(ctx, "meet-hub", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "Failed to initialize tracing", zap.Error(err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		logging.Info(ctx, "Tracing initialized", zap.String("collector", cfg.OtelCollectorAddr))
	}

	// --- Cross-instance bus (optional) ---
	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "Failed to connect to Redis", zap.Error(err))
			os.Exit(1)
		}
		defer func() { _ = busService.Close() }()
	} else {
		logging.Info(ctx, "Redis disabled, running in single-instance mode")
	}

	// --- Rate limiting ---
	limiter, err := ratelimit.NewLimiter(cfg.RateLimitWsIP, busService.Client())
	if err != nil {
		logging.Error(ctx, "Failed to create rate limiter", zap.Error(err))
		os.Exit(1)
	}

	// --- Registry, sweeper and hub ---
	reg := registry.New(cfg.MaxParticipants)
	hub := signaling.NewHub(reg, busService, limiter, cfg)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	reg.StartSweeper(sweepCtx, cfg.SweepInterval, cfg.RoomIdleTimeout)

	// --- HTTP server ---
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.OtelEnabled {
		router.Use(otelgin.Middleware("meet-hub"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	router.Use(cors.New(corsConfig))

	adminHandler := admin.NewHandler(reg)
	router.GET("/socket.io/", hub.ServeWs)
	router.GET("/health", adminHandler.Health)
	router.GET("/stats", adminHandler.Stats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "Hub listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "Failed to run server", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Stop accepting new connections first, then drain live ones.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Server forced to shutdown", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Hub shutdown incomplete", zap.Error(err))
	}
	stopSweeper()

	logging.Info(ctx, "Server exiting")
}
