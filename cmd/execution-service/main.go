package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic/execution-service/internal/config"
	"clinic/execution-service/internal/execution"
	"clinic/execution-service/internal/httpapi"
	"clinic/execution-service/internal/hub"
	"clinic/execution-service/internal/logger"
	"clinic/execution-service/internal/migration"
	"clinic/execution-service/internal/store/postgres"
	"clinic/execution-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "execution-service"

func main() {
	cfg := config.Load()

	logg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	shutdownTelemetry := telemetry.Setup(serviceName, logg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	if cfg.DatabaseURL == "" {
		logg.Fatal("DB_DSN is required")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logg.Fatal("parse db config", zap.Error(err))
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logg.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := migration.Run(pool); err != nil {
			logg.Fatal("migrate", zap.Error(err))
		}
		logg.Info("migrations applied")
	}

	store := postgres.NewStore(pool, postgres.Options{OperationTimeout: cfg.StoreTimeout})
	h := hub.New(logg.Named("hub"))
	service := execution.NewService(store, execution.Options{
		Publisher: execution.NewHubPublisher(h, logg),
		Logger:    logg.Named("execution"),
	})
	handler := httpapi.NewHandler(service, store, httpapi.Options{
		Logger:   logg.Named("http"),
		Realtime: httpapi.NewRealtimeHandler(h, store, cfg.RealtimeBuffer, logg.Named("realtime")),
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
	})

	routes := httpapi.LoggingMiddleware(logg.Named("access"), limiter.Middleware(handler.Routes()))
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(routes, serviceName),
		ReadTimeout: 10 * time.Second,
		// SockJS streaming transports hold responses open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}
