package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adaptai/edge/internal/credentials"
	"github.com/adaptai/edge/internal/gateway"
	"github.com/adaptai/edge/internal/session"
	"github.com/adaptai/edge/internal/shared/config"
	"github.com/adaptai/edge/internal/shared/db"
	"github.com/adaptai/edge/internal/shared/httpx"
	"github.com/adaptai/edge/internal/shared/logger"
	"github.com/adaptai/edge/internal/shared/redisx"
	"github.com/adaptai/edge/internal/token"
)

const appName = "api-gateway"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	if cfg.JWTSecret == "" {
		log.Error("config_error", slog.String("err", "JWT_SECRET is empty"))
		os.Exit(2)
	}
	if len(cfg.ServiceRoutes) == 0 {
		log.Error("config_error", slog.String("err", "SERVICE_ROUTES is empty"))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisx.Open(ctx, redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Error("redis_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	store := session.NewRedisStore(redisClient)
	tokens := token.NewService(cfg.JWTSecret, cfg.TokenTTL, store)

	var creds credentials.Verifier
	if cfg.DatabaseURL != "" {
		pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
		if err != nil {
			log.Error("db_open_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = pg.Close() }()
		creds = credentials.NewPostgresVerifier(pg)
	} else {
		static, err := credentials.NewStaticVerifier(cfg.AdminUser, cfg.AdminPassword)
		if err != nil {
			log.Error("credentials_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		creds = static
	}

	reg := prometheus.NewRegistry()
	metrics := httpx.NewMetrics(reg)

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics_listen", slog.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics_server_error", slog.String("err", err.Error()))
		}
	}()

	h := gateway.NewHandler(log, tokens, creds, gateway.Options{
		Routes:         cfg.ServiceRoutes,
		RateLimit:      cfg.RateLimit,
		RateWindow:     cfg.RateWindow,
		ForwardTimeout: cfg.ForwardTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gateway.NewRouter(log, h, cfg.AllowedOrigins, metrics),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("http_listen", slog.String("addr", srv.Addr))

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error("http_server_error", slog.String("err", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("shutdown_done")
}
