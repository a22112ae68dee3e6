package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/adaptai/edge/internal/eventlog"
	"github.com/adaptai/edge/internal/publish"
	"github.com/adaptai/edge/internal/query"
	"github.com/adaptai/edge/internal/session"
	"github.com/adaptai/edge/internal/shared/config"
	"github.com/adaptai/edge/internal/shared/httpx"
	"github.com/adaptai/edge/internal/shared/logger"
	"github.com/adaptai/edge/internal/shared/redisx"
)

const appName = "query-service"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	redisClient, err := redisx.Open(context.Background(), redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Error("redis_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	var producer eventlog.Producer
	if cfg.EventLogBackend == "kafka" {
		producer = eventlog.NewKafkaLog(eventlog.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.StreamName,
			GroupID: cfg.ConsumerGroup,
		})
	} else {
		producer = eventlog.NewRedisLog(redisClient, eventlog.RedisConfig{
			Stream: cfg.StreamName,
		})
	}
	defer func() { _ = producer.Close() }()

	publisher := publish.New(log, producer, 256)
	defer publisher.Close()

	store := session.NewRedisStore(redisClient)
	h := query.NewHandler(log, store, publisher, cfg.CacheTTL)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           query.NewRouter(log, h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("http_listen", slog.String("addr", srv.Addr))

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error("http_server_error", slog.String("err", err.Error()))
		}
	}()

	httpx.WaitAndShutdown(log, srv, 10*time.Second)
}
