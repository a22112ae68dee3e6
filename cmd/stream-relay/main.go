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

	"github.com/adaptai/edge/internal/eventlog"
	"github.com/adaptai/edge/internal/relay"
	"github.com/adaptai/edge/internal/shared/config"
	"github.com/adaptai/edge/internal/shared/logger"
	"github.com/adaptai/edge/internal/shared/redisx"
)

const appName = "stream-relay"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	if cfg.SinkURL == "" {
		log.Error("config_error", slog.String("err", "SINK_URL is empty"))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := openConsumer(ctx, cfg, log)
	if err != nil {
		// The log connection is the relay's reason to exist; failing to
		// establish it after the backoff retries is fatal.
		log.Error("eventlog_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = consumer.Close() }()

	reg := prometheus.NewRegistry()
	metrics := relay.NewMetrics(reg)

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

	sink := relay.NewHTTPSink(cfg.SinkURL, cfg.SinkTimeout)
	runner := relay.NewRunner(log, consumer, sink, metrics)

	log.Info("relay_start",
		slog.String("backend", cfg.EventLogBackend),
		slog.String("stream", cfg.StreamName),
		slog.String("group", cfg.ConsumerGroup),
		slog.String("consumer", cfg.ConsumerName),
		slog.String("sink", cfg.SinkURL),
	)

	if err := runner.Run(ctx); err != nil {
		log.Error("relay_failed", slog.String("err", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("relay_shutdown")
}

func openConsumer(ctx context.Context, cfg config.Config, log *slog.Logger) (eventlog.Consumer, error) {
	if cfg.EventLogBackend == "kafka" {
		return eventlog.NewKafkaLog(eventlog.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.StreamName,
			GroupID: cfg.ConsumerGroup,
			Block:   cfg.BlockInterval,
		}), nil
	}

	client, err := redisx.OpenWithRetry(ctx, redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, 5, time.Second)
	if err != nil {
		return nil, err
	}
	log.Info("redis_ready", slog.String("addr", cfg.RedisAddr))

	return eventlog.NewRedisLog(client, eventlog.RedisConfig{
		Stream:   cfg.StreamName,
		Group:    cfg.ConsumerGroup,
		Consumer: cfg.ConsumerName,
		Count:    int64(cfg.FetchCount),
		Block:    cfg.BlockInterval,
	}), nil
}
