package config

import (
	"time"

	"github.com/adaptai/edge/internal/shared/env"
)

// Config is the full environment surface shared by the edge binaries.
// Each binary reads only the fields it needs.
type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	// Auth.
	JWTSecret  string
	TokenTTL   time.Duration
	SessionTTL time.Duration

	// Gateway.
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	ServiceRoutes  map[string]string
	ForwardTimeout time.Duration

	// Credential store. Empty DatabaseURL selects the static store.
	DatabaseURL   string
	AdminUser     string
	AdminPassword string

	// Session store / event log connection.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event log.
	EventLogBackend string // "redis" | "kafka"
	StreamName      string
	ConsumerGroup   string
	ConsumerName    string
	FetchCount      int
	BlockInterval   time.Duration
	KafkaBrokers    []string

	// Relay sink.
	SinkURL     string
	SinkTimeout time.Duration

	// Query cache.
	CacheTTL time.Duration
}

func Load() Config {
	loadDotEnv(".env")

	return Config{
		AppEnv:      env.String("APP_ENV", "dev"),
		HTTPAddr:    env.String("HTTP_ADDR", ":8080"),
		MetricsAddr: env.String("METRICS_ADDR", ":9091"),

		JWTSecret:  env.String("JWT_SECRET", ""),
		TokenTTL:   env.Duration("TOKEN_TTL", time.Hour),
		SessionTTL: env.Duration("SESSION_TTL", time.Hour),

		AllowedOrigins: env.StringsCSV("ALLOWED_ORIGINS", []string{"*"}),
		RateLimit:      env.Int("RATE_LIMIT", 5),
		RateWindow:     env.Duration("RATE_WINDOW", time.Minute),
		ServiceRoutes:  env.Map("SERVICE_ROUTES", nil),
		ForwardTimeout: env.Duration("GATEWAY_TIMEOUT", 10*time.Second),

		DatabaseURL:   env.String("DATABASE_URL", ""),
		AdminUser:     env.String("ADMIN_USER", "admin"),
		AdminPassword: env.String("ADMIN_PASSWORD", "password"),

		RedisAddr:     env.String("REDIS_ADDR", "localhost:6379"),
		RedisPassword: env.String("REDIS_PASSWORD", ""),
		RedisDB:       env.Int("REDIS_DB", 0),

		EventLogBackend: env.String("EVENT_LOG_BACKEND", "redis"),
		StreamName:      env.String("STREAM_NAME", "preprocess_request"),
		ConsumerGroup:   env.String("CONSUMER_GROUP", "post-processing-grp"),
		ConsumerName:    env.String("CONSUMER_NAME", "relay-1"),
		FetchCount:      env.Int("FETCH_COUNT", 10),
		BlockInterval:   env.Duration("BLOCK_INTERVAL", 5*time.Second),
		KafkaBrokers:    env.StringsCSV("KAFKA_BROKERS", []string{"localhost:9092"}),

		SinkURL:     env.String("SINK_URL", ""),
		SinkTimeout: env.Duration("SINK_TIMEOUT", 10*time.Second),

		CacheTTL: env.Duration("CACHE_TTL", 10*time.Minute),
	}
}
