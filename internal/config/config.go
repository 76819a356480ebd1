// Package config builds the RiskDesk configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

// Load reads configuration from RISKDESK_* environment variables on top of
// the tier defaults. A .env file is loaded first if present (for local
// development); variables already set in the environment win.
func Load(envFiles ...string) (*domain.Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv("RISKDESK_TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config) {
	cfg.Server.Host = getEnv("RISKDESK_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("RISKDESK_PORT", cfg.Server.Port)

	cfg.Scoring.BaseURL = getEnv("RISKDESK_SCORING_URL", cfg.Scoring.BaseURL)
	cfg.Scoring.Timeout = getEnvInt("RISKDESK_SCORING_TIMEOUT", cfg.Scoring.Timeout)
	cfg.Scoring.PhaseTimeout = getEnvInt("RISKDESK_PHASE_TIMEOUT", cfg.Scoring.PhaseTimeout)

	cfg.Decision.DefaultThreshold = getEnvFloat("RISKDESK_DEFAULT_THRESHOLD", cfg.Decision.DefaultThreshold)
	cfg.Decision.AuditReferenceThreshold = getEnvFloat("RISKDESK_AUDIT_THRESHOLD", cfg.Decision.AuditReferenceThreshold)

	cfg.Feed.Limit = getEnvInt("RISKDESK_FEED_LIMIT", cfg.Feed.Limit)
	cfg.Feed.SnapshotTTL = getEnvDuration("RISKDESK_FEED_SNAPSHOT_TTL", cfg.Feed.SnapshotTTL)

	cfg.Repository.SQLitePath = getEnv("RISKDESK_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("RISKDESK_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("RISKDESK_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("RISKDESK_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("RISKDESK_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("RISKDESK_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("RISKDESK_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	cfg.Cache.RedisAddr = getEnv("RISKDESK_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("RISKDESK_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("RISKDESK_REDIS_DB", cfg.Cache.RedisDB)

	cfg.EventBus.NATSUrl = getEnv("RISKDESK_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("RISKDESK_NATS_TOKEN", cfg.EventBus.NATSToken)

	cfg.Logging.Level = getEnv("RISKDESK_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("RISKDESK_LOG_FORMAT", cfg.Logging.Format)
	if os.Getenv("RISKDESK_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	// The standard OTel variable enables tracing on its own
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = endpoint
	}
	cfg.Tracing.Endpoint = getEnv("RISKDESK_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.ServiceName = getEnv("RISKDESK_SERVICE_NAME", cfg.Tracing.ServiceName)
	if v := os.Getenv("RISKDESK_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = v == "true"
	}
}

// Validate checks the values that would otherwise fail at request time.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("RISKDESK_PORT must be in 1..65535, got %d", cfg.Server.Port)
	}
	if cfg.Scoring.BaseURL == "" {
		return fmt.Errorf("RISKDESK_SCORING_URL is required")
	}
	if !inUnitInterval(cfg.Decision.DefaultThreshold) {
		return fmt.Errorf("RISKDESK_DEFAULT_THRESHOLD must be in (0,1), got %v", cfg.Decision.DefaultThreshold)
	}
	if !inUnitInterval(cfg.Decision.AuditReferenceThreshold) {
		return fmt.Errorf("RISKDESK_AUDIT_THRESHOLD must be in (0,1), got %v", cfg.Decision.AuditReferenceThreshold)
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing is enabled but no OTLP endpoint is set")
	}
	return nil
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func inUnitInterval(v float64) bool {
	return v > 0 && v < 1
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		slog.Warn("ignoring invalid integer", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid number", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", value)
	}
	return defaultValue
}
