package domain

import "time"

// Config holds the complete RiskDesk configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	// Scoring service (the external model + explainer)
	Scoring ScoringConfig `json:"scoring"`

	// Decision policy
	Decision DecisionConfig `json:"decision"`

	// Feed settings
	Feed FeedConfig `json:"feed"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ScoringConfig holds the scoring service client settings.
type ScoringConfig struct {
	BaseURL string `json:"baseUrl"`

	// Timeout bounds every HTTP call (seconds).
	Timeout int `json:"timeout"`

	// PhaseTimeout bounds each simulation phase (seconds).
	PhaseTimeout int `json:"phaseTimeout"`
}

// DecisionConfig holds the threshold policy.
type DecisionConfig struct {
	// DefaultThreshold is the threshold a new session starts with.
	DefaultThreshold float64 `json:"defaultThreshold"`

	// AuditReferenceThreshold is the production threshold reported for
	// historical transactions.
	AuditReferenceThreshold float64 `json:"auditReferenceThreshold"`
}

// FeedConfig holds feed fetch settings.
type FeedConfig struct {
	Limit       int           `json:"limit"`
	SnapshotTTL time.Duration `json:"snapshotTtl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"` // OTLP gRPC host:port
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8090,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			BaseURL:      "http://localhost:8000",
			Timeout:      30,
			PhaseTimeout: 20,
		},
		Decision: DecisionConfig{
			DefaultThreshold:        0.5,
			AuditReferenceThreshold: 0.5,
		},
		Feed: FeedConfig{
			Limit:       50,
			SnapshotTTL: 30 * time.Minute,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./riskdesk.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "riskdesk",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "riskdesk",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	return cfg
}
