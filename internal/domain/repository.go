// Package domain defines the core interfaces and types for RiskDesk.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the analyst audit log.
// All methods require analystID for strict per-analyst isolation.
type Repository interface {
	// Simulation runs
	SaveSimulationRun(ctx context.Context, analystID string, run *SimulationRun) error
	GetSimulationRun(ctx context.Context, analystID string, runID string) (*SimulationRun, error)
	ListSimulationRuns(ctx context.Context, analystID string, limit int) ([]*SimulationRun, error)

	// On-demand explanations for feed transactions
	SaveExplanationAudit(ctx context.Context, analystID string, audit *ExplanationAudit) error
	ListExplanationAudits(ctx context.Context, analystID string, txID string) ([]*ExplanationAudit, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
