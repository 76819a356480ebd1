// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// defaultListLimit caps run listings when no limit is given.
const defaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSimulationRun stores a run, replacing any earlier record with the same ID.
func (r *SQLRepository) SaveSimulationRun(ctx context.Context, analystID string, run *domain.SimulationRun) error {
	if analystID == "" {
		return fmt.Errorf("%w: analystID is required", ErrInvalidInput)
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}

	features, err := json.Marshal(run.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	var riskScore sql.NullFloat64
	if run.RiskScore != nil {
		riskScore = sql.NullFloat64{Float64: *run.RiskScore, Valid: true}
	}

	query := `
		INSERT INTO simulation_runs (
			id, analyst_id, session_id, token, status, features, threshold,
			risk_score, decision, confidence, headline, failed_phase, error,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			risk_score = excluded.risk_score,
			decision = excluded.decision,
			confidence = excluded.confidence,
			headline = excluded.headline,
			failed_phase = excluded.failed_phase,
			error = excluded.error,
			finished_at = excluded.finished_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, analystID, run.SessionID, int64(run.Token), string(run.Status),
		string(features), run.Threshold,
		riskScore, string(run.Decision), run.Confidence, run.Headline,
		run.FailedPhase, run.Error,
		run.StartedAt, run.FinishedAt,
	)
	return err
}

const selectSimulationRun = `
	SELECT id, analyst_id, session_id, token, status, features, threshold,
		   risk_score, decision, confidence, headline, failed_phase, error,
		   started_at, finished_at
	FROM simulation_runs
`

// GetSimulationRun retrieves a run by ID with analyst isolation.
func (r *SQLRepository) GetSimulationRun(ctx context.Context, analystID string, runID string) (*domain.SimulationRun, error) {
	if analystID == "" {
		return nil, fmt.Errorf("%w: analystID is required", ErrInvalidInput)
	}

	query := selectSimulationRun + ` WHERE analyst_id = ? AND id = ?`

	run, err := scanSimulationRun(r.db.QueryRowContext(ctx, r.rebind(query), analystID, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListSimulationRuns returns the analyst's most recent runs, newest first.
func (r *SQLRepository) ListSimulationRuns(ctx context.Context, analystID string, limit int) ([]*domain.SimulationRun, error) {
	if analystID == "" {
		return nil, fmt.Errorf("%w: analystID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := selectSimulationRun + `
		WHERE analyst_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), analystID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.SimulationRun
	for rows.Next() {
		run, err := scanSimulationRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// SaveExplanationAudit stores an explanation audit with analyst isolation.
func (r *SQLRepository) SaveExplanationAudit(ctx context.Context, analystID string, audit *domain.ExplanationAudit) error {
	if analystID == "" {
		return fmt.Errorf("%w: analystID is required", ErrInvalidInput)
	}
	if audit == nil || audit.ID == "" {
		return fmt.Errorf("%w: audit ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO explanation_audits (
			id, analyst_id, tx_id, risk_score, decision, headline, footnote, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		audit.ID, analystID, audit.TxID, audit.RiskScore, string(audit.Decision),
		audit.Headline, audit.Footnote, audit.CreatedAt,
	)
	return err
}

// ListExplanationAudits returns the explanations shown for a transaction,
// oldest first.
func (r *SQLRepository) ListExplanationAudits(ctx context.Context, analystID string, txID string) ([]*domain.ExplanationAudit, error) {
	if analystID == "" {
		return nil, fmt.Errorf("%w: analystID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, analyst_id, tx_id, risk_score, decision, headline, footnote, created_at
		FROM explanation_audits
		WHERE analyst_id = ? AND tx_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), analystID, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []*domain.ExplanationAudit
	for rows.Next() {
		var a domain.ExplanationAudit
		var decision string
		var footnote sql.NullString

		if err := rows.Scan(
			&a.ID, &a.AnalystID, &a.TxID, &a.RiskScore, &decision,
			&a.Headline, &footnote, &a.CreatedAt,
		); err != nil {
			return nil, err
		}

		a.Decision = domain.Decision(decision)
		a.Footnote = footnote.String
		audits = append(audits, &a)
	}

	return audits, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSimulationRun(row rowScanner) (*domain.SimulationRun, error) {
	var run domain.SimulationRun
	var token int64
	var status, features string
	var riskScore sql.NullFloat64
	var decision, confidence, headline, failedPhase, errText sql.NullString

	if err := row.Scan(
		&run.ID, &run.AnalystID, &run.SessionID, &token, &status, &features, &run.Threshold,
		&riskScore, &decision, &confidence, &headline, &failedPhase, &errText,
		&run.StartedAt, &run.FinishedAt,
	); err != nil {
		return nil, err
	}

	run.Token = uint64(token)
	run.Status = domain.SimulationState(status)
	if riskScore.Valid {
		score := riskScore.Float64
		run.RiskScore = &score
	}
	run.Decision = domain.Decision(decision.String)
	run.Confidence = confidence.String
	run.Headline = headline.String
	run.FailedPhase = failedPhase.String
	run.Error = errText.String

	if err := json.Unmarshal([]byte(features), &run.Features); err != nil {
		return nil, fmt.Errorf("failed to parse features for run %s: %w", run.ID, err)
	}

	return &run, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
