package repository

// Schema definitions for the RiskDesk audit log.
// Compatible with both SQLite and PostgreSQL.

const schemaSimulationRuns = `
CREATE TABLE IF NOT EXISTS simulation_runs (
    id TEXT PRIMARY KEY,
    analyst_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    token INTEGER NOT NULL,
    status TEXT NOT NULL,
    features TEXT NOT NULL,
    threshold REAL NOT NULL,
    risk_score REAL,
    decision TEXT,
    confidence TEXT,
    headline TEXT,
    failed_phase TEXT,
    error TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulation_runs_analyst ON simulation_runs(analyst_id);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_started ON simulation_runs(analyst_id, started_at);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_session ON simulation_runs(analyst_id, session_id);
`

// schemaExplanationAudits records every on-demand explanation shown for a
// feed transaction.
const schemaExplanationAudits = `
CREATE TABLE IF NOT EXISTS explanation_audits (
    id TEXT PRIMARY KEY,
    analyst_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    decision TEXT NOT NULL,
    headline TEXT NOT NULL,
    footnote TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_explanation_audits_tx ON explanation_audits(analyst_id, tx_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSimulationRuns,
		schemaExplanationAudits,
	}
}
