package domain

import (
	"context"
)

// ScoringService is the contract RiskDesk relies on from the external
// scoring and explanation backend.
type ScoringService interface {
	// Transactions returns up to limit scored feed records.
	Transactions(ctx context.Context, limit int) ([]ScoredTransaction, error)

	// Metrics returns aggregate model-health fields.
	Metrics(ctx context.Context) (ModelMetrics, error)

	// Predict scores a hypothetical transaction under a threshold.
	Predict(ctx context.Context, req SimulationRequest) (*SimulationResult, error)

	// Explain returns the feature ranking and explanation text.
	Explain(ctx context.Context, req ExplainRequest) (*Explanation, error)

	// Health checks the scoring service.
	Health(ctx context.Context) error
}
