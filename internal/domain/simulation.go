package domain

import (
	"time"
)

// SimulationState is the lifecycle state of a session's simulation.
type SimulationState string

const (
	StateIdle      SimulationState = "IDLE"
	StateRunning   SimulationState = "RUNNING"
	StateSucceeded SimulationState = "SUCCEEDED"
	StateFailed    SimulationState = "FAILED"
)

// Simulation phases.
const (
	PhaseScore   = "score"
	PhaseExplain = "explain"
)

// SimulationRequest is a hypothetical transaction under a threshold.
// Features include the amount under the "Amount" key.
type SimulationRequest struct {
	Features  map[string]float64 `json:"data"`
	Threshold float64            `json:"threshold"`
}

// SimulationResult is the scoring service's answer to /predict.
type SimulationResult struct {
	RiskScore      float64  `json:"risk_score"`
	Prediction     int      `json:"prediction"`
	Confidence     string   `json:"confidence"`
	Threshold      float64  `json:"threshold,omitempty"`
	DeviationIndex *float64 `json:"deviation_index,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// ExplainRequest is the /explain payload. Data is either the simulation
// features or a feed record.
type ExplainRequest struct {
	Data       any     `json:"data"`
	RiskScore  float64 `json:"risk_score"`
	Prediction int     `json:"prediction"`
}

// FeatureImportance is one entry of the model's feature ranking.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Explanation is the scoring service's answer to /explain.
type Explanation struct {
	TopFeatures []FeatureImportance `json:"top_features"`
	Text        string              `json:"explanation"`
}

// RenderedExplanation is an explanation split for display.
type RenderedExplanation struct {
	Headline string              `json:"headline"`
	Footnote string              `json:"footnote"`
	Features []FeatureImportance `json:"features"`
}

// ModelMetrics holds aggregate model-health fields from /metrics.
type ModelMetrics map[string]any

// SimulationRun is the persisted audit record of one simulation.
type SimulationRun struct {
	ID          string             `json:"id"`
	AnalystID   string             `json:"analystId"`
	SessionID   string             `json:"sessionId"`
	Token       uint64             `json:"token"`
	Status      SimulationState    `json:"status"`
	Features    map[string]float64 `json:"features"`
	Threshold   float64            `json:"threshold"`
	RiskScore   *float64           `json:"riskScore,omitempty"`
	Decision    Decision           `json:"decision,omitempty"`
	Confidence  string             `json:"confidence,omitempty"`
	Headline    string             `json:"headline,omitempty"`
	FailedPhase string             `json:"failedPhase,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt"`
}

// ExplanationAudit records an on-demand explanation for a feed transaction.
type ExplanationAudit struct {
	ID        string    `json:"id"`
	AnalystID string    `json:"analystId"`
	TxID      string    `json:"txId"`
	RiskScore float64   `json:"riskScore"`
	Decision  Decision  `json:"decision"`
	Headline  string    `json:"headline"`
	Footnote  string    `json:"footnote"`
	CreatedAt time.Time `json:"createdAt"`
}
