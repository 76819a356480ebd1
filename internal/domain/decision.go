package domain

import "strings"

// Decision is the binary outcome of classifying a risk score.
type Decision string

const (
	DecisionFraud      Decision = "FRAUD"
	DecisionLegitimate Decision = "LEGITIMATE"
)

// Verdict labels shown in audit and robustness views.
const (
	VerdictBlocked   = "BLOCKED"
	VerdictValidated = "VALIDATED"
)

// DecisionFromPrediction maps the scoring service's 0|1 prediction.
func DecisionFromPrediction(prediction int) Decision {
	if prediction == 1 {
		return DecisionFraud
	}
	return DecisionLegitimate
}

// Verdict returns BLOCKED for fraud and VALIDATED otherwise.
func (d Decision) Verdict() string {
	if d == DecisionFraud {
		return VerdictBlocked
	}
	return VerdictValidated
}

// Prediction returns the 0|1 wire value.
func (d Decision) Prediction() int {
	if d == DecisionFraud {
		return 1
	}
	return 0
}

// ConfidenceBand is a qualitative certainty label, ordered Low < Medium < High.
type ConfidenceBand int

const (
	ConfidenceLow ConfidenceBand = iota
	ConfidenceMedium
	ConfidenceHigh
)

// String returns the band name.
func (b ConfidenceBand) String() string {
	switch b {
	case ConfidenceLow:
		return "Low"
	case ConfidenceHigh:
		return "High"
	default:
		return "Medium"
	}
}

// MarshalText encodes the band by name.
func (b ConfidenceBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts any label ParseConfidence understands.
func (b *ConfidenceBand) UnmarshalText(text []byte) error {
	*b = ParseConfidence(string(text))
	return nil
}

// ParseConfidence maps a label from the scoring service to a band.
// The service speaks French ("Faible", "Moyenne", "Élevée"); English names are
// accepted too. Empty or unknown labels default to Medium.
func ParseConfidence(label string) ConfidenceBand {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "faible", "low":
		return ConfidenceLow
	case "élevée", "elevee", "high":
		return ConfidenceHigh
	default:
		return ConfidenceMedium
	}
}

// RiskLevel is the feed progress-bar tier for a score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelElevated RiskLevel = "elevated"
	RiskLevelHigh     RiskLevel = "high"
)

// RobustnessRow is one line of the multi-threshold comparison.
type RobustnessRow struct {
	Label     string   `json:"label"`
	Threshold float64  `json:"threshold"`
	Decision  Decision `json:"decision"`
	Verdict   string   `json:"verdict"`
}
