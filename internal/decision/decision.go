// Package decision implements the threshold decision engine.
// It turns a risk score and a threshold into a decision and confidence band.
package decision

import (
	"errors"
	"fmt"
	"math"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

// ErrInvalidThreshold is returned for thresholds outside (0,1).
var ErrInvalidThreshold = errors.New("threshold must be in (0,1)")

// Reference thresholds used by the robustness table.
const (
	StrictThreshold   = 0.30
	StandardThreshold = 0.50
	LenientThreshold  = 0.70
)

// Band boundaries on the normalized distance |score-threshold|*2.
const (
	highBandDistance   = 0.8
	mediumBandDistance = 0.4
)

// Progress-bar tiers for the feed.
const (
	highRiskScore     = 0.7
	elevatedRiskScore = 0.3
)

// Classify returns FRAUD iff score > threshold. A score equal to the
// threshold is LEGITIMATE.
func Classify(score, threshold float64) domain.Decision {
	if score > threshold {
		return domain.DecisionFraud
	}
	return domain.DecisionLegitimate
}

// Band derives a confidence band from the distance between score and
// threshold. Farther from the threshold means more confident.
func Band(score, threshold float64) domain.ConfidenceBand {
	dist := math.Abs(score-threshold) * 2
	switch {
	case dist > highBandDistance:
		return domain.ConfidenceHigh
	case dist > mediumBandDistance:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// RiskLevel maps a score onto the feed progress-bar tier.
func RiskLevel(score float64) domain.RiskLevel {
	switch {
	case score > highRiskScore:
		return domain.RiskLevelHigh
	case score > elevatedRiskScore:
		return domain.RiskLevelElevated
	default:
		return domain.RiskLevelLow
	}
}

// ValidateThreshold checks that t is in the open interval (0,1).
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t <= 0 || t >= 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, t)
	}
	return nil
}

// Reference is a named threshold in the robustness table.
type Reference struct {
	Label     string
	Threshold float64
}

// Engine holds the threshold policy.
type Engine struct {
	// DefaultThreshold is the starting threshold for new sessions
	DefaultThreshold float64

	// AuditThreshold is the production threshold for historical audits
	AuditThreshold float64

	// References are the robustness table thresholds, in display order
	References []Reference
}

// NewEngine creates an engine with the standard policy.
func NewEngine() *Engine {
	return &Engine{
		DefaultThreshold: StandardThreshold,
		AuditThreshold:   StandardThreshold,
		References:       DefaultReferences(),
	}
}

// NewEngineFromConfig builds an engine from configuration, falling back to
// the standard policy for missing or invalid values. The robustness table is
// not configurable.
func NewEngineFromConfig(cfg domain.DecisionConfig) *Engine {
	e := NewEngine()
	if ValidateThreshold(cfg.DefaultThreshold) == nil {
		e.DefaultThreshold = cfg.DefaultThreshold
	}
	if ValidateThreshold(cfg.AuditReferenceThreshold) == nil {
		e.AuditThreshold = cfg.AuditReferenceThreshold
	}
	return e
}

// DefaultReferences returns the Strict/Standard/Lenient thresholds.
func DefaultReferences() []Reference {
	return []Reference{
		{Label: "Strict", Threshold: StrictThreshold},
		{Label: "Standard", Threshold: StandardThreshold},
		{Label: "Lenient", Threshold: LenientThreshold},
	}
}

// Robustness re-applies Classify at every reference threshold.
// It needs nothing but the already returned score.
func (e *Engine) Robustness(score float64) []domain.RobustnessRow {
	rows := make([]domain.RobustnessRow, 0, len(e.References))
	for _, ref := range e.References {
		d := Classify(score, ref.Threshold)
		rows = append(rows, domain.RobustnessRow{
			Label:     ref.Label,
			Threshold: ref.Threshold,
			Decision:  d,
			Verdict:   d.Verdict(),
		})
	}
	return rows
}

// Assessment is a decision with its confidence at a given threshold.
type Assessment struct {
	Score     float64               `json:"score"`
	Threshold float64               `json:"threshold"`
	Decision  domain.Decision       `json:"decision"`
	Verdict   string                `json:"verdict"`
	Band      domain.ConfidenceBand `json:"band"`
}

// Assess classifies score at threshold and derives the band.
func (e *Engine) Assess(score, threshold float64) Assessment {
	d := Classify(score, threshold)
	return Assessment{
		Score:     score,
		Threshold: threshold,
		Decision:  d,
		Verdict:   d.Verdict(),
		Band:      Band(score, threshold),
	}
}
