package domain

import (
	"encoding/json"
	"fmt"
)

// Wire field names used by the scoring service for feed records.
const (
	FieldAmount         = "Amount"
	FieldRiskScore      = "risk_score"
	FieldPrediction     = "prediction"
	FieldConfidence     = "confidence"
	FieldDeviationIndex = "deviation_index"
)

// ScoredTransaction is a transaction as scored by the external model.
// It is immutable once received.
type ScoredTransaction struct {
	// ID is derived from the feed position, it is not sent by the scoring service.
	ID string `json:"id,omitempty"`

	Amount     float64 `json:"Amount"`
	RiskScore  float64 `json:"risk_score"`
	Prediction int     `json:"prediction"`

	// Optional fields
	Confidence     string   `json:"confidence,omitempty"`
	DeviationIndex *float64 `json:"deviation_index,omitempty"`

	// Remaining numeric fields of the record (V1..V28, Class, ...).
	Features map[string]float64 `json:"features,omitempty"`
}

// IsFraud reports whether the stored prediction flagged the transaction.
func (t *ScoredTransaction) IsFraud() bool {
	return t.Prediction == 1
}

// Deviation returns the deviation index, 0 when absent.
func (t *ScoredTransaction) Deviation() float64 {
	if t.DeviationIndex == nil {
		return 0
	}
	return *t.DeviationIndex
}

// Record rebuilds the flat record as the scoring service sent it.
// Used as the explain payload for feed transactions.
func (t *ScoredTransaction) Record() map[string]any {
	rec := make(map[string]any, len(t.Features)+5)
	for k, v := range t.Features {
		rec[k] = v
	}
	rec[FieldAmount] = t.Amount
	rec[FieldRiskScore] = t.RiskScore
	rec[FieldPrediction] = t.Prediction
	if t.Confidence != "" {
		rec[FieldConfidence] = t.Confidence
	}
	if t.DeviationIndex != nil {
		rec[FieldDeviationIndex] = *t.DeviationIndex
	}
	return rec
}

// UnmarshalJSON decodes a flat feed record. Known fields are mapped onto the
// struct and every other numeric field is collected into Features.
func (t *ScoredTransaction) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ScoredTransaction{Features: make(map[string]float64)}

	for key, value := range raw {
		switch key {
		case "id":
			_ = json.Unmarshal(value, &out.ID)
		case FieldConfidence:
			var s *string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("confidence: %w", err)
			}
			if s != nil {
				out.Confidence = *s
			}
		case FieldDeviationIndex:
			var f *float64
			if err := json.Unmarshal(value, &f); err != nil {
				return fmt.Errorf("deviation_index: %w", err)
			}
			out.DeviationIndex = f
		case FieldAmount:
			if err := json.Unmarshal(value, &out.Amount); err != nil {
				return fmt.Errorf("Amount: %w", err)
			}
		case FieldRiskScore:
			if err := json.Unmarshal(value, &out.RiskScore); err != nil {
				return fmt.Errorf("risk_score: %w", err)
			}
		case FieldPrediction:
			// pandas may emit 1 or 1.0
			var f float64
			if err := json.Unmarshal(value, &f); err != nil {
				return fmt.Errorf("prediction: %w", err)
			}
			out.Prediction = int(f)
		case "features":
			var nested map[string]float64
			if err := json.Unmarshal(value, &nested); err == nil {
				for k, v := range nested {
					out.Features[k] = v
				}
			}
		default:
			var f float64
			if err := json.Unmarshal(value, &f); err == nil {
				out.Features[key] = f
			}
		}
	}

	*t = out
	return nil
}
