// Package feed presents the scored transaction feed to analysts.
package feed

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/riskdesk/internal/decision"
	"github.com/opensource-finance/riskdesk/internal/domain"
)

// firstDisplayID is the numeric suffix of the top row.
const firstDisplayID = 1000

// Row is one presented feed line.
type Row struct {
	ID             string                `json:"id"`
	Amount         float64               `json:"amount"`
	RiskScore      float64               `json:"riskScore"`
	RiskPercent    float64               `json:"riskPercent"`
	RiskLevel      domain.RiskLevel      `json:"riskLevel"`
	Decision       domain.Decision       `json:"decision"`
	Confidence     domain.ConfidenceBand `json:"confidence"`
	DeviationIndex *float64              `json:"deviationIndex,omitempty"`
	Flagged        bool                  `json:"flagged"`

	// Transaction is the record as scored, with its display ID set.
	Transaction domain.ScoredTransaction `json:"-"`
}

// DisplayID returns the identifier shown for the row at position i.
func DisplayID(i int) string {
	return fmt.Sprintf("TX-%d", firstDisplayID+i)
}

// Present orders transactions by descending risk score and derives the
// display fields. Ties keep arrival order. The input slice is not modified.
func Present(txs []domain.ScoredTransaction) []Row {
	ordered := make([]domain.ScoredTransaction, len(txs))
	copy(ordered, txs)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RiskScore > ordered[j].RiskScore
	})

	rows := make([]Row, len(ordered))
	for i, tx := range ordered {
		tx.ID = DisplayID(i)
		rows[i] = newRow(tx)
	}
	return rows
}

func newRow(tx domain.ScoredTransaction) Row {
	return Row{
		ID:             tx.ID,
		Amount:         tx.Amount,
		RiskScore:      tx.RiskScore,
		RiskPercent:    tx.RiskScore * 100,
		RiskLevel:      decision.RiskLevel(tx.RiskScore),
		Decision:       domain.DecisionFromPrediction(tx.Prediction),
		Confidence:     domain.ParseConfidence(tx.Confidence),
		DeviationIndex: tx.DeviationIndex,
		Flagged:        tx.IsFraud(),
		Transaction:    tx,
	}
}

// transactions returns the records behind rows, in row order.
func transactions(rows []Row) []domain.ScoredTransaction {
	txs := make([]domain.ScoredTransaction, len(rows))
	for i, r := range rows {
		txs[i] = r.Transaction
	}
	return txs
}
