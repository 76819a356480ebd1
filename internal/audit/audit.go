// Package audit builds the decision audit trail for a feed transaction.
package audit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/riskdesk/internal/cache"
	"github.com/opensource-finance/riskdesk/internal/decision"
	"github.com/opensource-finance/riskdesk/internal/domain"
	"github.com/opensource-finance/riskdesk/internal/explain"
	"github.com/opensource-finance/riskdesk/internal/feed"
)

// SignificantDeviation is the deviation index above which a transaction is
// reported as atypical.
const SignificantDeviation = 2.0

// Deviation labels.
const (
	DeviationSignificant = "significant atypical pattern"
	DeviationNormal      = "within normal bounds"
)

// View is the audit trail of one transaction.
type View struct {
	TxID      string  `json:"txId"`
	Amount    float64 `json:"amount"`
	RiskScore float64 `json:"riskScore"`

	// AppliedThreshold is the production threshold in force when the
	// transaction was scored, not the analyst's simulator threshold.
	AppliedThreshold  float64         `json:"appliedThreshold"`
	RecordedDecision  domain.Decision `json:"recordedDecision"`
	RecordedVerdict   string          `json:"recordedVerdict"`
	ReferenceDecision domain.Decision `json:"referenceDecision"`
	Consistent        bool            `json:"consistent"`

	Confidence domain.ConfidenceBand `json:"confidence"`

	DeviationIndex float64 `json:"deviationIndex"`
	Significant    bool    `json:"significant"`
	DeviationLabel string  `json:"deviationLabel"`

	// Score gauge, both in percent of a [0,100] axis.
	PointerPercent         float64 `json:"pointerPercent"`
	ThresholdMarkerPercent float64 `json:"thresholdMarkerPercent"`
}

// Builder assembles audit views and fetches explanations on demand.
type Builder struct {
	engine  *decision.Engine
	scoring domain.ScoringService
	cache   domain.Cache
	repo    domain.Repository
	ttl     time.Duration
}

// NewBuilder creates an audit builder. repo may be nil, in which case
// explanations are not recorded.
func NewBuilder(engine *decision.Engine, scoring domain.ScoringService, c domain.Cache, repo domain.Repository, ttl time.Duration) *Builder {
	if engine == nil {
		engine = decision.NewEngine()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Builder{
		engine:  engine,
		scoring: scoring,
		cache:   c,
		repo:    repo,
		ttl:     ttl,
	}
}

// Build computes the audit view of row against the reference threshold.
func (b *Builder) Build(row feed.Row) View {
	return BuildAt(row, b.engine.AuditThreshold)
}

// BuildAt computes the audit view of row against reference.
func BuildAt(row feed.Row, reference float64) View {
	recorded := domain.DecisionFromPrediction(row.Transaction.Prediction)
	referenceDecision := decision.Classify(row.RiskScore, reference)
	dev := row.Transaction.Deviation()

	v := View{
		TxID:                   row.ID,
		Amount:                 row.Amount,
		RiskScore:              row.RiskScore,
		AppliedThreshold:       reference,
		RecordedDecision:       recorded,
		RecordedVerdict:        recorded.Verdict(),
		ReferenceDecision:      referenceDecision,
		Consistent:             recorded == referenceDecision,
		Confidence:             row.Confidence,
		DeviationIndex:         dev,
		Significant:            dev > SignificantDeviation,
		DeviationLabel:         DeviationNormal,
		PointerPercent:         clampPercent(row.RiskScore * 100),
		ThresholdMarkerPercent: clampPercent(reference * 100),
	}
	if v.Significant {
		v.DeviationLabel = DeviationSignificant
	}
	return v
}

// Explain fetches the explanation of a feed transaction. Only the explain
// call is issued since the score and prediction are already known. Results
// are cached per analyst and transaction.
func (b *Builder) Explain(ctx context.Context, analystID string, row feed.Row) (*domain.RenderedExplanation, error) {
	key := explanationKey(row)

	var cached domain.RenderedExplanation
	if found, err := cache.GetJSON(ctx, b.cache, analystID, key, &cached); err == nil && found {
		return &cached, nil
	}

	exp, err := b.scoring.Explain(ctx, domain.ExplainRequest{
		Data:       row.Transaction.Record(),
		RiskScore:  row.RiskScore,
		Prediction: row.Transaction.Prediction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to explain %s: %w", row.ID, err)
	}

	rendered := explain.Render(exp)

	if err := cache.SetJSON(ctx, b.cache, analystID, key, rendered, b.ttl); err != nil {
		slog.Warn("failed to cache explanation",
			"analyst_id", analystID,
			"tx_id", row.ID,
			"error", err,
		)
	}

	b.record(ctx, analystID, row, rendered)

	return &rendered, nil
}

func (b *Builder) record(ctx context.Context, analystID string, row feed.Row, rendered domain.RenderedExplanation) {
	if b.repo == nil {
		return
	}

	audit := &domain.ExplanationAudit{
		ID:        uuid.New().String(),
		AnalystID: analystID,
		TxID:      row.ID,
		RiskScore: row.RiskScore,
		Decision:  domain.DecisionFromPrediction(row.Transaction.Prediction),
		Headline:  rendered.Headline,
		Footnote:  rendered.Footnote,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.repo.SaveExplanationAudit(ctx, analystID, audit); err != nil {
		slog.Error("failed to save explanation audit",
			"analyst_id", analystID,
			"tx_id", row.ID,
			"error", err,
		)
	}
}

// explanationKey identifies the record itself, not only its display ID:
// the feed sample changes on every refresh, so TX-n may name another record.
// fmt prints map keys sorted, so equal records hash alike.
func explanationKey(row feed.Row) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%v", row.Transaction.Record())))
	return fmt.Sprintf("%s%s:%x", domain.CacheKeyExplanation, row.ID, h[:16])
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
