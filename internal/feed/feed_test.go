package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/riskdesk/internal/cache"
	"github.com/opensource-finance/riskdesk/internal/domain"
)

// stubScoring serves a fixed feed, or fails when err is set.
type stubScoring struct {
	txs     []domain.ScoredTransaction
	metrics domain.ModelMetrics
	err     error
	calls   int
}

func (s *stubScoring) Transactions(ctx context.Context, limit int) ([]domain.ScoredTransaction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && len(s.txs) > limit {
		return s.txs[:limit], nil
	}
	return s.txs, nil
}

func (s *stubScoring) Metrics(ctx context.Context) (domain.ModelMetrics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.metrics, nil
}

func (s *stubScoring) Predict(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error) {
	return nil, errors.New("not used")
}

func (s *stubScoring) Explain(ctx context.Context, req domain.ExplainRequest) (*domain.Explanation, error) {
	return nil, errors.New("not used")
}

func (s *stubScoring) Health(ctx context.Context) error {
	return s.err
}

func floatPtr(f float64) *float64 { return &f }

func sampleFeed() []domain.ScoredTransaction {
	return []domain.ScoredTransaction{
		{Amount: 10, RiskScore: 0.2, Prediction: 0, Confidence: "Élevée"},
		{Amount: 20, RiskScore: 0.9, Prediction: 1, DeviationIndex: floatPtr(3.1)},
		{Amount: 30, RiskScore: 0.5, Prediction: 0, Confidence: "Faible"},
		{Amount: 40, RiskScore: 0.9, Prediction: 1},
	}
}

func TestPresent(t *testing.T) {
	input := sampleFeed()
	rows := Present(input)

	t.Run("DescendingStableOrder", func(t *testing.T) {
		wantAmounts := []float64{20, 40, 30, 10}
		for i, row := range rows {
			if row.Amount != wantAmounts[i] {
				t.Errorf("row %d: expected amount %.0f, got %.0f", i, wantAmounts[i], row.Amount)
			}
		}
	})

	t.Run("SequentialIDs", func(t *testing.T) {
		want := []string{"TX-1000", "TX-1001", "TX-1002", "TX-1003"}
		for i, row := range rows {
			if row.ID != want[i] {
				t.Errorf("row %d: expected %s, got %s", i, want[i], row.ID)
			}
			if row.Transaction.ID != want[i] {
				t.Errorf("row %d: record ID not set, got %q", i, row.Transaction.ID)
			}
		}
	})

	t.Run("DisplayFields", func(t *testing.T) {
		top := rows[0]
		if top.RiskPercent != 90 {
			t.Errorf("expected 90%%, got %.1f", top.RiskPercent)
		}
		if top.RiskLevel != domain.RiskLevelHigh {
			t.Errorf("expected high risk level, got %s", top.RiskLevel)
		}
		if top.Decision != domain.DecisionFraud || !top.Flagged {
			t.Errorf("expected flagged FRAUD, got %s flagged=%v", top.Decision, top.Flagged)
		}
		if top.Confidence != domain.ConfidenceMedium {
			t.Errorf("missing confidence should default to Medium, got %s", top.Confidence)
		}

		if rows[2].Confidence != domain.ConfidenceLow {
			t.Errorf("expected Low confidence, got %s", rows[2].Confidence)
		}
		if rows[2].RiskLevel != domain.RiskLevelElevated {
			t.Errorf("expected elevated risk level, got %s", rows[2].RiskLevel)
		}
		if rows[3].Confidence != domain.ConfidenceHigh {
			t.Errorf("expected High confidence, got %s", rows[3].Confidence)
		}
	})

	t.Run("StoredPredictionWins", func(t *testing.T) {
		// Score above 0.5 but stored as legitimate: the chip follows the record.
		rows := Present([]domain.ScoredTransaction{{RiskScore: 0.8, Prediction: 0}})
		if rows[0].Decision != domain.DecisionLegitimate || rows[0].Flagged {
			t.Errorf("expected stored LEGITIMATE, got %s", rows[0].Decision)
		}
	})

	t.Run("InputUntouched", func(t *testing.T) {
		if input[0].Amount != 10 || input[0].ID != "" {
			t.Errorf("input slice was modified: %+v", input[0])
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if rows := Present(nil); len(rows) != 0 {
			t.Errorf("expected no rows, got %d", len(rows))
		}
	})
}

func TestFilter(t *testing.T) {
	rows := Present(sampleFeed())

	t.Run("EmptyKeepsAll", func(t *testing.T) {
		f, err := CompileFilter("")
		if err != nil {
			t.Fatalf("CompileFilter failed: %v", err)
		}
		if got := f.Apply(rows); len(got) != len(rows) {
			t.Errorf("expected %d rows, got %d", len(rows), len(got))
		}
	})

	t.Run("KeepsOrderAndIDs", func(t *testing.T) {
		f, err := CompileFilter("risk_score < 0.95 && amount >= 30")
		if err != nil {
			t.Fatalf("CompileFilter failed: %v", err)
		}
		got := f.Apply(rows)
		if len(got) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(got))
		}
		if got[0].ID != "TX-1001" || got[1].ID != "TX-1002" {
			t.Errorf("unexpected IDs: %s, %s", got[0].ID, got[1].ID)
		}
	})

	t.Run("ConfidenceAndDeviation", func(t *testing.T) {
		f, err := CompileFilter(`confidence == "Medium" && deviation_index > 2.0`)
		if err != nil {
			t.Fatalf("CompileFilter failed: %v", err)
		}
		got := f.Apply(rows)
		if len(got) != 1 || got[0].ID != "TX-1000" {
			t.Errorf("expected only TX-1000, got %+v", got)
		}
	})

	t.Run("PredictionIsInt", func(t *testing.T) {
		f, err := CompileFilter("prediction == 1")
		if err != nil {
			t.Fatalf("CompileFilter failed: %v", err)
		}
		if got := f.Apply(rows); len(got) != 2 {
			t.Errorf("expected 2 flagged rows, got %d", len(got))
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, expr := range []string{"risk_score >", "amount + 1", "unknown_field == 1"} {
			if _, err := CompileFilter(expr); !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("%q: expected ErrInvalidFilter, got %v", expr, err)
			}
		}
	})
}

func TestServiceLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LiveFetchStoresSnapshot", func(t *testing.T) {
		scoring := &stubScoring{txs: sampleFeed()}
		svc := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{Limit: 3})

		page, err := svc.Load(ctx, "analyst-1", "")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if page.Source != SourceLive {
			t.Errorf("expected live source, got %s", page.Source)
		}
		if page.Total != 3 || len(page.Rows) != 3 {
			t.Errorf("expected limit of 3 rows, got %d", len(page.Rows))
		}
	})

	t.Run("FallsBackToSnapshot", func(t *testing.T) {
		scoring := &stubScoring{txs: sampleFeed()}
		svc := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{})

		if _, err := svc.Load(ctx, "analyst-1", ""); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		scoring.err = errors.New("connection refused")
		page, err := svc.Load(ctx, "analyst-1", "")
		if err != nil {
			t.Fatalf("fallback load should not fail: %v", err)
		}
		if page.Source != SourceSnapshot {
			t.Errorf("expected snapshot source, got %s", page.Source)
		}
		if len(page.Rows) != 4 || page.Rows[0].ID != "TX-1000" || page.Rows[0].Amount != 20 {
			t.Errorf("snapshot rows not preserved: %+v", page.Rows)
		}
		if page.Rows[0].DeviationIndex == nil || *page.Rows[0].DeviationIndex != 3.1 {
			t.Error("expected deviation index to survive the snapshot")
		}
	})

	t.Run("EmptyWithoutSnapshot", func(t *testing.T) {
		scoring := &stubScoring{err: errors.New("boom")}
		svc := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{})

		page, err := svc.Load(ctx, "analyst-2", "")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if page.Source != SourceEmpty || len(page.Rows) != 0 {
			t.Errorf("expected empty feed, got %s with %d rows", page.Source, len(page.Rows))
		}
		if page.Rows == nil {
			t.Error("expected non-nil rows for JSON encoding")
		}
	})

	t.Run("SnapshotsPerAnalyst", func(t *testing.T) {
		scoring := &stubScoring{txs: sampleFeed()}
		svc := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{})

		_, _ = svc.Load(ctx, "analyst-a", "")
		scoring.err = errors.New("down")

		page, _ := svc.Load(ctx, "analyst-b", "")
		if page.Source != SourceEmpty {
			t.Errorf("analyst-b must not see analyst-a's snapshot, got %s", page.Source)
		}
	})

	t.Run("InvalidFilter", func(t *testing.T) {
		scoring := &stubScoring{txs: sampleFeed()}
		svc := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{})

		if _, err := svc.Load(ctx, "analyst-1", "amount >"); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("expected ErrInvalidFilter, got %v", err)
		}
		if scoring.calls != 0 {
			t.Error("invalid filter should not reach the scoring service")
		}
	})
}

func TestServiceLookup(t *testing.T) {
	ctx := context.Background()
	scoring := &stubScoring{txs: sampleFeed()}
	svc := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{})

	t.Run("LoadsWhenNoSnapshot", func(t *testing.T) {
		row, err := svc.Lookup(ctx, "analyst-1", "TX-1002")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if row.Amount != 30 {
			t.Errorf("expected amount 30, got %.0f", row.Amount)
		}
	})

	t.Run("UsesSnapshot", func(t *testing.T) {
		calls := scoring.calls
		if _, err := svc.Lookup(ctx, "analyst-1", "TX-1000"); err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if scoring.calls != calls {
			t.Error("expected lookup to be served from the snapshot")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := svc.Lookup(ctx, "analyst-1", "TX-9999"); !errors.Is(err, ErrTransactionNotFound) {
			t.Errorf("expected ErrTransactionNotFound, got %v", err)
		}
	})
}

func TestServiceModelMetrics(t *testing.T) {
	ctx := context.Background()
	scoring := &stubScoring{metrics: domain.ModelMetrics{"recall": 0.91}}
	svc := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{})

	if m := svc.ModelMetrics(ctx); m["recall"] != 0.91 {
		t.Fatalf("expected live metrics, got %v", m)
	}

	scoring.err = errors.New("down")
	if m := svc.ModelMetrics(ctx); m["recall"] != 0.91 {
		t.Errorf("expected cached metrics, got %v", m)
	}

	empty := NewService(scoring, cache.NewLRUCache(100), domain.FeedConfig{})
	if m := empty.ModelMetrics(ctx); m == nil || len(m) != 0 {
		t.Errorf("expected empty metrics, got %v", m)
	}
}
