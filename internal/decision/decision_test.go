package decision

import (
	"errors"
	"testing"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

func TestClassify(t *testing.T) {
	t.Run("StrictInequality", func(t *testing.T) {
		cases := []struct {
			score     float64
			threshold float64
			want      domain.Decision
		}{
			{0.51, 0.5, domain.DecisionFraud},
			{0.5, 0.5, domain.DecisionLegitimate},
			{0.49, 0.5, domain.DecisionLegitimate},
			{1.0, 0.99, domain.DecisionFraud},
			{0.0, 0.01, domain.DecisionLegitimate},
			{0.3, 0.3, domain.DecisionLegitimate},
		}

		for _, c := range cases {
			if got := Classify(c.score, c.threshold); got != c.want {
				t.Errorf("Classify(%.2f, %.2f) = %s, want %s", c.score, c.threshold, got, c.want)
			}
		}
	})

	t.Run("TotalAndDeterministic", func(t *testing.T) {
		for s := 0; s <= 100; s++ {
			for th := 1; th < 100; th++ {
				score := float64(s) / 100
				threshold := float64(th) / 100

				first := Classify(score, threshold)
				second := Classify(score, threshold)
				if first != second {
					t.Fatalf("Classify(%.2f, %.2f) not deterministic", score, threshold)
				}

				wantFraud := score > threshold
				if (first == domain.DecisionFraud) != wantFraud {
					t.Fatalf("Classify(%.2f, %.2f) = %s", score, threshold, first)
				}
			}
		}
	})
}

func TestBand(t *testing.T) {
	t.Run("MatchesLegacyLabelsAtHalf", func(t *testing.T) {
		cases := []struct {
			score float64
			want  domain.ConfidenceBand
		}{
			{0.99, domain.ConfidenceHigh},
			{0.01, domain.ConfidenceHigh},
			{0.8, domain.ConfidenceMedium},
			{0.25, domain.ConfidenceMedium},
			{0.55, domain.ConfidenceLow},
			{0.5, domain.ConfidenceLow},
		}

		for _, c := range cases {
			if got := Band(c.score, 0.5); got != c.want {
				t.Errorf("Band(%.2f, 0.5) = %s, want %s", c.score, got, c.want)
			}
		}
	})

	t.Run("MonotonicInDistance", func(t *testing.T) {
		threshold := 0.35
		prev := Band(threshold, threshold)
		for i := 1; i <= 65; i++ {
			score := threshold + float64(i)/100
			b := Band(score, threshold)
			if b < prev {
				t.Fatalf("band decreased at score %.2f: %s < %s", score, b, prev)
			}
			prev = b
		}
	})
}

func TestRobustness(t *testing.T) {
	engine := NewEngine()

	t.Run("MidScore", func(t *testing.T) {
		rows := engine.Robustness(0.45)
		want := []string{domain.VerdictBlocked, domain.VerdictValidated, domain.VerdictValidated}

		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(rows))
		}
		for i, row := range rows {
			if row.Verdict != want[i] {
				t.Errorf("threshold %.2f: expected %s, got %s", row.Threshold, want[i], row.Verdict)
			}
		}
	})

	t.Run("HighScore", func(t *testing.T) {
		for _, row := range engine.Robustness(0.75) {
			if row.Verdict != domain.VerdictBlocked {
				t.Errorf("threshold %.2f: expected BLOCKED, got %s", row.Threshold, row.Verdict)
			}
		}
	})

	t.Run("ScoreOnThreshold", func(t *testing.T) {
		rows := engine.Robustness(0.5)
		if rows[1].Decision != domain.DecisionLegitimate {
			t.Errorf("score equal to 0.50 should be LEGITIMATE, got %s", rows[1].Decision)
		}
	})

	t.Run("Labels", func(t *testing.T) {
		rows := engine.Robustness(0.1)
		labels := []string{"Strict", "Standard", "Lenient"}
		for i, row := range rows {
			if row.Label != labels[i] {
				t.Errorf("expected label %s, got %s", labels[i], row.Label)
			}
		}
	})
}

func TestValidateThreshold(t *testing.T) {
	for _, v := range []float64{0, 1, -0.1, 1.5} {
		if err := ValidateThreshold(v); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("expected ErrInvalidThreshold for %v, got %v", v, err)
		}
	}
	for _, v := range []float64{0.01, 0.5, 0.99} {
		if err := ValidateThreshold(v); err != nil {
			t.Errorf("expected %v to be valid, got %v", v, err)
		}
	}
}

func TestNewEngineFromConfig(t *testing.T) {
	t.Run("FallsBackOnInvalidValues", func(t *testing.T) {
		e := NewEngineFromConfig(domain.DecisionConfig{
			DefaultThreshold:        1.2,
			AuditReferenceThreshold: 0,
		})
		if e.DefaultThreshold != StandardThreshold {
			t.Errorf("expected default threshold 0.5, got %.2f", e.DefaultThreshold)
		}
		if e.AuditThreshold != StandardThreshold {
			t.Errorf("expected audit threshold 0.5, got %.2f", e.AuditThreshold)
		}
		if len(e.References) != 3 {
			t.Errorf("expected 3 references, got %d", len(e.References))
		}
	})

	t.Run("FixedReferenceTable", func(t *testing.T) {
		e := NewEngineFromConfig(domain.DecisionConfig{
			DefaultThreshold:        0.4,
			AuditReferenceThreshold: 0.6,
		})
		if e.DefaultThreshold != 0.4 || e.AuditThreshold != 0.6 {
			t.Errorf("expected 0.40/0.60, got %.2f/%.2f", e.DefaultThreshold, e.AuditThreshold)
		}

		want := []Reference{
			{Label: "Strict", Threshold: 0.30},
			{Label: "Standard", Threshold: 0.50},
			{Label: "Lenient", Threshold: 0.70},
		}
		if len(e.References) != len(want) {
			t.Fatalf("expected %d references, got %d", len(want), len(e.References))
		}
		for i, ref := range e.References {
			if ref != want[i] {
				t.Errorf("reference %d: expected %+v, got %+v", i, want[i], ref)
			}
		}
	})
}

func TestRiskLevel(t *testing.T) {
	cases := map[float64]domain.RiskLevel{
		0.95: domain.RiskLevelHigh,
		0.7:  domain.RiskLevelElevated,
		0.31: domain.RiskLevelElevated,
		0.3:  domain.RiskLevelLow,
		0.0:  domain.RiskLevelLow,
	}
	for score, want := range cases {
		if got := RiskLevel(score); got != want {
			t.Errorf("RiskLevel(%.2f) = %s, want %s", score, got, want)
		}
	}
}
