package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveScoringCall(t *testing.T) {
	okBefore := counterValue(t, ScoringCallsTotal.WithLabelValues("/predict", "ok"))
	errBefore := counterValue(t, ScoringCallsTotal.WithLabelValues("/predict", "error"))

	ObserveScoringCall("/predict", nil, 10*time.Millisecond)
	ObserveScoringCall("/predict", errors.New("boom"), 10*time.Millisecond)

	if got := counterValue(t, ScoringCallsTotal.WithLabelValues("/predict", "ok")); got != okBefore+1 {
		t.Errorf("expected ok counter %.0f, got %.0f", okBefore+1, got)
	}
	if got := counterValue(t, ScoringCallsTotal.WithLabelValues("/predict", "error")); got != errBefore+1 {
		t.Errorf("expected error counter %.0f, got %.0f", errBefore+1, got)
	}
}

func TestRecordSimulation(t *testing.T) {
	before := counterValue(t, SimulationsTotal.WithLabelValues("FAILED", "explain"))
	RecordSimulation("FAILED", "explain")
	if got := counterValue(t, SimulationsTotal.WithLabelValues("FAILED", "explain")); got != before+1 {
		t.Errorf("expected %.0f, got %.0f", before+1, got)
	}
}

func TestHandler(t *testing.T) {
	ObserveScoringCall("/health", nil, time.Millisecond)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "riskdesk_scoring_calls_total") {
		t.Error("expected scoring counter in scrape output")
	}
}
