//go:build integration
// +build integration

// Package integration provides end-to-end tests for RiskDesk.
//
// These tests run against a live RiskDesk instance wired to a live scoring
// service:
//
//	Feed → Audit → Session → Simulation (score, then explain)
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The scoring model is not deterministic from here, so assertions check the
// contract (ordering, classification against the returned score, outcome
// shape) rather than specific scores.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL   string
	AnalystID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("RISKDESK_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return TestConfig{
		BaseURL:   baseURL,
		AnalystID: fmt.Sprintf("it-analyst-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Types (matching RiskDesk's API contract)
// ============================================================================

type FeedRow struct {
	ID         string  `json:"id"`
	Amount     float64 `json:"amount"`
	RiskScore  float64 `json:"riskScore"`
	Decision   string  `json:"decision"`
	Confidence string  `json:"confidence"`
	Flagged    bool    `json:"flagged"`
}

type FeedPage struct {
	Rows   []FeedRow `json:"rows"`
	Total  int       `json:"total"`
	Source string    `json:"source"`
}

type Session struct {
	ID        string  `json:"id"`
	Threshold float64 `json:"threshold"`
	State     string  `json:"state"`
}

type RobustnessRow struct {
	Label     string  `json:"label"`
	Threshold float64 `json:"threshold"`
	Decision  string  `json:"decision"`
}

type Outcome struct {
	Status    string  `json:"status"`
	Threshold float64 `json:"threshold"`
	Phase     string  `json:"phase"`
	Detail    string  `json:"detail"`
	Decision  string  `json:"decision"`
	Result    *struct {
		RiskScore  float64 `json:"risk_score"`
		Prediction int     `json:"prediction"`
	} `json:"result"`
	Robustness  []RobustnessRow `json:"robustness"`
	Explanation *struct {
		Headline string `json:"headline"`
		Footnote string `json:"footnote"`
	} `json:"explanation"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, body any, wantStatus int, out any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Analyst-ID", config.AnalystID)

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
}

func loadFeed(t *testing.T, config TestConfig) FeedPage {
	t.Helper()
	var page FeedPage
	call(t, config, http.MethodGet, "/api/feed", nil, http.StatusOK, &page)
	return page
}

// ============================================================================
// SCENARIO 1: Feed is ordered by risk
// ============================================================================

func TestFeed_SortedByRiskDescending(t *testing.T) {
	config := getTestConfig()
	page := loadFeed(t, config)

	if page.Source == "empty" {
		t.Skip("scoring service returned no feed")
	}

	for i := 1; i < len(page.Rows); i++ {
		if page.Rows[i-1].RiskScore < page.Rows[i].RiskScore {
			t.Errorf("row %d (%.3f) ranked above row %d (%.3f)", i-1, page.Rows[i-1].RiskScore, i, page.Rows[i].RiskScore)
		}
	}
	if len(page.Rows) > 0 && page.Rows[0].ID != "TX-1000" {
		t.Errorf("expected first display ID TX-1000, got %s", page.Rows[0].ID)
	}

	t.Logf("✓ %d rows, source=%s", len(page.Rows), page.Source)
}

// ============================================================================
// SCENARIO 2: Audit against the reference threshold
// ============================================================================

func TestAudit_ReferenceThreshold(t *testing.T) {
	config := getTestConfig()
	page := loadFeed(t, config)
	if len(page.Rows) == 0 {
		t.Skip("no transactions to audit")
	}

	var view struct {
		AppliedThreshold       float64 `json:"appliedThreshold"`
		RiskScore              float64 `json:"riskScore"`
		ReferenceDecision      string  `json:"referenceDecision"`
		ThresholdMarkerPercent float64 `json:"thresholdMarkerPercent"`
	}
	call(t, config, http.MethodGet, "/api/feed/"+page.Rows[0].ID+"/audit", nil, http.StatusOK, &view)

	want := "LEGITIMATE"
	if view.RiskScore > view.AppliedThreshold {
		want = "FRAUD"
	}
	if view.ReferenceDecision != want {
		t.Errorf("score %.3f at %.2f: expected %s, got %s", view.RiskScore, view.AppliedThreshold, want, view.ReferenceDecision)
	}
	if view.ThresholdMarkerPercent != view.AppliedThreshold*100 {
		t.Errorf("marker %.1f does not match applied threshold %.2f", view.ThresholdMarkerPercent, view.AppliedThreshold)
	}
}

// ============================================================================
// SCENARIO 3: Two-phase simulation
// ============================================================================

func TestSimulation_ScoreThenExplain(t *testing.T) {
	config := getTestConfig()

	var sess Session
	call(t, config, http.MethodPost, "/api/sessions", nil, http.StatusCreated, &sess)
	call(t, config, http.MethodPut, "/api/sessions/"+sess.ID+"/threshold", map[string]float64{"threshold": 0.35}, http.StatusOK, &sess)

	features := map[string]float64{"Amount": 149.62, "V14": -8.5, "V17": -6.2, "V12": -7.1}
	for i := 1; i <= 28; i++ {
		key := fmt.Sprintf("V%d", i)
		if _, ok := features[key]; !ok {
			features[key] = 0
		}
	}

	var out Outcome
	call(t, config, http.MethodPost, "/api/sessions/"+sess.ID+"/simulations",
		map[string]any{"features": features}, http.StatusOK, &out)

	switch out.Status {
	case "SUCCEEDED":
		if out.Result == nil || out.Explanation == nil {
			t.Fatalf("succeeded outcome missing result or explanation: %+v", out)
		}
		want := "LEGITIMATE"
		if out.Result.RiskScore > 0.35 {
			want = "FRAUD"
		}
		if out.Decision != want {
			t.Errorf("score %.3f at 0.35: expected %s, got %s", out.Result.RiskScore, want, out.Decision)
		}
		for _, row := range out.Robustness {
			rowWant := "LEGITIMATE"
			if out.Result.RiskScore > row.Threshold {
				rowWant = "FRAUD"
			}
			if row.Decision != rowWant {
				t.Errorf("robustness %s: expected %s, got %s", row.Label, rowWant, row.Decision)
			}
		}
		t.Logf("✓ simulated score %.3f → %s", out.Result.RiskScore, out.Decision)

	case "FAILED":
		if out.Phase != "score" && out.Phase != "explain" {
			t.Errorf("unexpected failed phase %q", out.Phase)
		}
		if out.Result != nil {
			t.Error("failed outcome must not carry a partial result")
		}
		t.Logf("✓ simulation failed in %s: %s", out.Phase, out.Detail)

	default:
		t.Fatalf("unexpected status %q", out.Status)
	}
}

// ============================================================================
// SCENARIO 4: Validation
// ============================================================================

func TestSession_RejectsInvalidThreshold(t *testing.T) {
	config := getTestConfig()

	var sess Session
	call(t, config, http.MethodPost, "/api/sessions", nil, http.StatusCreated, &sess)

	for _, v := range []float64{0, 1, 1.2} {
		call(t, config, http.MethodPut, "/api/sessions/"+sess.ID+"/threshold", map[string]float64{"threshold": v}, http.StatusBadRequest, nil)
	}

	var after Session
	call(t, config, http.MethodGet, "/api/sessions/"+sess.ID, nil, http.StatusOK, &after)
	if after.Threshold != sess.Threshold {
		t.Errorf("threshold changed from %.2f to %.2f", sess.Threshold, after.Threshold)
	}
}

func TestMissingAnalystHeader_Error(t *testing.T) {
	config := getTestConfig()

	resp, err := http.Get(config.BaseURL + "/api/feed")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing analyst, got %d", resp.StatusCode)
	}
}

// ============================================================================
// SCENARIO 5: Health
// ============================================================================

func TestHealth_ReportsScoringService(t *testing.T) {
	config := getTestConfig()

	var health map[string]string
	call(t, config, http.MethodGet, "/health", nil, http.StatusOK, &health)

	if health["scoring"] != "up" && health["scoring"] != "down" {
		t.Errorf("expected scoring up|down, got %q", health["scoring"])
	}
}
