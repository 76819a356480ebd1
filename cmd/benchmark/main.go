// Benchmark tool for calibrating RiskDesk thresholds against labelled card data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/creditcard.csv -url http://localhost:8090
//
// This tool:
//  1. Reads credit card transactions (Time, V1..V28, Amount, Class)
//  2. Replays each one through a RiskDesk simulator session
//  3. Compares the decision at the session threshold with the Class label
//  4. Tallies a confusion matrix per robustness threshold from the same runs
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CardTransaction is one labelled row of the dataset.
type CardTransaction struct {
	Row      int
	Features map[string]float64
	IsFraud  bool
}

// SimulationResponse is the subset of the simulator outcome used here.
type SimulationResponse struct {
	Status    string  `json:"status"`
	Threshold float64 `json:"threshold"`
	Decision  string  `json:"decision"`
	Phase     string  `json:"phase"`
	Detail    string  `json:"detail"`
	Result    struct {
		RiskScore float64 `json:"risk_score"`
	} `json:"result"`
	Robustness []struct {
		Label     string  `json:"label"`
		Threshold float64 `json:"threshold"`
		Decision  string  `json:"decision"`
	} `json:"robustness"`
}

// Matrix is a confusion matrix.
type Matrix struct {
	TruePositives  int64 // Fraud decided FRAUD
	FalsePositives int64 // Legitimate decided FRAUD
	TrueNegatives  int64 // Legitimate decided LEGITIMATE
	FalseNegatives int64 // Fraud decided LEGITIMATE (missed fraud!)
}

// Add tallies one decision against its label.
func (m *Matrix) Add(predicted, actual bool) {
	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

// Precision returns TP / (TP + FP).
func (m *Matrix) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall returns TP / (TP + FN).
func (m *Matrix) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 returns the harmonic mean of precision and recall.
func (m *Matrix) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Metrics tracks benchmark results
type Metrics struct {
	Session Matrix

	mu         sync.Mutex
	References map[float64]*Matrix

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalFailed    int64 // FAILED outcomes
	TotalErrors    int64 // transport or HTTP errors

	ProcessingTimeMs int64
}

// Record tallies one finished simulation.
func (m *Metrics) Record(tx CardTransaction, resp *SimulationResponse) {
	if tx.IsFraud {
		atomic.AddInt64(&m.TotalFraud, 1)
	} else {
		atomic.AddInt64(&m.TotalNonFraud, 1)
	}

	m.Session.Add(resp.Decision == "FRAUD", tx.IsFraud)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.References == nil {
		m.References = make(map[float64]*Matrix)
	}
	for _, row := range resp.Robustness {
		mat, ok := m.References[row.Threshold]
		if !ok {
			mat = &Matrix{}
			m.References[row.Threshold] = mat
		}
		mat.Add(row.Decision == "FRAUD", tx.IsFraud)
	}
}

func main() {
	csvPath := flag.String("csv", "", "Path to creditcard.csv")
	baseURL := flag.String("url", "http://localhost:8090", "RiskDesk base URL")
	analystID := flag.String("analyst", "benchmark", "Analyst ID for requests")
	threshold := flag.Float64("threshold", 0.5, "Session threshold in (0,1)")
	limit := flag.Int("limit", 2000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent sessions")
	fraudOnly := flag.Bool("fraud-only", false, "Only replay fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for legitimate rows (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/creditcard.csv [-url http://localhost:8090]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *threshold <= 0 || *threshold >= 1 {
		fmt.Println("ERROR: -threshold must be in (0,1)")
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|        RISKDESK BENCHMARK - Threshold Calibration             |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("RiskDesk URL: %s\n", *baseURL)
	fmt.Printf("Analyst ID:   %s\n", *analystID)
	fmt.Printf("Threshold:    %.2f\n", *threshold)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Printf("Fraud Only:   %v\n", *fraudOnly)
	fmt.Printf("Sample Rate:  %.2f\n", *sampleRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: RiskDesk not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure RiskDesk is running:")
		fmt.Println("  go run ./cmd/riskdesk")
		os.Exit(1)
	}
	fmt.Println("✓ RiskDesk is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	transactions, err := readCreditCardCSV(file, *limit, *fraudOnly, *sampleRate)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(transactions) == 0 {
		fmt.Println("ERROR: no transactions selected")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	fraudCount := 0
	for _, tx := range transactions {
		if tx.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:      %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(transactions)))
	fmt.Printf("  - Legitimate: %d (%.2f%%)\n", len(transactions)-fraudCount, 100*float64(len(transactions)-fraudCount)/float64(len(transactions)))

	fmt.Printf("\nRunning benchmark with %d sessions...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *analystID, *threshold, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, *threshold, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readCreditCardCSV reads the Time, V1..V28, Amount, Class layout. Time and
// Class are not model features and are left out of the feature map.
func readCreditCardCSV(r io.Reader, limit int, fraudOnly bool, sampleRate float64) ([]CardTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	classCol := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "class") {
			classCol = i
		}
	}
	if classCol < 0 {
		return nil, fmt.Errorf("missing Class column")
	}

	var transactions []CardTransaction
	sampleCounter := 0
	row := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			continue // Skip malformed rows
		}

		label := strings.Trim(strings.TrimSpace(record[classCol]), `"`)
		isFraud := label == "1"

		if fraudOnly && !isFraud {
			continue
		}

		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		features := make(map[string]float64, len(header))
		for i, col := range header {
			name := strings.Trim(strings.TrimSpace(col), `"`)
			if i == classCol || strings.EqualFold(name, "time") {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				continue
			}
			features[name] = v
		}

		transactions = append(transactions, CardTransaction{
			Row:      row,
			Features: features,
			IsFraud:  isFraud,
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

// runBenchmark gives each worker its own session. A session runs one
// simulation at a time, so concurrent runs on a shared session would
// supersede each other.
func runBenchmark(transactions []CardTransaction, baseURL, analystID string, threshold float64, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan CardTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			sessionID, err := openSession(client, baseURL, analystID, threshold)
			if err != nil {
				fmt.Printf("ERROR: failed to open session: %v\n", err)
				for range work {
					atomic.AddInt64(&metrics.TotalErrors, 1)
				}
				return
			}

			for tx := range work {
				start := time.Now()
				result, err := simulate(client, baseURL, analystID, sessionID, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: row %d -> %v\n", tx.Row, err)
					}
					continue
				}
				if result.Status != "SUCCEEDED" {
					atomic.AddInt64(&metrics.TotalFailed, 1)
					if verbose {
						fmt.Printf("FAILED: row %d in %s -> %s\n", tx.Row, result.Phase, result.Detail)
					}
					continue
				}

				metrics.Record(tx, result)

				if verbose {
					predicted := result.Decision == "FRAUD"
					status := "✓"
					if predicted != tx.IsFraud {
						status = "✗"
					}
					fmt.Printf("%s row %-7d | Amount: %10.2f | Fraud: %-5v | Score: %.4f | %s\n",
						status,
						tx.Row,
						tx.Features["Amount"],
						tx.IsFraud,
						result.Result.RiskScore,
						result.Decision,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func openSession(client *http.Client, baseURL, analystID string, threshold float64) (string, error) {
	var session struct {
		ID string `json:"id"`
	}
	if err := doJSON(client, http.MethodPost, baseURL+"/api/sessions", analystID, nil, http.StatusCreated, &session); err != nil {
		return "", err
	}

	body := map[string]float64{"threshold": threshold}
	if err := doJSON(client, http.MethodPut, baseURL+"/api/sessions/"+session.ID+"/threshold", analystID, body, http.StatusOK, nil); err != nil {
		return "", err
	}
	return session.ID, nil
}

func simulate(client *http.Client, baseURL, analystID, sessionID string, tx CardTransaction) (*SimulationResponse, error) {
	var result SimulationResponse
	body := map[string]any{"features": tx.Features}
	if err := doJSON(client, http.MethodPost, baseURL+"/api/sessions/"+sessionID+"/simulations", analystID, body, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func doJSON(client *http.Client, method, url, analystID string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Analyst-ID", analystID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(m *Metrics, threshold float64, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Legitimate: %d\n", m.TotalNonFraud)
	fmt.Printf("   Failed Runs:      %d\n", m.TotalFailed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	s := &m.Session
	fmt.Printf("\n📈 CONFUSION MATRIX AT %.2f\n", threshold)
	fmt.Println("                        Predicted")
	fmt.Println("                   FRAUD     LEGIT")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  F  | %8d | %8d |  (TP, FN)\n", s.TruePositives, s.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("           L  | %8d | %8d |  (FP, TN)\n", s.FalsePositives, s.TrueNegatives)
	fmt.Println("              +----------+----------+")

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of blocks, how many were actual fraud)\n", s.Precision())
	fmt.Printf("   Recall:     %.4f  (of fraud, how many were blocked)\n", s.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", s.F1())

	if len(m.References) > 0 {
		thresholds := make([]float64, 0, len(m.References))
		for t := range m.References {
			thresholds = append(thresholds, t)
		}
		sort.Float64s(thresholds)

		fmt.Printf("\n🔍 ROBUSTNESS SWEEP\n")
		fmt.Println("   Threshold  Precision  Recall   F1")
		for _, t := range thresholds {
			mat := m.References[t]
			fmt.Printf("   %9.2f  %9.4f  %6.4f  %6.4f\n", t, mat.Precision(), mat.Recall(), mat.F1())
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms (score + explain)\n", avgMs)
		fmt.Printf("   Throughput:       %.2f sims/sec\n", tps)
	}

	fmt.Println()
}
