// Benchmark tool for testing Kestrel against a labelled applicant dataset.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/applicants.csv -url http://localhost:8080
//
// This tool:
//  1. Reads applicant records (with an approval label column)
//  2. Sends each applicant to Kestrel for a decision
//  3. Compares Kestrel's approval status with the dataset label
//  4. Calculates precision, recall, F1-score, and score distribution
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
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Applicant represents a row from the benchmark dataset.
type Applicant struct {
	CreditScore      float64
	AnnualIncome     float64
	DebtToIncome     float64
	EmploymentYears  float64
	LoanAmount       float64
	Delinquencies    float64
	EmploymentStatus string
	LoanPurpose      string
	Approved         bool
}

// PredictResponse is the subset of the decision the benchmark needs.
type PredictResponse struct {
	ID             string  `json:"id"`
	FinalScore     float64 `json:"finalScore"`
	ApprovalStatus string  `json:"approvalStatus"`
	RiskLevel      string  `json:"riskLevel"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Approved applicants predicted Approved
	FalsePositives int64 // Declined applicants predicted Approved
	TrueNegatives  int64 // Declined applicants not predicted Approved
	FalseNegatives int64 // Approved applicants not predicted Approved

	TotalProcessed int64
	TotalApproved  int64
	TotalDeclined  int64
	TotalErrors    int64

	ManualReviews int64

	ScoreSum         int64 // finalScore accumulated as integer points
	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled applicant CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum applicants to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each applicant result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/applicants.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("===============================================================")
	fmt.Println("          KESTREL BENCHMARK - Credit Decision Accuracy")
	fmt.Println("===============================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nReading applicants from %s...\n", *csvPath)
	applicants, err := readApplicantCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d applicants\n", len(applicants))

	approvedCount := 0
	for _, a := range applicants {
		if a.Approved {
			approvedCount++
		}
	}
	fmt.Printf("  - Labelled approved: %d (%.2f%%)\n", approvedCount, 100*float64(approvedCount)/float64(len(applicants)))
	fmt.Printf("  - Labelled declined: %d (%.2f%%)\n", len(applicants)-approvedCount, 100*float64(len(applicants)-approvedCount)/float64(len(applicants)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(applicants, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func readApplicantCSV(path string, limit int) ([]Applicant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	col := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}
	num := func(record []string, name string) float64 {
		v, _ := strconv.ParseFloat(col(record, name), 64)
		return v
	}

	var applicants []Applicant
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		applicants = append(applicants, Applicant{
			CreditScore:      num(record, "credit_score"),
			AnnualIncome:     num(record, "annual_income"),
			DebtToIncome:     num(record, "debt_to_income"),
			EmploymentYears:  num(record, "employment_years"),
			LoanAmount:       num(record, "loan_amount"),
			Delinquencies:    num(record, "delinquencies"),
			EmploymentStatus: col(record, "employment_status"),
			LoanPurpose:      col(record, "loan_purpose"),
			Approved:         col(record, "approved") == "1",
		})

		if limit > 0 && len(applicants) >= limit {
			break
		}
	}

	return applicants, nil
}

func runBenchmark(applicants []Applicant, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Applicant, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for a := range work {
				start := time.Now()
				result, err := predictApplicant(client, baseURL, tenantID, a)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: creditScore=%.0f -> %v\n", a.CreditScore, err)
					}
					continue
				}

				if a.Approved {
					atomic.AddInt64(&metrics.TotalApproved, 1)
				} else {
					atomic.AddInt64(&metrics.TotalDeclined, 1)
				}

				atomic.AddInt64(&metrics.ScoreSum, int64(result.FinalScore))
				if result.ApprovalStatus == "Manual Review" {
					atomic.AddInt64(&metrics.ManualReviews, 1)
				}

				predicted := result.ApprovalStatus == "Approved"
				actual := a.Approved

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					mark := "ok"
					if predicted != actual {
						mark = "MISS"
					}
					fmt.Printf("%-4s | credit: %4.0f | income: %10.0f | label: %-5v | kestrel: %-13s (%.0f)\n",
						mark, a.CreditScore, a.AnnualIncome, a.Approved, result.ApprovalStatus, result.FinalScore)
				}
			}
		}()
	}

	for _, a := range applicants {
		work <- a
	}
	close(work)

	wg.Wait()

	return metrics
}

func predictApplicant(client *http.Client, baseURL, tenantID string, a Applicant) (*PredictResponse, error) {
	record := map[string]any{
		"creditScore":      a.CreditScore,
		"annualIncome":     a.AnnualIncome,
		"debtToIncome":     a.DebtToIncome,
		"employmentYears":  a.EmploymentYears,
		"loanAmount":       a.LoanAmount,
		"delinquencies":    a.Delinquencies,
		"employmentStatus": a.EmploymentStatus,
		"loanPurpose":      a.LoanPurpose,
	}

	body, err := json.Marshal(map[string]any{"applicant": record})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n===============================================================")
	fmt.Println("                      BENCHMARK RESULTS")
	fmt.Println("===============================================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Labelled Approved: %d\n", m.TotalApproved)
	fmt.Printf("   Labelled Declined: %d\n", m.TotalDeclined)
	fmt.Printf("   Manual Reviews:    %d\n", m.ManualReviews)
	fmt.Printf("   Errors:            %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX (predicted Approved vs label)\n")
	fmt.Printf("   TP: %8d   FN: %8d\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   FP: %8d   TN: %8d\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nAGREEMENT METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of approvals, how many matched the label)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of labelled approvals, how many we approved)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	if m.TotalProcessed > m.TotalErrors {
		evaluated := m.TotalProcessed - m.TotalErrors
		fmt.Printf("\nSCORE DISTRIBUTION\n")
		fmt.Printf("   Mean finalScore: %.1f\n", float64(m.ScoreSum)/float64(evaluated))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
