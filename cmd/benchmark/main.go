// Benchmark tool for testing Kestrel against labelled profile data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/profiles.csv -url http://localhost:8080
//   go run cmd/benchmark/main.go -synthetic 5000 -url http://localhost:8080
//
// This tool:
//   1. Reads labelled profiles from CSV, or generates a seeded synthetic set
//   2. Sends each profile to Kestrel for assessment
//   3. Compares Kestrel's risk score against the label
//   4. Calculates precision, recall, F1-score, latency percentiles and a confusion matrix
//
// CSV columns: account_age_days, followers, following, post_count,
// profile_completed, messages ("|" separated), is_suspicious.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabelledProfile is one benchmark row.
type LabelledProfile struct {
	Profile    AnalyzeRequest
	Suspicious bool
}

// AnalyzeRequest is the Kestrel API request format
type AnalyzeRequest struct {
	AccountAgeDays   int      `json:"account_age_days"`
	Followers        int      `json:"followers"`
	Following        int      `json:"following"`
	PostCount        int      `json:"post_count"`
	ProfileCompleted bool     `json:"profile_completed"`
	Messages         []string `json:"messages"`
}

// AnalyzeResponse is the Kestrel API response format
type AnalyzeResponse struct {
	RiskScore    float64  `json:"risk_score"`
	RiskLevel    string   `json:"risk_level"`
	Explanations []string `json:"explanations"`
	Confidence   float64  `json:"confidence"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Suspicious profile flagged
	FalsePositives int64 // Legitimate profile flagged
	TrueNegatives  int64 // Legitimate profile passed
	FalseNegatives int64 // Suspicious profile passed (missed!)

	TotalProcessed  int64
	TotalSuspicious int64
	TotalLegitimate int64
	TotalErrors     int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) observe(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func (m *Metrics) percentile(p float64) time.Duration {
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(m.latencies)
	slices.Sort(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled profile CSV")
	synthetic := flag.Int("synthetic", 2000, "Number of synthetic profiles when no CSV is given")
	seed := flag.Int64("seed", 7, "Seed for synthetic profiles")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum profiles to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	threshold := flag.Float64("threshold", 40, "Risk score at or above which a profile counts as flagged")
	verbose := flag.Bool("verbose", false, "Print each profile result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         KESTREL BENCHMARK - Suspicious Profile Scoring        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	if *csvPath != "" {
		fmt.Printf("\nCSV File:    %s\n", *csvPath)
	} else {
		fmt.Printf("\nSynthetic:   %d (seed %d)\n", *synthetic, *seed)
	}
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Threshold:   %.1f\n", *threshold)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	var profiles []LabelledProfile
	if *csvPath != "" {
		var err error
		profiles, err = readProfilesCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		n := *synthetic
		if *limit > 0 && n > *limit {
			n = *limit
		}
		profiles = generateProfiles(n, *seed)
	}
	if len(profiles) == 0 {
		fmt.Println("ERROR: no profiles to benchmark")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d profiles\n", len(profiles))

	suspicious := 0
	for _, p := range profiles {
		if p.Suspicious {
			suspicious++
		}
	}
	fmt.Printf("  - Suspicious: %d (%.2f%%)\n", suspicious, 100*float64(suspicious)/float64(len(profiles)))
	fmt.Printf("  - Legitimate: %d (%.2f%%)\n", len(profiles)-suspicious, 100*float64(len(profiles)-suspicious)/float64(len(profiles)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(profiles, *baseURL, *workers, *threshold, *verbose)
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

func readProfilesCSV(path string, limit int) ([]LabelledProfile, error) {
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
	for _, col := range []string{"account_age_days", "followers", "following", "post_count", "profile_completed", "messages", "is_suspicious"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var profiles []LabelledProfile
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		age, _ := strconv.Atoi(record[colIndex["account_age_days"]])
		followers, _ := strconv.Atoi(record[colIndex["followers"]])
		following, _ := strconv.Atoi(record[colIndex["following"]])
		posts, _ := strconv.Atoi(record[colIndex["post_count"]])
		completed, _ := strconv.ParseBool(record[colIndex["profile_completed"]])
		suspicious, _ := strconv.ParseBool(record[colIndex["is_suspicious"]])

		profiles = append(profiles, LabelledProfile{
			Profile: AnalyzeRequest{
				AccountAgeDays:   age,
				Followers:        followers,
				Following:        following,
				PostCount:        posts,
				ProfileCompleted: completed,
				Messages:         strings.Split(record[colIndex["messages"]], "|"),
			},
			Suspicious: suspicious,
		})

		if limit > 0 && len(profiles) >= limit {
			break
		}
	}

	return profiles, nil
}

var (
	benignMessages = []string{
		"Thanks for connecting!",
		"Great article you shared about the conference.",
		"Happy to help with the project next week.",
		"Congrats on the new role!",
	}
	scamMessages = []string{
		"My darling, I feel we are soulmates already.",
		"I am a soldier deployed overseas and need help with fees.",
		"Please send a Western Union transfer, it is urgent.",
		"Invest in bitcoin with me for guaranteed returns.",
		"What is your bank account so I can send the inheritance?",
		"Act now, this offer expires today!",
	}
)

// generateProfiles builds a 60/40 mix of legitimate and suspicious profiles.
func generateProfiles(n int, seed int64) []LabelledProfile {
	rng := rand.New(rand.NewSource(seed))
	pick := func(pool []string, k int) []string {
		out := make([]string, 0, k)
		for i := 0; i < k; i++ {
			out = append(out, pool[rng.Intn(len(pool))])
		}
		return out
	}

	profiles := make([]LabelledProfile, 0, n)
	for i := 0; i < n; i++ {
		if rng.Float64() < 0.6 {
			age := 120 + rng.Intn(2000)
			following := 50 + rng.Intn(500)
			profiles = append(profiles, LabelledProfile{
				Profile: AnalyzeRequest{
					AccountAgeDays:   age,
					Followers:        following/2 + rng.Intn(following*2),
					Following:        following,
					PostCount:        rng.Intn(age),
					ProfileCompleted: rng.Float64() < 0.9,
					Messages:         pick(benignMessages, 1+rng.Intn(3)),
				},
			})
			continue
		}

		age := rng.Intn(60)
		profiles = append(profiles, LabelledProfile{
			Profile: AnalyzeRequest{
				AccountAgeDays:   age,
				Followers:        rng.Intn(30),
				Following:        300 + rng.Intn(3000),
				PostCount:        rng.Intn(60 * (age + 1)),
				ProfileCompleted: rng.Float64() < 0.2,
				Messages:         pick(scamMessages, 2+rng.Intn(3)),
			},
			Suspicious: true,
		})
	}
	return profiles
}

func runBenchmark(profiles []LabelledProfile, baseURL string, numWorkers int, threshold float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabelledProfile, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for lp := range work {
				start := time.Now()
				result, err := analyzeProfile(client, baseURL, lp.Profile)
				metrics.observe(time.Since(start))
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				if lp.Suspicious {
					atomic.AddInt64(&metrics.TotalSuspicious, 1)
				} else {
					atomic.AddInt64(&metrics.TotalLegitimate, 1)
				}

				predicted := result.RiskScore >= threshold
				actual := lp.Suspicious

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s age %5dd | followers %6d | following %6d | Suspicious: %-5v | Kestrel: %-13s (%.1f)\n",
						status,
						lp.Profile.AccountAgeDays,
						lp.Profile.Followers,
						lp.Profile.Following,
						lp.Suspicious,
						result.RiskLevel,
						result.RiskScore,
					)
				}
			}
		}()
	}

	for _, p := range profiles {
		work <- p
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeProfile(client *http.Client, baseURL string, profile AnalyzeRequest) (*AnalyzeResponse, error) {
	body, err := json.Marshal(profile)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze-profile", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Suspicious:       %d\n", m.TotalSuspicious)
	fmt.Printf("   Legitimate:       %d\n", m.TotalLegitimate)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FLAG        PASS")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  S  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           L  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

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

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were suspicious)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of suspicious profiles, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	if m.TotalLegitimate > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalLegitimate) * 100
		fmt.Printf("   False Alarms: %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalLegitimate, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Latency p50:      %v\n", m.percentile(0.50).Round(time.Microsecond))
		fmt.Printf("   Latency p95:      %v\n", m.percentile(0.95).Round(time.Microsecond))
		fmt.Printf("   Latency p99:      %v\n", m.percentile(0.99).Round(time.Microsecond))
		fmt.Printf("   Throughput:       %.2f profiles/sec\n", tps)
	}

	fmt.Println()
}
