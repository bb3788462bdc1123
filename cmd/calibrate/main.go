// Calibration tool for Sentinel weight configurations.
//
// Usage:
//
//	go run ./cmd/calibrate -csv corpus.csv [-weights weights.yaml] [-url http://localhost:8080]
//
// This tool:
//  1. Reads a labelled corpus (channel, text, sender, subject, duration, label)
//  2. Scores every sample, in process or through a running server
//  3. Compares each verdict with its label
//  4. Prints precision, recall, F1 and a confusion matrix per channel
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
	"github.com/opensource-finance/sentinel/internal/scoring"
)

func main() {
	csvPath := flag.String("csv", "", "Path to the labelled CSV corpus")
	weightsPath := flag.String("weights", "", "YAML weight configuration (default: built-in)")
	baseURL := flag.String("url", "", "Score through a running Sentinel at this base URL instead of in process")
	tenantID := flag.String("tenant", "calibration", "Tenant ID for API requests")
	limit := flag.Int("limit", 0, "Maximum samples to process (0 = all)")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	positive := flag.String("positive", "suspicious", "Lowest risk level counted as flagged: suspicious or dangerous")
	verbose := flag.Bool("verbose", false, "Print each misclassified sample")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: calibrate -csv corpus.csv [-weights weights.yaml]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	minLevel, err := parseLevel(*positive)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	var score scoreFunc
	if *baseURL != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		score = apiScorer(client, strings.TrimRight(*baseURL, "/"), *tenantID)
	} else {
		weights, err := scoring.LoadWeightConfig(*weightsPath)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		eng, err := engine.New(weights, engine.Options{})
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		score = engineScorer(eng)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open corpus: %v\n", err)
		os.Exit(1)
	}
	samples, skipped, err := readSamples(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read corpus: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("SENTINEL CALIBRATION")
	fmt.Printf("\nCorpus:      %s\n", *csvPath)
	fmt.Printf("Samples:     %d (%d skipped)\n", len(samples), skipped)
	fmt.Printf("Weights:     %s\n", orDefault(*weightsPath, "built-in"))
	fmt.Printf("Scoring via: %s\n", orDefault(*baseURL, "in-process engine"))
	fmt.Printf("Flagged at:  %s and above\n", minLevel)
	fmt.Printf("Workers:     %d\n\n", *workers)

	start := time.Now()
	report := run(samples, score, minLevel, *workers, verboseSink(*verbose))
	printReport(os.Stdout, report, time.Since(start))
}

func parseLevel(s string) (domain.RiskLevel, error) {
	switch level := domain.RiskLevel(strings.ToUpper(s)); level {
	case domain.RiskSuspicious, domain.RiskDangerous:
		return level, nil
	default:
		return "", fmt.Errorf("-positive must be suspicious or dangerous, got %q", s)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func verboseSink(on bool) func(Sample, domain.Verdict, error) {
	if !on {
		return nil
	}
	return func(s Sample, v domain.Verdict, err error) {
		if err != nil {
			fmt.Printf("ERROR  line %d: %v\n", s.Line, err)
			return
		}
		fmt.Printf("MISS   line %d | %-5s | label %-8v | %-10s %5.1f | %s\n",
			s.Line, s.Input.Channel, s.Malicious, v.RiskLevel, v.RiskScore, s.Input.Summary())
	}
}
