package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
)

// Sample is one labelled row of the corpus.
type Sample struct {
	Line      int
	Input     domain.RawInput
	Malicious bool
}

type scoreFunc func(ctx context.Context, in domain.RawInput) (domain.Verdict, error)

// readSamples parses a corpus with a header row. channel, text and label are
// required columns; sender, subject and duration are optional. Rows with an
// unknown channel or label are skipped and counted.
func readSamples(r io.Reader, limit int) ([]Sample, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"channel", "text", "label"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("missing %q column", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var (
		samples []Sample
		skipped int
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		malicious, ok := parseLabel(field(record, "label"))
		if !ok {
			skipped++
			continue
		}

		var in domain.RawInput
		text, sender := field(record, "text"), field(record, "sender")
		switch domain.Channel(strings.ToLower(field(record, "channel"))) {
		case domain.ChannelURL:
			in = domain.NewURLInput(text)
		case domain.ChannelEmail:
			in = domain.NewEmailInput(sender, field(record, "subject"), text, "")
		case domain.ChannelSMS:
			in = domain.NewSMSInput(text, sender)
		case domain.ChannelVoice:
			duration, _ := strconv.ParseFloat(field(record, "duration"), 64)
			in = domain.NewVoiceInput(duration, text, nil, nil)
		default:
			skipped++
			continue
		}

		samples = append(samples, Sample{Line: line, Input: in, Malicious: malicious})
		if limit > 0 && len(samples) >= limit {
			break
		}
	}
	return samples, skipped, nil
}

func parseLabel(s string) (malicious bool, ok bool) {
	switch strings.ToLower(s) {
	case "1", "true", "malicious", "phishing", "smishing", "vishing", "scam", "fraud", "spam":
		return true, true
	case "0", "false", "benign", "legit", "legitimate", "safe", "ham":
		return false, true
	}
	return false, false
}

// Confusion counts outcomes for the flagged/not-flagged decision.
type Confusion struct {
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
}

func (c *Confusion) add(predicted, actual bool) {
	switch {
	case predicted && actual:
		c.TruePositives++
	case predicted && !actual:
		c.FalsePositives++
	case !predicted && !actual:
		c.TrueNegatives++
	default:
		c.FalseNegatives++
	}
}

func (c Confusion) Total() int {
	return c.TruePositives + c.FalsePositives + c.TrueNegatives + c.FalseNegatives
}

func (c Confusion) Precision() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
}

func (c Confusion) Recall() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
}

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c Confusion) Accuracy() float64 {
	return ratio(c.TruePositives+c.TrueNegatives, c.Total())
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Report aggregates a calibration run.
type Report struct {
	Overall   Confusion
	ByChannel map[domain.Channel]*Confusion
	Errors    int
	Latency   time.Duration // summed scoring time
}

type outcome struct {
	sample  Sample
	verdict domain.Verdict
	err     error
	elapsed time.Duration
}

// run scores samples with a fixed pool of workers. miss, when set, receives
// every misclassified or failed sample.
func run(samples []Sample, score scoreFunc, minLevel domain.RiskLevel, workers int, miss func(Sample, domain.Verdict, error)) *Report {
	if workers <= 0 {
		workers = 1
	}

	work := make(chan Sample, 100)
	results := make(chan outcome, 100)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				start := time.Now()
				v, err := score(context.Background(), s.Input)
				results <- outcome{sample: s, verdict: v, err: err, elapsed: time.Since(start)}
			}
		}()
	}

	go func() {
		for _, s := range samples {
			work <- s
		}
		close(work)
		wg.Wait()
		close(results)
	}()

	report := &Report{ByChannel: make(map[domain.Channel]*Confusion)}
	for o := range results {
		report.Latency += o.elapsed
		if o.err != nil {
			report.Errors++
			if miss != nil {
				miss(o.sample, o.verdict, o.err)
			}
			continue
		}

		predicted := flagged(o.verdict.RiskLevel, minLevel)
		report.Overall.add(predicted, o.sample.Malicious)

		ch := o.sample.Input.Channel
		if report.ByChannel[ch] == nil {
			report.ByChannel[ch] = &Confusion{}
		}
		report.ByChannel[ch].add(predicted, o.sample.Malicious)

		if miss != nil && predicted != o.sample.Malicious {
			miss(o.sample, o.verdict, nil)
		}
	}
	return report
}

func flagged(level, minLevel domain.RiskLevel) bool {
	switch level {
	case domain.RiskDangerous:
		return true
	case domain.RiskSuspicious:
		return minLevel == domain.RiskSuspicious
	}
	return false
}

func engineScorer(eng *engine.Engine) scoreFunc {
	return func(ctx context.Context, in domain.RawInput) (domain.Verdict, error) {
		return eng.Analyze(ctx, in), nil
	}
}

// apiScorer scores through the channel endpoints of a running server.
func apiScorer(client *http.Client, baseURL, tenantID string) scoreFunc {
	return func(ctx context.Context, in domain.RawInput) (domain.Verdict, error) {
		var (
			path string
			body any
		)
		switch in.Channel {
		case domain.ChannelURL:
			path, body = "/api/phishing/scan", map[string]any{"url": in.Text}
		case domain.ChannelEmail:
			path, body = "/api/phishing/analyze-email", map[string]any{
				"sender": in.Sender, "subject": in.Subject, "body": in.Text,
			}
		case domain.ChannelSMS:
			path, body = "/api/smishing/analyze-sms", map[string]any{"content": in.Text, "sender": in.Sender}
		case domain.ChannelVoice:
			path, body = "/api/vishing/analyze-call", map[string]any{
				"durationSeconds": in.DurationSeconds, "transcript": in.Text,
			}
		default:
			return domain.Verdict{}, fmt.Errorf("unknown channel %q", in.Channel)
		}

		data, err := json.Marshal(body)
		if err != nil {
			return domain.Verdict{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(data))
		if err != nil {
			return domain.Verdict{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", tenantID)

		resp, err := client.Do(req)
		if err != nil {
			return domain.Verdict{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return domain.Verdict{}, fmt.Errorf("status %d", resp.StatusCode)
		}

		var v domain.Verdict
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return domain.Verdict{}, err
		}
		return v, nil
	}
}

func printReport(w io.Writer, r *Report, duration time.Duration) {
	fmt.Fprintln(w, "RESULTS")
	printConfusion(w, "all channels", r.Overall)

	channels := make([]domain.Channel, 0, len(r.ByChannel))
	for ch := range r.ByChannel {
		channels = append(channels, ch)
	}
	slices.Sort(channels)
	for _, ch := range channels {
		printConfusion(w, string(ch), *r.ByChannel[ch])
	}

	processed := r.Overall.Total() + r.Errors
	fmt.Fprintf(w, "\nErrors:        %d\n", r.Errors)
	fmt.Fprintf(w, "Duration:      %v\n", duration.Round(time.Millisecond))
	if processed > 0 {
		fmt.Fprintf(w, "Avg latency:   %.2f ms\n", float64(r.Latency.Microseconds())/1000/float64(processed))
		fmt.Fprintf(w, "Throughput:    %.2f samples/sec\n", float64(processed)/duration.Seconds())
	}
}

func printConfusion(w io.Writer, title string, c Confusion) {
	fmt.Fprintf(w, "\n%s (%d samples)\n", title, c.Total())
	fmt.Fprintln(w, "                  flagged   not flagged")
	fmt.Fprintf(w, "   malicious   %10d %13d\n", c.TruePositives, c.FalseNegatives)
	fmt.Fprintf(w, "   benign      %10d %13d\n", c.FalsePositives, c.TrueNegatives)
	fmt.Fprintf(w, "   precision %.4f  recall %.4f  f1 %.4f  accuracy %.4f\n",
		c.Precision(), c.Recall(), c.F1(), c.Accuracy())
}
