package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
	"github.com/opensource-finance/sentinel/internal/intel"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/scoring"
)

const testTenant = "tenant-a"

// createTestServer wires a server over a temporary SQLite database, an
// in-memory cache and a channel bus.
func createTestServer(t *testing.T) (*Server, Options) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	c := cache.NewLRUCache(1000)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() {
		b.Close()
		c.Close()
		repo.Close()
	})

	store := intel.NewCachedStore(intel.NewSQLStore(repo), c, time.Minute)
	ages := intel.NewAgeSource(repo)

	eng, err := engine.New(scoring.DefaultWeightConfig(), engine.Options{Store: store, Ages: ages})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	opts := Options{
		Repo:               repo,
		Cache:              c,
		Bus:                b,
		Intel:              intel.NewService(repo, c),
		Store:              store,
		Ages:               ages,
		PromotionThreshold: 2,
		Version:            "test-v1",
	}
	server := NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, eng, opts)
	return server, opts
}

func doRequest(t *testing.T, s *Server, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(TenantIDHeader, tenant)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthAndReady(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("health", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/health", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}

		var resp struct {
			Status     string            `json:"status"`
			Version    string            `json:"version"`
			Components map[string]string `json:"components"`
		}
		decodeBody(t, w, &resp)
		if resp.Status != "healthy" {
			t.Errorf("Expected healthy, got %s", resp.Status)
		}
		if resp.Version != "test-v1" {
			t.Errorf("Expected version test-v1, got %s", resp.Version)
		}
		for _, name := range []string{"repository", "cache", "eventBus"} {
			if resp.Components[name] != "ok" {
				t.Errorf("Expected component %s ok, got %q", name, resp.Components[name])
			}
		}
	})

	t.Run("ready", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/ready", "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not ready without engine", func(t *testing.T) {
		bare := NewServer(domain.ServerConfig{}, nil, Options{})
		w := doRequest(t, bare, http.MethodGet, "/ready", "", nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestTenantRequired(t *testing.T) {
	server, _ := createTestServer(t)
	body := SMSRequest{Content: "hello"}

	tests := []struct {
		name   string
		tenant string
	}{
		{"missing", ""},
		{"invalid characters", "tenant.a"},
		{"wildcard", "*"},
		{"reserved", domain.GlobalTenant},
		{"too long", strings.Repeat("a", 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, http.MethodPost, "/api/smishing/analyze-sms", tt.tenant, body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestAnalyzeEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("dangerous sms", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/smishing/analyze-sms", testTenant, SMSRequest{
			Content: "URGENT: Your SBI account will be blocked. Share OTP to verify.",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if resp.RiskLevel != domain.RiskDangerous {
			t.Errorf("Expected DANGEROUS, got %s (%.1f)", resp.RiskLevel, resp.RiskScore)
		}
		if resp.Channel != domain.ChannelSMS {
			t.Errorf("Expected channel sms, got %s", resp.Channel)
		}
		if resp.AnalysisID == "" {
			t.Error("Expected analysis ID")
		}
		if len(resp.Signals) != 0 {
			t.Error("Signals should only be returned with explain=true")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("Expected version test-v1, got %s", resp.Metadata.Version)
		}
	})

	t.Run("safe sms", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/smishing/analyze-sms", testTenant, SMSRequest{
			Content: "Hey, are we still meeting for lunch tomorrow?",
		})
		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if resp.RiskLevel != domain.RiskSafe {
			t.Errorf("Expected SAFE, got %s", resp.RiskLevel)
		}
		if resp.Indicators == nil {
			t.Error("Indicators should encode as an empty list, not null")
		}
	})

	t.Run("explain returns signals", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/smishing/analyze-sms?explain=true", testTenant, SMSRequest{
			Content: "URGENT: Your SBI account will be blocked. Share OTP to verify.",
		})
		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if len(resp.Signals) == 0 {
			t.Fatal("Expected evaluated signals")
		}
		for _, s := range resp.Signals {
			if s.SubScore < 0 || s.SubScore > 1 {
				t.Errorf("Signal %s sub-score %v out of range", s.Signal.Name, s.SubScore)
			}
		}
	})

	t.Run("lookalike url", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/phishing/scan", testTenant, ScanRequest{
			URL: "http://paypa1-secure-login.tk/verify",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if resp.RiskLevel == domain.RiskSafe {
			t.Errorf("Expected a risky verdict, got SAFE (%.1f)", resp.RiskScore)
		}
	})

	t.Run("safe url", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/phishing/scan", testTenant, ScanRequest{
			URL: "https://www.google.com",
		})
		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if resp.RiskLevel != domain.RiskSafe {
			t.Errorf("Expected SAFE, got %s with %v", resp.RiskLevel, resp.Indicators)
		}
	})

	t.Run("email", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/phishing/analyze-email", testTenant, EmailRequest{
			Sender:  "security@paypa1-alerts.tk",
			Subject: "Urgent: account suspended",
			Body:    "Verify your password immediately at http://paypa1.tk/login",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if resp.Channel != domain.ChannelEmail {
			t.Errorf("Expected channel email, got %s", resp.Channel)
		}
		if resp.RiskLevel == domain.RiskSafe {
			t.Errorf("Expected a risky verdict, got SAFE")
		}
	})

	t.Run("call", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/vishing/analyze-call", testTenant, CallRequest{
			DurationSeconds: 95,
			Transcript:      "This is the bank fraud department. Read me the OTP to secure your account immediately.",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if resp.Channel != domain.ChannelVoice {
			t.Errorf("Expected channel voice, got %s", resp.Channel)
		}
		if resp.RiskScore < 0 || resp.RiskScore > 100 {
			t.Errorf("Score %v out of range", resp.RiskScore)
		}
	})
}

func TestAnalyzeValidation(t *testing.T) {
	server, _ := createTestServer(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"invalid json", "/api/phishing/scan", "{not json", http.StatusBadRequest},
		{"empty body", "/api/phishing/scan", nil, http.StatusBadRequest},
		{"empty url", "/api/phishing/scan", ScanRequest{URL: "  "}, http.StatusBadRequest},
		{"empty email", "/api/phishing/analyze-email", EmailRequest{Sender: "a@b.com"}, http.StatusBadRequest},
		{"empty sms", "/api/smishing/analyze-sms", SMSRequest{Sender: "+15550100"}, http.StatusBadRequest},
		{"negative duration", "/api/vishing/analyze-call", CallRequest{DurationSeconds: -1, Transcript: "hi"}, http.StatusBadRequest},
		{"empty call", "/api/vishing/analyze-call", CallRequest{DurationSeconds: 10}, http.StatusBadRequest},
		{"unknown field", "/api/phishing/scan", `{"url":"https://example.com","extra":1}`, http.StatusOK},
		{"oversized body", "/api/smishing/analyze-sms", `{"content":"` + strings.Repeat("a", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, http.MethodPost, tt.path, testTenant, tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAnalysesHistory(t *testing.T) {
	server, _ := createTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/smishing/analyze-sms", testTenant, SMSRequest{
		Content: "URGENT: Your SBI account will be blocked. Share OTP to verify.",
		Sender:  "VM-SBIBNK",
	})
	var first AnalyzeResponse
	decodeBody(t, w, &first)

	doRequest(t, server, http.MethodPost, "/api/phishing/scan", testTenant, ScanRequest{URL: "https://www.google.com"})

	t.Run("get", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/analyses/"+first.AnalysisID, testTenant, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var a domain.Analysis
		decodeBody(t, w, &a)
		if a.ID != first.AnalysisID || a.TenantID != testTenant {
			t.Errorf("Unexpected analysis %s/%s", a.TenantID, a.ID)
		}
		if a.Subject != "VM-SBIBNK" {
			t.Errorf("Expected subject to be the sender, got %q", a.Subject)
		}
		if a.Verdict.RiskLevel != domain.RiskDangerous {
			t.Errorf("Expected stored DANGEROUS verdict, got %s", a.Verdict.RiskLevel)
		}
		if len(a.Signals) == 0 {
			t.Error("Expected stored signals")
		}
	})

	t.Run("tenant isolation", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/analyses/"+first.AnalysisID, "tenant-b", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}

		w = doRequest(t, server, http.MethodGet, "/api/analyses", "tenant-b", nil)
		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, w, &resp)
		if resp.Count != 0 {
			t.Errorf("Expected no analyses for tenant-b, got %d", resp.Count)
		}
	})

	t.Run("list", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/analyses", testTenant, nil)
		var resp struct {
			Analyses []domain.Analysis `json:"analyses"`
			Count    int               `json:"count"`
		}
		decodeBody(t, w, &resp)
		if resp.Count != 2 {
			t.Fatalf("Expected 2 analyses, got %d", resp.Count)
		}
		if resp.Analyses[0].Channel != domain.ChannelURL {
			t.Errorf("Expected newest first, got %s", resp.Analyses[0].Channel)
		}
	})

	t.Run("filter", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/analyses?channel=sms&riskLevel=dangerous", testTenant, nil)
		var resp struct {
			Analyses []domain.Analysis `json:"analyses"`
			Count    int               `json:"count"`
		}
		decodeBody(t, w, &resp)
		if resp.Count != 1 || resp.Analyses[0].ID != first.AnalysisID {
			t.Errorf("Expected only the sms analysis, got %d", resp.Count)
		}
	})

	t.Run("bad filters", func(t *testing.T) {
		for _, q := range []string{"channel=fax", "riskLevel=maybe", "limit=-1", "limit=abc"} {
			w := doRequest(t, server, http.MethodGet, "/api/analyses?"+q, testTenant, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected status 400, got %d", q, w.Code)
			}
		}
	})

	t.Run("missing", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/analyses/nope", testTenant, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestEnqueueAnalysis(t *testing.T) {
	server, opts := createTestServer(t)

	received := make(chan domain.AnalysisRequest, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if _, err := opts.Bus.Subscribe(ctx, testTenant, domain.TopicAnalysisRequested, func(_ context.Context, msg *domain.Message) error {
		var req domain.AnalysisRequest
		if err := bus.Decode(msg, &req); err != nil {
			return err
		}
		received <- req
		return nil
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	w := doRequest(t, server, http.MethodPost, "/api/analyses", testTenant,
		domain.NewSMSInput("Share OTP to verify", ""))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["status"] != "queued" || resp["analysisId"] == "" {
		t.Errorf("Unexpected response %v", resp)
	}

	select {
	case req := <-received:
		if req.ID != resp["analysisId"] {
			t.Errorf("Expected request %s, got %s", resp["analysisId"], req.ID)
		}
		if req.Input.Channel != domain.ChannelSMS {
			t.Errorf("Expected sms input, got %s", req.Input.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for analysis request")
	}

	t.Run("invalid channel", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/analyses", testTenant, `{"channel":"fax","text":"hi"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("no bus", func(t *testing.T) {
		bare := NewServer(domain.ServerConfig{}, nil, Options{})
		w := doRequest(t, bare, http.MethodPost, "/api/analyses", testTenant, domain.NewURLInput("https://example.com"))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})

	t.Run("no worker", func(t *testing.T) {
		idle, _ := createTestServer(t)
		w := doRequest(t, idle, http.MethodPost, "/api/analyses", testTenant, domain.NewURLInput("https://example.com"))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected status 503, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "no analysis worker") {
			t.Errorf("Unexpected body %s", w.Body.String())
		}
	})
}

func TestBlockedURL(t *testing.T) {
	server, _ := createTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/phishing/scan", testTenant, ScanRequest{URL: "http://evil.example/x"})
	var before AnalyzeResponse
	decodeBody(t, w, &before)
	if before.RiskLevel != domain.RiskSafe {
		t.Fatalf("Expected SAFE before blocking, got %s (%.1f)", before.RiskLevel, before.RiskScore)
	}

	w = doRequest(t, server, http.MethodPost, "/api/indicators", testTenant, IndicatorRequest{
		Type:  domain.IndicatorURL,
		Value: "http://evil.example/x",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, server, http.MethodPost, "/api/phishing/scan", testTenant, ScanRequest{URL: "HTTP://Evil.Example/x#login"})
	var after AnalyzeResponse
	decodeBody(t, w, &after)
	if after.RiskLevel != domain.RiskDangerous {
		t.Errorf("Expected DANGEROUS for a blocked URL, got %s (%.1f)", after.RiskLevel, after.RiskScore)
	}
	found := false
	for _, ind := range after.Indicators {
		if strings.HasPrefix(ind, "Known malicious URL") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected url reputation indicator, got %v", after.Indicators)
	}
}

func TestIndicators(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("block changes verdict", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/indicators", testTenant, IndicatorRequest{
			Type:  domain.IndicatorPhone,
			Value: "+1 (555) 010-0999",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		var ind domain.ThreatIndicator
		decodeBody(t, w, &ind)
		if ind.Value != "+15550100999" || ind.Source != "manual" {
			t.Errorf("Unexpected indicator %+v", ind)
		}

		w = doRequest(t, server, http.MethodPost, "/api/smishing/analyze-sms", testTenant, SMSRequest{
			Content: "Hey, are we still meeting for lunch tomorrow?",
			Sender:  "+1 555 010 0999",
		})
		var resp AnalyzeResponse
		decodeBody(t, w, &resp)
		if resp.RiskLevel != domain.RiskDangerous {
			t.Errorf("Expected DANGEROUS from a blocked sender, got %s (%.1f)", resp.RiskLevel, resp.RiskScore)
		}
		if len(resp.Indicators) == 0 || !strings.HasPrefix(resp.Indicators[0], "Known malicious sender") {
			t.Errorf("Expected sender reputation indicator, got %v", resp.Indicators)
		}
	})

	t.Run("get", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/indicators/phone/+15550100999", testTenant, nil)
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		doRequest(t, server, http.MethodPost, "/api/indicators", testTenant, IndicatorRequest{
			Type: domain.IndicatorDomain, Value: "Evil-Login.TK",
		})
		w := doRequest(t, server, http.MethodGet, "/api/indicators/stats", testTenant, nil)
		var st intel.Stats
		decodeBody(t, w, &st)
		if st.Total != 2 || st.ByType[domain.IndicatorDomain] != 1 {
			t.Errorf("Unexpected stats %+v", st)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/indicators", testTenant, IndicatorRequest{Type: "ip", Value: "1.2.3.4"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		w := doRequest(t, server, http.MethodDelete, "/api/indicators/domain/evil-login.tk", testTenant, nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", w.Code)
		}
		w = doRequest(t, server, http.MethodGet, "/api/indicators/domain/evil-login.tk", testTenant, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 after delete, got %d", w.Code)
		}
		w = doRequest(t, server, http.MethodDelete, "/api/indicators/domain/evil-login.tk", testTenant, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 on second delete, got %d", w.Code)
		}
	})
}

func TestCheckDomain(t *testing.T) {
	server, _ := createTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/domains", testTenant, DomainRequest{
		Domain:       "Fresh-Login.xyz",
		Registrar:    "example registrar",
		RegisteredAt: time.Now().Add(-73 * time.Hour),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	doRequest(t, server, http.MethodPost, "/api/indicators", testTenant, IndicatorRequest{
		Type: domain.IndicatorDomain, Value: "fresh-login.xyz", Source: "feed",
	})

	w = doRequest(t, server, http.MethodGet, "/api/phishing/check-domain?domain=secure.fresh-login.xyz", testTenant, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp DomainCheckResponse
	decodeBody(t, w, &resp)
	if resp.Registrable != "fresh-login.xyz" {
		t.Errorf("Expected registrable fresh-login.xyz, got %q", resp.Registrable)
	}
	if resp.Reputation == nil || !resp.Reputation.KnownThreat || resp.Reputation.Source != "feed" {
		t.Errorf("Expected known threat from feed, got %+v", resp.Reputation)
	}
	if resp.Age == nil || !resp.Age.Known || resp.Age.Days != 3 {
		t.Errorf("Expected 3 day old domain, got %+v", resp.Age)
	}
	if len(resp.Unavailable) != 0 {
		t.Errorf("Expected all lookups available, got %v", resp.Unavailable)
	}

	t.Run("missing domain", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/phishing/check-domain", testTenant, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("registration requires date", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/domains", testTenant, DomainRequest{Domain: "x.com"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestReports(t *testing.T) {
	server, _ := createTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/reports", testTenant, ReportRequest{
		Channel:        domain.ChannelSMS,
		IndicatorType:  domain.IndicatorPhone,
		IndicatorValue: "+1 555 010 0777",
		Description:    "fake bank OTP request",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var rep domain.Report
	decodeBody(t, w, &rep)
	if rep.IndicatorValue != "+15550100777" || rep.TenantID != testTenant {
		t.Errorf("Unexpected report %+v", rep)
	}

	t.Run("list", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/reports", testTenant, nil)
		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, w, &resp)
		if resp.Count != 1 {
			t.Errorf("Expected 1 report, got %d", resp.Count)
		}

		w = doRequest(t, server, http.MethodGet, "/api/reports", "tenant-b", nil)
		decodeBody(t, w, &resp)
		if resp.Count != 0 {
			t.Errorf("Expected no reports for tenant-b, got %d", resp.Count)
		}
	})

	t.Run("upvote promotes", func(t *testing.T) {
		path := "/api/reports/" + rep.ID + "/upvote"

		w := doRequest(t, server, http.MethodPost, path, testTenant, nil)
		var got domain.Report
		decodeBody(t, w, &got)
		if got.Upvotes != 1 || got.Promoted {
			t.Errorf("After one vote: %+v", got)
		}

		w = doRequest(t, server, http.MethodPost, path, testTenant, nil)
		decodeBody(t, w, &got)
		if got.Upvotes != 2 || !got.Promoted {
			t.Errorf("After two votes: %+v", got)
		}

		w = doRequest(t, server, http.MethodGet, "/api/indicators/phone/+15550100777", testTenant, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected promoted indicator, got status %d", w.Code)
		}
		var ind domain.ThreatIndicator
		decodeBody(t, w, &ind)
		if ind.Source != intel.SourceCommunity {
			t.Errorf("Expected community source, got %s", ind.Source)
		}
	})

	t.Run("upvote other tenant", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/reports/"+rep.ID+"/upvote", "tenant-b", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, req := range []ReportRequest{
			{Channel: "fax", IndicatorType: domain.IndicatorPhone, IndicatorValue: "123"},
			{Channel: domain.ChannelURL, IndicatorType: "ip", IndicatorValue: "1.2.3.4"},
			{Channel: domain.ChannelEmail, IndicatorType: domain.IndicatorEmail, IndicatorValue: "not an address"},
		} {
			w := doRequest(t, server, http.MethodPost, "/api/reports", testTenant, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%+v: expected status 400, got %d", req, w.Code)
			}
		}
	})
}

func TestMiddlewareHeaders(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("request and trace ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		server.Router().ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("Expected request ID echoed, got %q", got)
		}
		if w.Header().Get(TraceIDHeader) == "" {
			t.Error("Expected trace ID header")
		}
	})

	t.Run("generated request id", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/health", "", nil)
		if w.Header().Get(RequestIDHeader) == "" {
			t.Error("Expected a generated request ID")
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/phishing/scan", nil)
		req.Header.Set("Origin", "https://console.example.com")
		w := httptest.NewRecorder()
		server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Expected status 204, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
			t.Errorf("Unexpected allowed origin %q", got)
		}
		if w.Header().Get("Access-Control-Allow-Credentials") != "" {
			t.Error("Credentials must not be allowed")
		}
	})
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestAccessLog(t *testing.T) {
	server, _ := createTestServer(t)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	const content = "URGENT: Your SBI account will be blocked. Share OTP to verify."
	w := doRequest(t, server, http.MethodPost, "/api/smishing/analyze-sms", testTenant, map[string]string{"content": content})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp AnalyzeResponse
	decodeBody(t, w, &resp)

	var line map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(raw, &entry) == nil && entry["msg"] == "http request" {
			line = entry
		}
	}
	if line == nil {
		t.Fatalf("No access log line in:\n%s", logs.String())
	}
	if line["tenant_id"] != testTenant || line["analysis_id"] != resp.AnalysisID || line["risk_level"] != "DANGEROUS" {
		t.Errorf("Unexpected access log %v", line)
	}
	if strings.Contains(logs.String(), "Share OTP") {
		t.Error("Message content must not be logged")
	}
}
