package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/worker"
)

// ============================================================================
// ANALYSIS HANDLERS
// ============================================================================

// ScanRequest is the request body for POST /api/phishing/scan.
type ScanRequest struct {
	URL string `json:"url"`
}

// EmailRequest is the request body for POST /api/phishing/analyze-email.
type EmailRequest struct {
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	RawHeaders string `json:"rawHeaders,omitempty"`
}

// SMSRequest is the request body for POST /api/smishing/analyze-sms.
type SMSRequest struct {
	Content string `json:"content"`
	Sender  string `json:"sender,omitempty"`
}

// CallRequest is the request body for POST /api/vishing/analyze-call.
type CallRequest struct {
	DurationSeconds float64        `json:"durationSeconds"`
	Transcript      string         `json:"transcript"`
	AudioFeatures   map[string]any `json:"audioFeatures,omitempty"`
	VoiceAnalysis   map[string]any `json:"voiceAnalysis,omitempty"`
}

// AnalyzeResponse is a verdict with the identifiers of the stored analysis.
// Signals are included when the request asks for ?explain=true.
type AnalyzeResponse struct {
	AnalysisID string `json:"analysisId"`
	domain.Verdict
	Signals  []domain.EvaluatedSignal `json:"signals,omitempty"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// ScanURL handles POST /api/phishing/scan.
func (h *Handler) ScanURL(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	h.analyze(w, r, domain.NewURLInput(req.URL))
}

// AnalyzeEmail handles POST /api/phishing/analyze-email.
func (h *Handler) AnalyzeEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Body) == "" && strings.TrimSpace(req.Subject) == "" {
		writeError(w, http.StatusBadRequest, "subject or body is required")
		return
	}
	h.analyze(w, r, domain.NewEmailInput(req.Sender, req.Subject, req.Body, req.RawHeaders))
}

// AnalyzeSMS handles POST /api/smishing/analyze-sms.
func (h *Handler) AnalyzeSMS(w http.ResponseWriter, r *http.Request) {
	var req SMSRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	h.analyze(w, r, domain.NewSMSInput(req.Content, req.Sender))
}

// AnalyzeCall handles POST /api/vishing/analyze-call.
func (h *Handler) AnalyzeCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DurationSeconds < 0 {
		writeError(w, http.StatusBadRequest, "durationSeconds must not be negative")
		return
	}
	if strings.TrimSpace(req.Transcript) == "" && len(req.AudioFeatures) == 0 && len(req.VoiceAnalysis) == 0 {
		writeError(w, http.StatusBadRequest, "transcript or audio measurements are required")
		return
	}
	h.analyze(w, r, domain.NewVoiceInput(req.DurationSeconds, req.Transcript, req.AudioFeatures, req.VoiceAnalysis))
}

// analyze runs the engine synchronously, stores the analysis and responds.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, in domain.RawInput) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	exp := h.engine.Explain(ctx, in)

	analysis := &domain.Analysis{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Channel:   in.Channel,
		Subject:   in.Summary(),
		Verdict:   exp.Verdict,
		Signals:   exp.Signals,
		CreatedAt: time.Now().UTC(),
	}

	if h.opts.Repo != nil {
		if err := h.opts.Repo.SaveAnalysis(ctx, tenantID, analysis); err != nil {
			slog.Error("failed to save analysis",
				"analysis_id", analysis.ID,
				"channel", in.Channel,
				"error", err,
			)
		}
	}

	resp := AnalyzeResponse{
		AnalysisID: analysis.ID,
		Verdict:    exp.Verdict,
	}
	if r.URL.Query().Get("explain") == "true" {
		resp.Signals = exp.Signals
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.opts.Version

	annotateAnalysis(ctx, analysis.ID, exp.Verdict.RiskLevel)
	writeJSON(w, http.StatusOK, resp)
}

// EnqueueAnalysis handles POST /api/analyses. The input is analysed by a
// worker and its verdict is published on the verdict topic.
func (h *Handler) EnqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.opts.Bus == nil {
		writeUnavailable(w, "event bus")
		return
	}

	var in domain.RawInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if !in.Channel.Valid() {
		writeError(w, http.StatusBadRequest, "channel must be one of url, email, sms, voice")
		return
	}

	id, err := worker.Enqueue(r.Context(), h.opts.Bus, GetTenantID(r.Context()), in)
	switch {
	case errors.Is(err, bus.ErrNoConsumer):
		writeError(w, http.StatusServiceUnavailable, "no analysis worker is running")
		return
	case errors.Is(err, bus.ErrDropped):
		writeError(w, http.StatusServiceUnavailable, "analysis queue is full, retry later")
		return
	case err != nil:
		slog.Error("failed to enqueue analysis", "channel", in.Channel, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue analysis")
		return
	}

	annotateAnalysis(r.Context(), id, "")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"analysisId": id,
		"status":     "queued",
	})
}

// ListAnalyses handles GET /api/analyses.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	if h.opts.Repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	q := r.URL.Query()
	filter := domain.AnalysisFilter{
		Channel:   domain.Channel(q.Get("channel")),
		RiskLevel: domain.RiskLevel(strings.ToUpper(q.Get("riskLevel"))),
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}
	switch filter.RiskLevel {
	case "", domain.RiskSafe, domain.RiskSuspicious, domain.RiskDangerous:
	default:
		writeError(w, http.StatusBadRequest, "unknown riskLevel")
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	filter.Limit = limit

	analyses, err := h.opts.Repo.ListAnalyses(r.Context(), GetTenantID(r.Context()), filter)
	if err != nil {
		writeStoreError(w, err, "analyses")
		return
	}
	if analyses == nil {
		analyses = []*domain.Analysis{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GetAnalysis handles GET /api/analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.opts.Repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	a, err := h.opts.Repo.GetAnalysis(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "analysis")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
