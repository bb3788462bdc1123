package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/intel"
	"github.com/opensource-finance/sentinel/internal/signals"
)

// ============================================================================
// THREAT INTELLIGENCE HANDLERS
// ============================================================================

// IndicatorRequest is the request body for POST /api/indicators.
type IndicatorRequest struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Source   string `json:"source,omitempty"`
	Severity string `json:"severity,omitempty"`
	Details  string `json:"details,omitempty"`
}

// DomainRequest is the request body for POST /api/domains.
type DomainRequest struct {
	Domain       string    `json:"domain"`
	Registrar    string    `json:"registrar,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// DomainCheckResponse is the response for GET /api/phishing/check-domain.
type DomainCheckResponse struct {
	Domain      string               `json:"domain"`
	Registrable string               `json:"registrable,omitempty"`
	Reputation  *domain.LookupResult `json:"reputation,omitempty"`
	Age         *domain.AgeResult    `json:"age,omitempty"`
	Unavailable []string             `json:"unavailable,omitempty"`
}

// ReportRequest is the request body for POST /api/reports.
type ReportRequest struct {
	Channel        domain.Channel `json:"channel"`
	IndicatorType  string         `json:"indicatorType"`
	IndicatorValue string         `json:"indicatorValue"`
	Description    string         `json:"description,omitempty"`
}

// BlockIndicator handles POST /api/indicators.
func (h *Handler) BlockIndicator(w http.ResponseWriter, r *http.Request) {
	if h.opts.Intel == nil {
		writeUnavailable(w, "threat intelligence")
		return
	}

	var req IndicatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ind := &domain.ThreatIndicator{
		Type:     req.Type,
		Value:    req.Value,
		Source:   req.Source,
		Severity: req.Severity,
		Details:  req.Details,
	}
	if err := h.opts.Intel.Block(r.Context(), ind); err != nil {
		writeStoreError(w, err, "indicator")
		return
	}

	writeJSON(w, http.StatusCreated, ind)
}

// GetIndicator handles GET /api/indicators/{type}/{value}.
func (h *Handler) GetIndicator(w http.ResponseWriter, r *http.Request) {
	if h.opts.Intel == nil {
		writeUnavailable(w, "threat intelligence")
		return
	}

	ind, err := h.opts.Intel.Get(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "value"))
	if err != nil {
		writeStoreError(w, err, "indicator")
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

// DeleteIndicator handles DELETE /api/indicators/{type}/{value}.
func (h *Handler) DeleteIndicator(w http.ResponseWriter, r *http.Request) {
	if h.opts.Intel == nil {
		writeUnavailable(w, "threat intelligence")
		return
	}

	if err := h.opts.Intel.Unblock(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "value")); err != nil {
		writeStoreError(w, err, "indicator")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IndicatorStats handles GET /api/indicators/stats.
func (h *Handler) IndicatorStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Intel == nil {
		writeUnavailable(w, "threat intelligence")
		return
	}

	st, err := h.opts.Intel.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err, "indicator stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RecordDomain handles POST /api/domains.
func (h *Handler) RecordDomain(w http.ResponseWriter, r *http.Request) {
	if h.opts.Intel == nil {
		writeUnavailable(w, "threat intelligence")
		return
	}

	var req DomainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RegisteredAt.IsZero() {
		writeError(w, http.StatusBadRequest, "registeredAt is required")
		return
	}
	host, err := intel.Normalize(domain.IndicatorDomain, req.Domain)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.opts.Intel.RecordRegistration(r.Context(), host, req.Registrar, req.RegisteredAt); err != nil {
		writeStoreError(w, err, "domain")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"domain": host})
}

// CheckDomain handles GET /api/phishing/check-domain?domain=.
// Lookups that fail are listed under "unavailable" instead of failing the request.
func (h *Handler) CheckDomain(w http.ResponseWriter, r *http.Request) {
	host, err := intel.Normalize(domain.IndicatorDomain, r.URL.Query().Get("domain"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "a valid domain query parameter is required")
		return
	}

	resp := DomainCheckResponse{Domain: host}
	if reg, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		resp.Registrable = reg
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*signals.DefaultLookupTimeout)
	defer cancel()

	if h.opts.Store != nil {
		if res, err := h.opts.Store.Lookup(ctx, domain.IndicatorDomain, host); err != nil {
			slog.Debug("domain reputation unavailable", "domain", host, "error", err)
			resp.Unavailable = append(resp.Unavailable, "reputation")
		} else {
			resp.Reputation = &res
		}
	}
	if h.opts.Ages != nil && resp.Registrable != "" {
		if res, err := h.opts.Ages.DomainAge(ctx, resp.Registrable); err != nil {
			slog.Debug("domain age unavailable", "domain", host, "error", err)
			resp.Unavailable = append(resp.Unavailable, "age")
		} else {
			resp.Age = &res
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// COMMUNITY REPORT HANDLERS
// ============================================================================

// SubmitReport handles POST /api/reports.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	if h.opts.Repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	var req ReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Channel.Valid() {
		writeError(w, http.StatusBadRequest, "channel must be one of url, email, sms, voice")
		return
	}
	if !domain.ValidIndicatorType(req.IndicatorType) {
		writeError(w, http.StatusBadRequest, "indicatorType must be one of url, domain, email, phone")
		return
	}
	value, err := intel.Normalize(req.IndicatorType, req.IndicatorValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep := &domain.Report{
		ID:             uuid.New().String(),
		TenantID:       GetTenantID(r.Context()),
		Channel:        req.Channel,
		IndicatorType:  req.IndicatorType,
		IndicatorValue: value,
		Description:    req.Description,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.opts.Repo.SaveReport(r.Context(), rep.TenantID, rep); err != nil {
		writeStoreError(w, err, "report")
		return
	}

	writeJSON(w, http.StatusCreated, rep)
}

// ListReports handles GET /api/reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.opts.Repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	reports, err := h.opts.Repo.ListReports(r.Context(), GetTenantID(r.Context()), limit)
	if err != nil {
		writeStoreError(w, err, "reports")
		return
	}
	if reports == nil {
		reports = []*domain.Report{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// UpvoteReport handles POST /api/reports/{id}/upvote. Reaching the
// promotion threshold blocks the reported indicator.
func (h *Handler) UpvoteReport(w http.ResponseWriter, r *http.Request) {
	if h.opts.Intel == nil {
		writeUnavailable(w, "threat intelligence")
		return
	}

	rep, err := h.opts.Intel.Upvote(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), h.opts.PromotionThreshold)
	if err != nil {
		writeStoreError(w, err, "report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
