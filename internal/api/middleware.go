package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/sentinel/internal/domain"
)

const (
	TenantIDHeader  = "X-Tenant-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

var tracer = otel.Tracer("sentinel-api")

// Tenant IDs become cache keys and NATS subject tokens.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// requestInfo is filled in as a request moves through the stack and read
// back by the access log and the server span. Message content never goes
// in here.
type requestInfo struct {
	requestID  string
	traceID    string
	tenantID   string
	analysisID string
	riskLevel  domain.RiskLevel
}

type infoKey struct{}

// withInfo returns the request's info, attaching a fresh one if an outer
// middleware has not.
func withInfo(r *http.Request) (*requestInfo, *http.Request) {
	if info, ok := r.Context().Value(infoKey{}).(*requestInfo); ok {
		return info, r
	}
	info := &requestInfo{}
	return info, r.WithContext(context.WithValue(r.Context(), infoKey{}, info))
}

func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(infoKey{}).(*requestInfo); ok {
		return info
	}
	return &requestInfo{}
}

// annotateAnalysis records the outcome of an analysis request for logging
// and tracing.
func annotateAnalysis(ctx context.Context, analysisID string, level domain.RiskLevel) {
	info := infoFrom(ctx)
	info.analysisID = analysisID
	info.riskLevel = level
}

// GetTenantID returns the tenant admitted by TenantMiddleware.
func GetTenantID(ctx context.Context) string {
	return infoFrom(ctx).tenantID
}

// GetTraceID returns the trace ID assigned by TracingMiddleware.
func GetTraceID(ctx context.Context) string {
	return infoFrom(ctx).traceID
}

// TenantMiddleware admits requests carrying a valid X-Tenant-ID. The
// reserved global scope cannot be claimed by a caller.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantIDHeader)
		switch {
		case tenantID == "":
			writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		case !tenantPattern.MatchString(tenantID) || tenantID == domain.GlobalTenant:
			writeError(w, http.StatusBadRequest, "X-Tenant-ID must be 1-64 letters, digits, '-' or '_'")
			return
		}

		info, r := withInfo(r)
		info.tenantID = tenantID
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("tenant.id", tenantID))

		next.ServeHTTP(w, r)
	})
}

// TracingMiddleware opens a server span per request and echoes request and
// trace IDs. Without an exporter the trace ID falls back to the request ID.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, r := withInfo(r)
		info.requestID = r.Header.Get(RequestIDHeader)
		if info.requestID == "" {
			info.requestID = uuid.NewString()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", info.requestID),
			),
		)
		defer span.End()

		info.traceID = info.requestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			info.traceID = sc.TraceID().String()
		}
		w.Header().Set(RequestIDHeader, info.requestID)
		w.Header().Set(TraceIDHeader, info.traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := statusOf(ww)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if info.analysisID != "" {
			span.SetAttributes(attribute.String("sentinel.analysis_id", info.analysisID))
		}
		if info.riskLevel != "" {
			span.SetAttributes(attribute.String("sentinel.risk_level", string(info.riskLevel)))
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// LoggingMiddleware writes one access log line per request. Verdict level
// and analysis ID are included for analysis endpoints.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info, r := withInfo(r)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", statusOf(ww),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", info.requestID,
			"trace_id", info.traceID,
		}
		if info.tenantID != "" {
			attrs = append(attrs, "tenant_id", info.tenantID)
		}
		if info.analysisID != "" {
			attrs = append(attrs, "analysis_id", info.analysisID)
		}
		if info.riskLevel != "" {
			attrs = append(attrs, "risk_level", info.riskLevel)
		}
		slog.Info("http request", attrs...)
	})
}

// CORSMiddleware lets browser consoles call the API. The caller's origin
// is echoed; credentials are never allowed.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		} else {
			w.Header().Add("Vary", "Origin")
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TenantIDHeader+", "+RequestIDHeader+", "+TraceIDHeader)
		h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+TraceIDHeader)
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware turns a handler panic into a 500 and logs the stack.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, r := withInfo(r)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			slog.Error("panic recovered",
				"error", rec,
				"path", r.URL.Path,
				"request_id", info.requestID,
				"stack", string(debug.Stack()),
			)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// statusOf reports 200 for handlers that wrote a body without a header.
func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
