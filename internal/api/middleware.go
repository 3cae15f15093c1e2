package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/escrow-hub/internal/escrow"
)

const (
	// CorrelationIDHeader carries the request correlation id end to end.
	CorrelationIDHeader = "X-Correlation-ID"

	// CallerHeader is set by the fronting gateway after it authenticates the
	// request; the service trusts it as the host-provided caller identity.
	CallerHeader = "X-Escrow-Account"
)

type correlationIDKey struct{}

type callerKey struct{}

// CorrelationID assigns each request a correlation id, honoring one supplied
// by the client.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CorrelationIDHeader)
		if cid == "" {
			cid = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), correlationIDKey{}, cid)
		w.Header().Set(CorrelationIDHeader, cid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFromContext returns the request correlation id, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return s
	}
	return ""
}

// CallerIdentity extracts the authenticated account from the gateway header.
// Handlers that need a caller reject requests without one.
func CallerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := escrow.AccountID(r.Header.Get(CallerHeader))
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) escrow.AccountID {
	if a, ok := ctx.Value(callerKey{}).(escrow.AccountID); ok {
		return a
	}
	return ""
}

// requireCaller writes a 401 and returns false when the gateway supplied no
// account identity.
func requireCaller(w http.ResponseWriter, r *http.Request) (escrow.AccountID, bool) {
	caller := callerFromContext(r.Context())
	if caller == "" {
		writeError(w, r, http.StatusUnauthorized, "missing_caller")
		return "", false
	}
	return caller, true
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request and feeds the Prometheus request
// metrics.
func RequestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			httpReqTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(sw.status)).Inc()
			httpLatency.WithLabelValues(r.Method, endpoint).Observe(dur.Seconds())

			l.Info("http_request",
				"cid", CorrelationIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", dur.Milliseconds(),
			)
		})
	}
}

// AuditMiddleware appends one journal record per handled request.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			payload := fmt.Sprintf("cid=%s caller=%s method=%s path=%s status=%d",
				CorrelationIDFromContext(r.Context()),
				callerFromContext(r.Context()),
				r.Method, r.URL.Path, sw.status,
			)
			a.Append(payload)
		})
	}
}
