package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/token"
	"github.com/rendis/fastconfig/pkg/schema"
)

const requestIDHeader = "X-Request-ID"

type adminKey struct{}

// requestID propagates or assigns a request id and stores it in the context.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// accessLog logs one line per request and feeds the request metrics.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		s.deps.Metrics.ObserveRequest(route, r.Method, status, elapsed)

		logging.LogWith(r.Context(), s.deps.Logger).Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", elapsed),
		)
	})
}

// adminAuth requires a valid admin session token.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Admin == nil {
			s.writeError(w, r, schema.NewError(schema.ErrCodeUnauthorized, "admin auth not configured"))
			return
		}
		raw, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			s.writeError(w, r, schema.NewError(schema.ErrCodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := s.deps.Admin.Verify(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, claims)))
	})
}

// actor names the admin behind a request, for history records.
func actor(r *http.Request, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if claims, ok := r.Context().Value(adminKey{}).(*token.AdminClaims); ok {
		return claims.Subject
	}
	return ""
}

func bearer(header string) (string, bool) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}
