package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK wraps data in a success envelope.
func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, schema.OK(data))
}

// writeError maps err to a status and writes a failure envelope. Server-side
// causes are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := schema.HTTPStatus(err)
	code := schema.CodeOf(err)
	if code == "" {
		code = schema.ErrCodeInternal
	}

	data := map[string]any{"error_code": code}
	var fcErr *schema.Error
	if status < http.StatusInternalServerError && errors.As(err, &fcErr) {
		for k, v := range fcErr.Details {
			data[k] = v
		}
	}

	logger := logging.LogWith(r.Context(), s.deps.Logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error_code", code), slog.String("error", err.Error()))
	} else {
		logger.Debug("request rejected", slog.String("error_code", code), slog.String("error", err.Error()))
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, schema.Fail(status, schema.PublicMessage(err), data))
}

// decodeJSON reads a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return schema.NewError(schema.ErrCodeBadRequest, "request body is required")
		}
		return schema.NewError(schema.ErrCodeBadRequest, fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
