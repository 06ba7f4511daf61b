package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	serviceCodeKey
	envKey
)

// WithRequestID returns a context with the request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithServiceCode returns a context with the service code set.
func WithServiceCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, serviceCodeKey, code)
}

// WithEnv returns a context with the environment set.
func WithEnv(ctx context.Context, env string) context.Context {
	return context.WithValue(ctx, envKey, env)
}

// RequestID extracts the request ID from the context, or "" if absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// ServiceCode extracts the service code from the context, or "" if absent.
func ServiceCode(ctx context.Context) string {
	v, _ := ctx.Value(serviceCodeKey).(string)
	return v
}

// Env extracts the environment from the context, or "" if absent.
func Env(ctx context.Context) string {
	v, _ := ctx.Value(envKey).(string)
	return v
}

// WithTarget sets service code and environment at once.
func WithTarget(ctx context.Context, serviceCode, env string) context.Context {
	ctx = WithServiceCode(ctx, serviceCode)
	return WithEnv(ctx, env)
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if v := RequestID(ctx); v != "" {
		logger = logger.With(slog.String("request_id", v))
	}
	if v := ServiceCode(ctx); v != "" {
		logger = logger.With(slog.String("service_code", v))
	}
	if v := Env(ctx); v != "" {
		logger = logger.With(slog.String("env", v))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := RequestID(ctx); v != "" {
		r.AddAttrs(slog.String("request_id", v))
	}
	if v := ServiceCode(ctx); v != "" {
		r.AddAttrs(slog.String("service_code", v))
	}
	if v := Env(ctx); v != "" {
		r.AddAttrs(slog.String("env", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
