package pull

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rendis/fastconfig/internal/configstore"
	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/internal/token"
	"github.com/rendis/fastconfig/pkg/schema"
)

// TokenVerifier checks pull tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw, serviceCode, env string) (*token.PullClaims, error)
}

// AccessGuard decides whether a client address may pull.
type AccessGuard interface {
	IsAllowed(ctx context.Context, serviceID, env, ip string) (bool, error)
}

// Lookup is the read side of the store used on the pull path.
type Lookup interface {
	GetServiceByCode(ctx context.Context, code string) (*store.Service, error)
	GetConfigByServiceEnv(ctx context.Context, serviceID, env string) (*store.Config, error)
}

// Observer records pull outcomes.
type Observer interface {
	ObservePull(notModified bool, err error, d time.Duration)
}

// Request is one pull attempt.
type Request struct {
	ServiceCode   string
	Env           string
	Authorization string
	ClientIP      string
	IfNoneMatch   string
}

// Result is a served pull. When NotModified is set only ETag is populated.
type Result struct {
	NotModified bool
	ETag        string
	Response    *schema.PullResponse
}

// Gateway answers pull requests.
type Gateway struct {
	verifier TokenVerifier
	guard    AccessGuard
	lookup   Lookup
	observer Observer
	logger   *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithObserver attaches an outcome observer.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a Gateway.
func NewGateway(v TokenVerifier, guard AccessGuard, lookup Lookup, opts ...Option) *Gateway {
	g := &Gateway{verifier: v, guard: guard, lookup: lookup, logger: logging.Discard()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Pull authenticates the caller, checks the client address and returns the
// current config, or NotModified when the caller already holds it. The
// token is verified before anything about the service or config is read.
func (g *Gateway) Pull(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	ctx = logging.WithTarget(ctx, req.ServiceCode, req.Env)
	var raw string
	defer func() {
		if g.observer != nil {
			g.observer.ObservePull(res != nil && res.NotModified, err, time.Since(start))
		}
		if err != nil {
			logging.LogWith(ctx, g.logger).Info("pull rejected",
				"client_ip", req.ClientIP, "error_code", schema.CodeOf(err), "reason", logging.Redact(err.Error(), raw))
		}
	}()

	tok, ok := bearerToken(req.Authorization)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeUnauthorized, "missing bearer token")
	}
	raw = tok
	if _, err := g.verifier.Verify(ctx, raw, req.ServiceCode, req.Env); err != nil {
		return nil, err
	}

	svc, err := g.lookup.GetServiceByCode(ctx, req.ServiceCode)
	if err != nil {
		return nil, err
	}
	allowed, err := g.guard.IsAllowed(ctx, svc.ID, req.Env, req.ClientIP)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, schema.NewError(schema.ErrCodeForbidden, "ip not allowed")
	}

	cfg, err := g.lookup.GetConfigByServiceEnv(ctx, svc.ID, req.Env)
	if err != nil {
		return nil, err
	}

	etag := cfg.Version
	if matchesETag(req.IfNoneMatch, etag) {
		return &Result{NotModified: true, ETag: etag}, nil
	}

	content, err := configstore.DecodeContent(cfg.Content)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "content parse failed").WithCause(err)
	}
	return &Result{
		ETag: etag,
		Response: &schema.PullResponse{
			ServiceCode: svc.Code,
			Env:         cfg.Env,
			Format:      cfg.Format,
			Version:     cfg.Version,
			MediaType:   schema.MediaTypeJSON,
			ETag:        etag,
			Content:     content,
		},
	}, nil
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// matchesETag compares an If-None-Match value against etag. Weak
// validators and surrounding quotes are ignored; "*" and lists are honored.
func matchesETag(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if normalizeETag(candidate) == etag {
			return true
		}
	}
	return false
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}
