package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/rendis/fastconfig/internal/configstore"
	"github.com/rendis/fastconfig/internal/identity"
	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/metrics"
	"github.com/rendis/fastconfig/internal/netguard"
	"github.com/rendis/fastconfig/internal/pull"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/internal/token"
	"github.com/rendis/fastconfig/pkg/schema"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 1 << 20

// Deps holds the dependencies for the HTTP server.
type Deps struct {
	Store    store.Store
	Services *identity.Manager
	Tokens   *token.Issuer
	Guard    *netguard.Guard
	Configs  *configstore.Store
	Gateway  *pull.Gateway
	Admin    *token.AdminAuth
	Resolver *netguard.Resolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins   []string
	PullRateLimit int // requests per minute per client IP; 0 disables
}

// Server serves the admin and pull APIs.
type Server struct {
	deps Deps
	opts Options
}

// NewServer creates a Server.
func NewServer(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Resolver == nil {
		deps.Resolver = &netguard.Resolver{}
	}
	return &Server{deps: deps, opts: opts}
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "If-None-Match", "X-Request-ID"},
			ExposedHeaders:   []string{"ETag", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Public.
	r.Get("/api/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}
	r.Post("/api/v1/auth/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		if s.opts.PullRateLimit > 0 {
			r.Use(httprate.Limit(
				s.opts.PullRateLimit,
				time.Minute,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return s.deps.Resolver.ClientIP(r), nil
				}),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusTooManyRequests,
						schema.Fail(http.StatusTooManyRequests, "rate limit exceeded", nil))
				}),
			))
		}
		r.Get("/api/v1/pull/{service}/{env}", s.handlePull)
	})

	// Admin.
	r.Group(func(r chi.Router) {
		r.Use(s.adminAuth)

		r.Get("/api/v1/services", s.handleListServices)
		r.Post("/api/v1/services", s.handleCreateService)
		r.Delete("/api/v1/services/{code}", s.handleDeleteService)

		r.Get("/api/v1/services/{code}/credentials", s.handleListCredentials)
		r.Post("/api/v1/services/{code}/credentials", s.handleIssueCredential)
		r.Post("/api/v1/services/{code}/credentials/{ak}/disable", s.handleDisableCredential)

		r.Post("/api/v1/services/{code}/envs/{env}/token", s.handleIssueToken)
		r.Get("/api/v1/services/{code}/tokens", s.handleListTokens)
		r.Delete("/api/v1/services/{code}/tokens/{id}", s.handleRevokeToken)

		r.Get("/api/v1/services/{code}/allow-rules", s.handleListAllowRules)
		r.Post("/api/v1/services/{code}/allow-rules", s.handleCreateAllowRule)
		r.Delete("/api/v1/services/{code}/allow-rules/{id}", s.handleDeleteAllowRule)

		r.Get("/api/v1/configs", s.handleListConfigs)
		r.Post("/api/v1/configs", s.handleCreateConfig)
		r.Post("/api/v1/configs/import", s.handleImportConfig)
		r.Get("/api/v1/configs/{id}", s.handleGetConfig)
		r.Put("/api/v1/configs/{id}", s.handleUpdateConfig)
		r.Get("/api/v1/configs/{id}/versions", s.handleListVersions)
		r.Post("/api/v1/configs/{id}/rollback", s.handleRollback)
		r.Get("/api/v1/configs/{id}/diff", s.handleDiff)
	})

	return r
}
