package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable,
			schema.Fail(http.StatusServiceUnavailable, "store unavailable", map[string]string{"status": "degraded"}))
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.Admin == nil {
		s.writeError(w, r, schema.NewError(schema.ErrCodeUnauthorized, "admin login disabled"))
		return
	}
	tok, exp, err := s.deps.Admin.Login(body.Username, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"token": tok, "expires_at": exp})
}

// --- Services ---

type serviceCreated struct {
	Service    *store.Service           `json:"service"`
	Credential *schema.IssuedCredential `json:"credential"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.deps.Services.ListServices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nonNil(services))
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Owner string `json:"owner"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	svc, cred, err := s.deps.Services.RegisterService(r.Context(), body.Code, body.Name, body.Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, serviceCreated{Service: svc, Credential: cred})
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.deps.Services.DeleteService(r.Context(), code); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"code": code})
}

// --- Credentials ---

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.deps.Services.List(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nonNil(creds))
}

func (s *Server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := s.deps.Services.Issue(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, cred)
}

func (s *Server) handleDisableCredential(w http.ResponseWriter, r *http.Request) {
	ak := chi.URLParam(r, "ak")
	if err := s.deps.Services.Disable(r.Context(), chi.URLParam(r, "code"), ak); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"ak": ak, "status": schema.CredentialDisabled})
}

// --- Pull tokens ---

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	issued, err := s.deps.Tokens.Issue(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "env"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, issued)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.deps.Tokens.List(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nonNil(tokens))
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Tokens.Revoke(r.Context(), chi.URLParam(r, "code"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"id": id})
}

// --- Allow rules ---

func (s *Server) handleListAllowRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.Guard.ListRules(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nonNil(rules))
}

func (s *Server) handleCreateAllowRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Env  string `json:"env"`
		CIDR string `json:"cidr"`
		Note string `json:"note"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.deps.Guard.AddRule(r.Context(), chi.URLParam(r, "code"), body.Env, body.CIDR, body.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, rule)
}

func (s *Server) handleDeleteAllowRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Guard.DeleteRule(r.Context(), chi.URLParam(r, "code"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"id": id})
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
