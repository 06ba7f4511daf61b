package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/fastconfig/internal/configstore"
	"github.com/rendis/fastconfig/internal/store"
)

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	configs, err := s.deps.Configs.List(r.Context(), configstore.Filter{
		ServiceCode: q.Get("service_code"),
		Env:         q.Get("env"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nonNil(configs))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Configs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, cfg)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req configstore.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.UpdatedBy = actor(r, req.UpdatedBy)
	s.writeConfig(w, r, "create", http.StatusCreated, func() (*store.Config, error) {
		return s.deps.Configs.Create(r.Context(), req)
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configstore.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ConfigID = chi.URLParam(r, "id")
	req.UpdatedBy = actor(r, req.UpdatedBy)
	s.writeConfig(w, r, "update", http.StatusOK, func() (*store.Config, error) {
		return s.deps.Configs.Update(r.Context(), req)
	})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req configstore.RollbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ConfigID = chi.URLParam(r, "id")
	req.UpdatedBy = actor(r, req.UpdatedBy)
	s.writeConfig(w, r, "rollback", http.StatusOK, func() (*store.Config, error) {
		return s.deps.Configs.Rollback(r.Context(), req)
	})
}

func (s *Server) handleImportConfig(w http.ResponseWriter, r *http.Request) {
	var req configstore.ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.UpdatedBy = actor(r, req.UpdatedBy)
	s.writeConfig(w, r, "import", http.StatusOK, func() (*store.Config, error) {
		return s.deps.Configs.Import(r.Context(), req)
	})
}

// writeConfig runs a config write, records it and renders the result.
func (s *Server) writeConfig(w http.ResponseWriter, r *http.Request, op string, status int, fn func() (*store.Config, error)) {
	cfg, err := fn()
	s.deps.Metrics.ObserveConfigWrite(op, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, status, cfg)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.deps.Configs.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nonNil(versions))
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	text, err := s.deps.Configs.Diff(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"from": from, "to": to, "diff": text})
}
