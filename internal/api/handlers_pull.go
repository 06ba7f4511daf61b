package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/fastconfig/internal/pull"
)

// handlePull serves a config to a workload. The ETag is the bare version
// string; a matching If-None-Match yields 304 with no body.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Gateway.Pull(r.Context(), pull.Request{
		ServiceCode:   chi.URLParam(r, "service"),
		Env:           chi.URLParam(r, "env"),
		Authorization: r.Header.Get("Authorization"),
		ClientIP:      s.deps.Resolver.ClientIP(r),
		IfNoneMatch:   r.Header.Get("If-None-Match"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", res.ETag)
	w.Header().Set("Cache-Control", "no-cache")
	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeOK(w, http.StatusOK, res.Response)
}
