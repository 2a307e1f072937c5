package server

import (
	"net/http"
	"strings"

	"github.com/llm-lab/mockllm/internal/oai"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.handle.Snapshot()
	if !snap.Config.Server.Auth.Authorize(r.Header.Get("Authorization")) {
		oai.WriteError(w, oai.Unauthorized("unauthorized"))
		return
	}
	oai.WriteJSON(w, http.StatusOK, oai.ModelList{
		Object: "list",
		Data:   snap.ListModels(),
	})
}

// handleModel serves GET /v1/models/{id}, where id may itself contain a
// slash (public ids are prefix/name).
func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.handle.Snapshot()
	if !snap.Config.Server.Auth.Authorize(r.Header.Get("Authorization")) {
		oai.WriteError(w, oai.Unauthorized("unauthorized"))
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/models/")
	for _, info := range snap.ListModels() {
		if info.ID == name {
			oai.WriteJSON(w, http.StatusOK, info)
			return
		}
	}
	oai.WriteError(w, oai.NotFound("model not found"))
}
