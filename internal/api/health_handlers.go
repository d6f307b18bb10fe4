package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/prompt"
)

// previewLength is how much of the persona directive the script health route shows.
const previewLength = 160

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

// scriptHealthHandler reports the loaded script document: GET /api/health/script.
func (s *Server) scriptHealthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeScriptHealth(w, r)
}

// scriptReloadHandler drops the cached document and loads it again.
func (s *Server) scriptReloadHandler(w http.ResponseWriter, r *http.Request) {
	s.scripts.Invalidate()
	slog.Info("Server.scriptReloadHandler: script cache invalidated")
	s.writeScriptHealth(w, r)
}

func (s *Server) writeScriptHealth(w http.ResponseWriter, r *http.Request) {
	doc, err := s.scripts.Load(r.Context())
	if err != nil {
		slog.Error("Server.writeScriptHealth: script unavailable", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Script configuration error"))
		return
	}

	keys := doc.StageKeys()
	stages := make([]string, len(keys))
	for i, k := range keys {
		stages[i] = string(k)
	}
	writeJSONResponse(w, http.StatusOK, models.ScriptHealthResponse{
		Version:             doc.Version,
		Stages:              stages,
		SystemPromptPreview: prompt.Preview(previewLength),
	})
}

func (s *Server) providersHealthHandler(w http.ResponseWriter, r *http.Request) {
	statuses := s.providers.Status()
	resp := models.ProvidersHealthResponse{
		DefaultProvider: s.opts.DefaultProvider,
		Providers:       make([]models.ProviderHealth, len(statuses)),
	}
	for i, st := range statuses {
		resp.Providers[i] = models.ProviderHealth{Key: st.Key, Configured: st.Configured}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
