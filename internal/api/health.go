package api

import (
	"net/http"
	"strings"
)

type databaseHealth struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Version string `json:"version"`
	User    string `json:"user"`
}

type engineHealth struct {
	Model            string `json:"model"`
	Provider         string `json:"provider"`
	APIKeyConfigured bool   `json:"api_key_configured"`
}

type trainingHealth struct {
	Backend string `json:"backend"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Database  databaseHealth    `json:"database"`
	Engine    engineHealth      `json:"vanna"`
	Training  trainingHealth    `json:"training"`
	Endpoints map[string]string `json:"endpoints"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Database == nil {
		h.writeErrorBody(w, r, http.StatusInternalServerError, "database is not configured", map[string]any{
			"status": "unhealthy",
			"error":  "database is not configured",
		})
		return
	}
	info, err := h.deps.Database.ServerInfo(r.Context())
	if err != nil {
		h.writeErrorBody(w, r, http.StatusInternalServerError, err.Error(), map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Database: databaseHealth{
			Name:    info.Database,
			Host:    h.cfg.Database.Host,
			Port:    h.cfg.Database.Port,
			Version: info.Version,
			User:    info.User,
		},
		Engine: engineHealth{
			Model:            h.cfg.AI.Model,
			Provider:         h.cfg.AI.Provider,
			APIKeyConfigured: strings.TrimSpace(h.cfg.AI.APIKey) != "",
		},
		Training: h.trainingHealth(r),
		Endpoints: map[string]string{
			"generate_sql":  apiPrefix + "/generate_sql?question=...",
			"run_sql":       apiPrefix + "/run_sql (POST)",
			"chat":          apiPrefix + "/chat (POST)",
			"get_schema":    apiPrefix + "/get_schema",
			"get_databases": apiPrefix + "/get_databases",
		},
	})
}

// trainingHealth reports the training store without failing the request; SQL generation
// degrades but queries still run when the store is down.
func (h *handler) trainingHealth(r *http.Request) trainingHealth {
	status := trainingHealth{Backend: h.cfg.Training.Backend, Status: "ok"}
	if h.deps.TrainingCheck == nil {
		status.Status = "unchecked"
		return status
	}
	if err := h.deps.TrainingCheck(r.Context()); err != nil {
		status.Status = "unavailable"
		status.Error = err.Error()
	}
	return status
}
