package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/training"
)

type trainRequest struct {
	TrainingData  string `json:"training_data"`
	Question      string `json:"question"`
	SQL           string `json:"sql"`
	DDL           string `json:"ddl"`
	Documentation string `json:"documentation"`
}

// trainInput picks the first populated field in the order training_data, question+sql, ddl,
// documentation. Later fields are ignored when an earlier one matches.
func (req trainRequest) trainInput() (nl2sql.TrainInput, bool) {
	switch {
	case strings.TrimSpace(req.TrainingData) != "":
		return nl2sql.TrainInput{Kind: training.KindDDL, Content: req.TrainingData}, true
	case strings.TrimSpace(req.Question) != "" && strings.TrimSpace(req.SQL) != "":
		return nl2sql.TrainInput{Kind: training.KindSQL, Question: req.Question, Content: req.SQL}, true
	case strings.TrimSpace(req.DDL) != "":
		return nl2sql.TrainInput{Kind: training.KindDDL, Content: req.DDL}, true
	case strings.TrimSpace(req.Documentation) != "":
		return nl2sql.TrainInput{Kind: training.KindDocumentation, Content: req.Documentation}, true
	default:
		return nl2sql.TrainInput{}, false
	}
}

type removeTrainingRequest struct {
	ID string `json:"id"`
}

func (h *handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		h.unavailable(w, r, "translation engine")
		return
	}
	var req trainRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	input, ok := req.trainInput()
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Training data is required")
		return
	}

	if _, err := h.deps.Engine.Train(r.Context(), input); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handler) handleListTraining(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		h.unavailable(w, r, "translation engine")
		return
	}
	units, err := h.deps.Engine.ListTraining(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"training_data": units})
}

func (h *handler) handleRemoveTraining(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		h.unavailable(w, r, "translation engine")
		return
	}
	var req removeTrainingRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		h.writeError(w, r, http.StatusBadRequest, "ID is required")
		return
	}

	removed, err := h.deps.Engine.RemoveTraining(r.Context(), req.ID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": removed})
}

func (h *handler) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		h.unavailable(w, r, "translation engine")
		return
	}
	questions, err := h.deps.Engine.GenerateQuestions(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// handleUpdateSchema trains the engine on synthesized DDL for every table of the schema.
func (h *handler) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil || h.deps.Schema == nil {
		h.unavailable(w, r, "translation engine or schema introspector")
		return
	}
	tables, err := h.deps.Schema.ListTables(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	for _, table := range tables {
		ddl, err := h.deps.Schema.SynthesizeDDL(r.Context(), table)
		if err != nil {
			h.writeError(w, r, http.StatusInternalServerError, err.Error())
			return
		}
		if _, err := h.deps.Engine.Train(r.Context(), nl2sql.TrainInput{Kind: training.KindDDL, Content: ddl}); err != nil {
			h.writeError(w, r, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Schema updated for %d tables", len(tables)),
		"tables":  tables,
	})
}
