package api

import (
	"net/http"
	"strings"
)

type runSQLRequest struct {
	SQL string `json:"sql"`
}

type questionRequest struct {
	Question string `json:"question"`
}

func (h *handler) handleGenerateSQL(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		h.unavailable(w, r, "translation engine")
		return
	}
	question := strings.TrimSpace(r.URL.Query().Get("question"))
	if question == "" {
		h.writeError(w, r, http.StatusBadRequest, "Question parameter is required")
		return
	}

	sqlText, err := h.deps.Engine.GenerateSQL(r.Context(), question)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sql": sqlText})
}

func (h *handler) handleRunSQL(w http.ResponseWriter, r *http.Request) {
	if h.deps.Executor == nil {
		h.unavailable(w, r, "sql executor")
		return
	}
	var req runSQLRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		h.writeError(w, r, http.StatusBadRequest, "SQL query is required")
		return
	}

	result, err := h.deps.Executor.Execute(r.Context(), req.SQL)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil || h.deps.Executor == nil {
		h.unavailable(w, r, "translation engine or sql executor")
		return
	}
	var req questionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		h.writeError(w, r, http.StatusBadRequest, "Question is required")
		return
	}

	fail := func(message string) {
		h.writeErrorBody(w, r, http.StatusInternalServerError, message, map[string]any{
			"error":    message,
			"question": question,
		})
	}
	sqlText, err := h.deps.Engine.GenerateSQL(r.Context(), question)
	if err != nil {
		fail(err.Error())
		return
	}
	result, err := h.deps.Executor.Execute(r.Context(), sqlText)
	if err != nil {
		fail(err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question": question,
		"sql":      sqlText,
		"results":  result,
	})
}

func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil || h.deps.Executor == nil {
		h.unavailable(w, r, "translation engine or sql executor")
		return
	}
	var req questionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		h.writeError(w, r, http.StatusBadRequest, "Question is required")
		return
	}

	sqlText, err := h.deps.Engine.GenerateSQL(r.Context(), question)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	result, err := h.deps.Executor.Execute(r.Context(), sqlText)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":        "sql",
		"explanation": "Generated SQL for: " + question,
		"sql":         sqlText,
		"df":          result.Data,
		"columns":     result.Columns,
		"row_count":   result.RowCount,
	})
}
