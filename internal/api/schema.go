package api

import "net/http"

func (h *handler) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	if h.deps.Schema == nil {
		h.unavailable(w, r, "schema introspector")
		return
	}
	descriptor, err := h.deps.Schema.DescribeSchema(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": descriptor})
}

func (h *handler) handleGetDatabases(w http.ResponseWriter, r *http.Request) {
	if h.deps.Schema == nil {
		h.unavailable(w, r, "schema introspector")
		return
	}
	names, err := h.deps.Schema.ListDatabases(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": names})
}
