// Package api exposes the HTTP surface under /api/v0.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlsql/nlsql/internal/api/docs"
	"github.com/nlsql/nlsql/internal/config"
	"github.com/nlsql/nlsql/internal/database"
	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/schema"
	"github.com/nlsql/nlsql/internal/sqlexec"
)

const apiPrefix = "/api/v0"

type SQLExecutor interface {
	Execute(ctx context.Context, sqlText string) (sqlexec.Result, error)
}

type SchemaIntrospector interface {
	DescribeSchema(ctx context.Context) (schema.Descriptor, error)
	ListTables(ctx context.Context) ([]string, error)
	SynthesizeDDL(ctx context.Context, table string) (string, error)
	ListDatabases(ctx context.Context) ([]string, error)
}

type ServerInfoProvider interface {
	ServerInfo(ctx context.Context) (database.ServerInfo, error)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Logger   *slog.Logger
	Executor SQLExecutor
	Schema   SchemaIntrospector
	Engine   nl2sql.Engine
	Database ServerInfoProvider
	// TrainingCheck reports whether the training store is reachable. Nil when the backend has nothing to check.
	TrainingCheck HealthCheck
}

type handler struct {
	cfg  config.Config
	deps Dependencies
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	h := &handler{cfg: cfg, deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+apiPrefix+"/generate_sql", h.handleGenerateSQL)
	mux.HandleFunc("POST "+apiPrefix+"/run_sql", h.handleRunSQL)
	mux.HandleFunc("GET "+apiPrefix+"/generate_question", h.handleGenerateQuestions)
	mux.HandleFunc("POST "+apiPrefix+"/train", h.handleTrain)
	mux.HandleFunc("GET "+apiPrefix+"/get_training_data", h.handleListTraining)
	mux.HandleFunc("DELETE "+apiPrefix+"/remove_training_data", h.handleRemoveTraining)
	mux.HandleFunc("GET "+apiPrefix+"/get_schema", h.handleGetSchema)
	mux.HandleFunc("GET "+apiPrefix+"/get_databases", h.handleGetDatabases)
	mux.HandleFunc("GET "+apiPrefix+"/health", h.handleHealth)
	mux.HandleFunc("POST "+apiPrefix+"/chat", h.handleChat)
	mux.HandleFunc("POST "+apiPrefix+"/ask", h.handleAsk)
	mux.HandleFunc("POST "+apiPrefix+"/update_schema", h.handleUpdateSchema)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /{$}", docs.Handler(docs.Info{
		Service:      cfg.Service.Name,
		DatabaseName: cfg.Database.Name,
		DatabaseHost: cfg.Database.Host,
		DatabasePort: cfg.Database.Port,
		Provider:     cfg.AI.Provider,
		Model:        cfg.AI.Model,
		Endpoints:    Endpoints(),
	}))

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger), observability.RecoverMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, corsMiddleware(cfg.HTTP.CORSAllowedOrigins))
	return chain(mux, middlewares...)
}

// Endpoints lists the routes shown on the documentation page.
func Endpoints() []docs.Endpoint {
	return []docs.Endpoint{
		{Method: http.MethodGet, Path: apiPrefix + "/generate_sql?question=...", Description: "Generate SQL for a question"},
		{Method: http.MethodPost, Path: apiPrefix + "/run_sql", Description: "Execute SQL and return rows"},
		{Method: http.MethodPost, Path: apiPrefix + "/ask", Description: "Generate SQL for a question and run it"},
		{Method: http.MethodPost, Path: apiPrefix + "/chat", Description: "Generate SQL for a question and run it"},
		{Method: http.MethodGet, Path: apiPrefix + "/generate_question", Description: "Suggest questions"},
		{Method: http.MethodPost, Path: apiPrefix + "/train", Description: "Add DDL, documentation or a question/SQL example"},
		{Method: http.MethodGet, Path: apiPrefix + "/get_training_data", Description: "List training data"},
		{Method: http.MethodDelete, Path: apiPrefix + "/remove_training_data", Description: "Remove one training unit"},
		{Method: http.MethodPost, Path: apiPrefix + "/update_schema", Description: "Train on DDL of every table"},
		{Method: http.MethodGet, Path: apiPrefix + "/get_schema", Description: "Describe tables and columns"},
		{Method: http.MethodGet, Path: apiPrefix + "/get_databases", Description: "List databases on the server"},
		{Method: http.MethodGet, Path: apiPrefix + "/health", Description: "Database and model status"},
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// writeJSON encodes payload before writing the status line. A payload that cannot be encoded,
// such as a result holding NaN, turns into a 500 carrying the encoding error.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		status = http.StatusInternalServerError
		body.Reset()
		_ = json.NewEncoder(&body).Encode(map[string]string{"error": fmt.Sprintf("encode response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

// writeError writes {"error": message}. Server-side failures are logged with the trace id.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeErrorBody(w, r, status, message, map[string]any{"error": message})
}

func (h *handler) writeErrorBody(w http.ResponseWriter, r *http.Request, status int, message string, body map[string]any) {
	if h.deps.Logger != nil && status >= http.StatusInternalServerError {
		h.deps.Logger.Warn("request failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", message),
		)
	}
	writeJSON(w, status, body)
}

func (h *handler) unavailable(w http.ResponseWriter, r *http.Request, dependency string) {
	h.writeError(w, r, http.StatusInternalServerError, dependency+" is not configured")
}

// decodeBody reads an optional JSON object. An empty body leaves target untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(target)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid JSON body: %w", err)
}
