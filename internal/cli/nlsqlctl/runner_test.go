package nlsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]string
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	got := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query().Get("question")
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRunHealthCommand(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"status":"healthy"}`)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "health"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodGet || got.path != "/api/v0/health" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if !strings.Contains(stdout.String(), `"status": "healthy"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunGenerateSQLEncodesQuestion(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"sql":"SELECT 1"}`)

	code := Run(context.Background(), []string{"--base-url", srv.URL, "generate-sql", "How", "many", "users?"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/api/v0/generate_sql" || got.query != "How many users?" {
		t.Fatalf("request = %s question=%q", got.path, got.query)
	}
}

func TestRunSQLPostsStatement(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"data":[],"columns":[],"row_count":0}`)

	code := Run(context.Background(), []string{"--base-url", srv.URL, "run-sql", "SELECT 1 AS x"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/api/v0/run_sql" || got.body["sql"] != "SELECT 1 AS x" {
		t.Fatalf("request = %s %s %#v", got.method, got.path, got.body)
	}
}

func TestRunTrainSendsOnlyPopulatedFields(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"success":true}`)

	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"train", "--question", "How many users?", "--sql", "SELECT count(*) FROM users",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/api/v0/train" || len(got.body) != 2 || got.body["question"] != "How many users?" {
		t.Fatalf("request = %s %#v", got.path, got.body)
	}
}

func TestRunTrainWithoutFieldsIsUsageError(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"train"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunTrainingRemove(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"success":true}`)

	code := Run(context.Background(), []string{"--base-url", srv.URL, "training", "remove", "abc-ddl"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodDelete || got.path != "/api/v0/remove_training_data" || got.body["id"] != "abc-ddl" {
		t.Fatalf("request = %s %s %#v", got.method, got.path, got.body)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusBadRequest, `{"error":"SQL query is required"}`)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "update-schema"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "http 400") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"unknown"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunMissingQuestionIsUsageError(t *testing.T) {
	code := Run(context.Background(), []string{"ask"}, Options{})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunConnectionFailure(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", "http://127.0.0.1:1", "--timeout", "500ms", "health"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "request failed") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}
