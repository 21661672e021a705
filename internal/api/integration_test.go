//go:build integration

package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nlsql/nlsql/internal/database"
	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/schema"
	"github.com/nlsql/nlsql/internal/sqlexec"
	"github.com/nlsql/nlsql/internal/training"
)

func TestRunSQLAndGetSchemaAgainstPostgres(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("NLSQL_TEST_DSN"))
	if adminDSN == "" {
		t.Skip("NLSQL_TEST_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	pool, err := database.Open(ctx, database.PoolConfig{DSN: testDSN, MinConns: 1, MaxConns: 4})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer func() { _ = pool.Close() }()

	engine, err := nl2sql.NewService(training.NewMemoryStore(), staticCompleter("SELECT 1"), nl2sql.ServiceConfig{})
	if err != nil {
		t.Fatalf("nl2sql.NewService() error = %v", err)
	}
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Executor: sqlexec.NewExecutor(pool),
		Schema:   schema.NewIntrospector(pool, database.NewAdminConnector(adminDSN), schema.DefaultSchema),
		Engine:   engine,
		Database: pool,
	})

	rr := serve(h, http.MethodPost, "/api/v0/run_sql", `{"sql":"CREATE TABLE t (id integer NOT NULL, name text)"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = serve(h, http.MethodPost, "/api/v0/run_sql", `{"sql":"INSERT INTO t VALUES (1, 'ada') RETURNING id, name"}`)
	if body := decodeMap(t, rr); rr.Code != http.StatusOK || body["row_count"] != float64(1) {
		t.Fatalf("insert status = %d body = %#v", rr.Code, body)
	}

	rr = serve(h, http.MethodPost, "/api/v0/run_sql", `{"sql":"SELECT 1 AS x"}`)
	if got := strings.TrimSpace(rr.Body.String()); got != `{"data":[{"x":1}],"columns":["x"],"row_count":1}` {
		t.Fatalf("select body = %s", got)
	}

	rr = serve(h, http.MethodPost, "/api/v0/run_sql", `{"sql":"DROP TABLE nonexistent_table"}`)
	if body := decodeMap(t, rr); rr.Code != http.StatusInternalServerError || !strings.Contains(fmt.Sprint(body["error"]), "nonexistent_table") {
		t.Fatalf("drop status = %d body = %#v", rr.Code, body)
	}
	if stats := pool.Stats(); stats.InUse != 0 {
		t.Fatalf("InUse after failure = %d", stats.InUse)
	}

	rr = serve(h, http.MethodGet, "/api/v0/get_schema", "")
	want := `{"schema":{"t":{"type":"BASE TABLE","columns":[{"name":"id","type":"integer","nullable":false,"default":null},{"name":"name","type":"text","nullable":true,"default":null}]}}}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Fatalf("schema body = %s", got)
	}

	rr = serve(h, http.MethodPost, "/api/v0/update_schema", "")
	if body := decodeMap(t, rr); rr.Code != http.StatusOK || body["message"] != "Schema updated for 1 tables" {
		t.Fatalf("update_schema status = %d body = %#v", rr.Code, body)
	}

	rr = serve(h, http.MethodGet, "/api/v0/health", "")
	if body := decodeMap(t, rr); rr.Code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("health status = %d body = %#v", rr.Code, body)
	}
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse(adminDSN) error = %v", err)
	}
	if strings.TrimPrefix(parsed.Path, "/") == "" {
		t.Fatal("admin DSN must include a database name")
	}

	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(adminDSN) error = %v", err)
	}

	name := fmt.Sprintf("nlsql_it_api_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	testURL := *parsed
	testURL.Path = "/" + name
	testDSN := testURL.String()

	cleanup := func() {
		defer func() { _ = adminDB.Close() }()
		if _, err := adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name); err != nil {
			t.Fatalf("terminate test db sessions: %v", err)
		}
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
	return testDSN, cleanup
}

type staticCompleter string

func (c staticCompleter) Complete(context.Context, nl2sql.Prompt) (string, error) {
	return string(c), nil
}
