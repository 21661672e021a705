package observability

import (
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSQLExecutionCountsByOutcome(t *testing.T) {
	beforeOK := testutil.ToFloat64(sqlExecutionsTotal.WithLabelValues("ok"))
	beforeErr := testutil.ToFloat64(sqlExecutionsTotal.WithLabelValues("error"))

	ObserveSQLExecution(3, 10*time.Millisecond, nil)
	ObserveSQLExecution(0, time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(sqlExecutionsTotal.WithLabelValues("ok")) - beforeOK; got != 1 {
		t.Fatalf("ok executions delta = %v", got)
	}
	if got := testutil.ToFloat64(sqlExecutionsTotal.WithLabelValues("error")) - beforeErr; got != 1 {
		t.Fatalf("error executions delta = %v", got)
	}
}

func TestObserveEngineRequestLabelsOperation(t *testing.T) {
	before := testutil.ToFloat64(engineRequestsTotal.WithLabelValues("generate_sql", "ok"))
	ObserveEngineRequest("generate_sql", 5*time.Millisecond, nil)
	if got := testutil.ToFloat64(engineRequestsTotal.WithLabelValues("generate_sql", "ok")) - before; got != 1 {
		t.Fatalf("generate_sql delta = %v", got)
	}
}

func TestRegisterPoolMetricsRejectsDuplicateName(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	registry := prometheus.NewRegistry()
	if err := RegisterPoolMetrics(registry, db, "target"); err != nil {
		t.Fatalf("RegisterPoolMetrics() error = %v", err)
	}
	if err := RegisterPoolMetrics(registry, db, "target"); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
