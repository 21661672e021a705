package observability

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_sql_executions_total",
			Help: "Total number of SQL statements executed, by outcome.",
		},
		[]string{"outcome"},
	)
	sqlExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlsql_sql_execution_duration_seconds",
			Help:    "SQL execution latency including connection acquisition.",
			Buckets: prometheus.DefBuckets,
		},
	)
	sqlRowsReturnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlsql_sql_rows_returned_total",
			Help: "Total number of rows returned to callers.",
		},
	)
	engineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_engine_requests_total",
			Help: "Total number of translation engine calls, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	engineRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlsql_engine_request_duration_seconds",
			Help:    "Translation engine call latency by operation.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		sqlExecutionsTotal,
		sqlExecutionDurationSeconds,
		sqlRowsReturnedTotal,
		engineRequestsTotal,
		engineRequestDurationSeconds,
	)
}

func ObserveSQLExecution(rows int, elapsed time.Duration, err error) {
	sqlExecutionsTotal.WithLabelValues(outcome(err)).Inc()
	sqlExecutionDurationSeconds.Observe(elapsed.Seconds())
	if rows > 0 {
		sqlRowsReturnedTotal.Add(float64(rows))
	}
}

func ObserveEngineRequest(operation string, elapsed time.Duration, err error) {
	engineRequestsTotal.WithLabelValues(operation, outcome(err)).Inc()
	engineRequestDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RegisterPoolMetrics exports database/sql pool statistics (open, in use, idle, waits) for db.
func RegisterPoolMetrics(registerer prometheus.Registerer, db *sql.DB, name string) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return registerer.Register(collectors.NewDBStatsCollector(db, name))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
