package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	content := readAsset(t, "observability", "grafana", "nlsql_dashboard.json")

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesReferenceRecordedSeries(t *testing.T) {
	rules := string(readAsset(t, "observability", "prometheus", "nlsql_rules.yaml"))
	recording := string(readAsset(t, "observability", "prometheus", "nlsql_recording_rules.yaml"))

	requiredAlerts := []string{
		"NLSQLHTTPErrorRateHigh",
		"NLSQLSQLLatencyP95High",
		"NLSQLEngineFailing",
		"NLSQLEngineLatencyP95High",
		"NLSQLPoolSaturated",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(rules, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredRecords := []string{
		"nlsql:slo_http_error_rate_5m",
		"nlsql:slo_sql_latency_seconds_p95",
		"nlsql:slo_sql_error_rate_5m",
		"nlsql:slo_engine_latency_seconds_p95",
		"nlsql:slo_engine_failures_15m",
		"nlsql:slo_pool_wait_seconds_5m",
	}
	for _, recordName := range requiredRecords {
		if !strings.Contains(recording, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}
}

func TestRecordingRulesUseExportedMetricNames(t *testing.T) {
	recording := string(readAsset(t, "observability", "prometheus", "nlsql_recording_rules.yaml"))
	for _, metric := range []string{
		"nlsql_http_requests_total",
		"nlsql_sql_execution_duration_seconds_bucket",
		"nlsql_sql_executions_total",
		"nlsql_engine_request_duration_seconds_bucket",
		"nlsql_engine_requests_total",
		"go_sql_wait_duration_seconds_total",
	} {
		if !strings.Contains(recording, metric) {
			t.Fatalf("recording rules missing metric %q", metric)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := string(readAsset(t, "observability", "prometheus", "prometheus-scrape.example.yaml"))

	for _, token := range []string{
		"metrics_path: /metrics",
		"nlsql_rules.yaml",
		"nlsql_recording_rules.yaml",
		"job_name: nlsql-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func TestComposeFileDefinesBackingServices(t *testing.T) {
	text := string(readAsset(t, "docker-compose.yml"))
	for _, service := range []string{"postgres:", "minio:", "prometheus:"} {
		if !strings.Contains(text, "\n  "+service) {
			t.Fatalf("compose file missing service %q", service)
		}
	}
}

func readAsset(t *testing.T, parts ...string) []byte {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
