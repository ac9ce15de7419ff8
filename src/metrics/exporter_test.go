package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusExporterHandler(t *testing.T) {
	collector := NewCollector()
	collector.RecordLog("UpdatePage", 100)
	exporter := NewPrometheusExporter(collector, 0)

	server := httptest.NewServer(exporter.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; version=0.0.4", resp.Header.Get("Content-Type"))

	health, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestExportMetricsFormat(t *testing.T) {
	collector := NewCollector()
	collector.RecordLog("UpdatePage", 100)
	collector.RecordLog("AtomicUnitEnd", 20)
	collector.RecordFlush(2, 120)
	collector.UpdateWALStats(144, 1)

	output := NewPrometheusExporter(collector, 0).ExportMetrics()

	for _, line := range []string{
		"# TYPE pagewal_records_logged_total counter",
		"pagewal_records_logged_total 2",
		"pagewal_bytes_logged_total 120",
		`pagewal_records_by_kind_total{kind="AtomicUnitEnd"} 1`,
		`pagewal_records_by_kind_total{kind="UpdatePage"} 1`,
		"pagewal_flushes_total 1",
		`pagewal_flush_latency_ms{quantile="0.50"} 2.000000`,
		"pagewal_wal_size_bytes 144",
		"pagewal_segments 1",
	} {
		assert.Contains(t, output, line)
	}
	assert.Less(t, strings.Index(output, `kind="AtomicUnitEnd"`), strings.Index(output, `kind="UpdatePage"`))
}

func TestExporterSnapshot(t *testing.T) {
	collector := NewCollector()
	exporter := NewPrometheusExporter(collector, 0)
	collector.RecordCheckpointRequest()

	assert.Equal(t, int64(1), exporter.GetSnapshot().CheckpointRequests)
	assert.NoError(t, exporter.Stop())
}
