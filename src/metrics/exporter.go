package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	collector *Collector
	port      int
	server    *http.Server
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector, port int) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		port:      port,
	}
}

// Handler returns the mux serving /metrics and /health.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", pe.handleMetrics)
	mux.HandleFunc("/health", pe.handleHealth)
	return mux
}

// Start starts the HTTP server for metrics export.
func (pe *PrometheusExporter) Start() error {
	pe.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", pe.port),
		Handler: pe.Handler(),
	}

	go func() {
		_ = pe.server.ListenAndServe()
	}()

	return nil
}

// Stop stops the HTTP server.
func (pe *PrometheusExporter) Stop() error {
	if pe.server != nil {
		return pe.server.Close()
	}
	return nil
}

func (pe *PrometheusExporter) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, pe.ExportMetrics())
}

func (pe *PrometheusExporter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func writeMetric(out *strings.Builder, name, kind, help string, value any) {
	fmt.Fprintf(out, "# HELP %s %s\n", name, help)
	fmt.Fprintf(out, "# TYPE %s %s\n", name, kind)
	switch v := value.(type) {
	case float64:
		fmt.Fprintf(out, "%s %f\n", name, v)
	default:
		fmt.Fprintf(out, "%s %d\n", name, v)
	}
}

// ExportMetrics exports all metrics in Prometheus text format.
func (pe *PrometheusExporter) ExportMetrics() string {
	snapshot := pe.collector.Snapshot()
	var output strings.Builder

	writeMetric(&output, "pagewal_records_logged_total", "counter", "Total number of logged records", snapshot.RecordsLogged)
	writeMetric(&output, "pagewal_log_errors_total", "counter", "Total number of failed log calls", snapshot.LogErrors)
	writeMetric(&output, "pagewal_bytes_logged_total", "counter", "Total bytes appended to the log", snapshot.BytesLogged)

	output.WriteString("# HELP pagewal_records_by_kind_total Logged records per record kind\n")
	output.WriteString("# TYPE pagewal_records_by_kind_total counter\n")
	kinds := make([]string, 0, len(snapshot.RecordsByKind))
	for kind := range snapshot.RecordsByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(&output, "pagewal_records_by_kind_total{kind=\"%s\"} %d\n", kind, snapshot.RecordsByKind[kind])
	}

	writeMetric(&output, "pagewal_flushes_total", "counter", "Total number of flushes", snapshot.FlushesTotal)
	writeMetric(&output, "pagewal_flush_bytes_total", "counter", "Total bytes made durable by flushes", snapshot.FlushBytesTotal)

	output.WriteString("# HELP pagewal_flush_latency_ms Flush latency in milliseconds\n")
	output.WriteString("# TYPE pagewal_flush_latency_ms gauge\n")
	fmt.Fprintf(&output, "pagewal_flush_latency_ms{quantile=\"0.50\"} %f\n", snapshot.FlushLatencyP50)
	fmt.Fprintf(&output, "pagewal_flush_latency_ms{quantile=\"0.95\"} %f\n", snapshot.FlushLatencyP95)
	fmt.Fprintf(&output, "pagewal_flush_latency_ms{quantile=\"0.99\"} %f\n", snapshot.FlushLatencyP99)

	writeMetric(&output, "pagewal_segments_created_total", "counter", "Total segments created", snapshot.SegmentsCreated)
	writeMetric(&output, "pagewal_segments_removed_total", "counter", "Total segments removed by cuts", snapshot.SegmentsRemoved)
	writeMetric(&output, "pagewal_checkpoint_requests_total", "counter", "Total checkpoint requests", snapshot.CheckpointRequests)
	writeMetric(&output, "pagewal_wal_size_bytes", "gauge", "Log size in bytes", snapshot.WALSize)
	writeMetric(&output, "pagewal_segments", "gauge", "Segments held by the log", snapshot.SegmentsCount)

	writeMetric(&output, "pagewal_recovery_records_total", "counter", "Records replayed by recovery", snapshot.RecordsReplayed)
	writeMetric(&output, "pagewal_recovery_units_applied_total", "counter", "Atomic units applied by recovery", snapshot.UnitsApplied)
	writeMetric(&output, "pagewal_recovery_units_discarded_total", "counter", "Atomic units discarded by recovery", snapshot.UnitsDiscarded)
	writeMetric(&output, "pagewal_recovery_pages_skipped_total", "counter", "Page updates skipped because the page was newer", snapshot.PagesSkipped)

	fmt.Fprintf(&output, "# Exported at %s\n", snapshot.Timestamp.Format(time.RFC3339))

	return output.String()
}

// GetSnapshot returns the current metrics snapshot.
func (pe *PrometheusExporter) GetSnapshot() *Snapshot {
	return pe.collector.Snapshot()
}
