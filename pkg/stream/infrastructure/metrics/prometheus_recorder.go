// Package metrics provides concrete monitoring backends for the streaming
// runtime, currently Prometheus for metrics and OpenTelemetry for traces.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/core/model"
	logger "github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

// PrometheusMetricRecorder implements coremetrics.MetricRecorder backed by a
// dedicated Prometheus registry.
type PrometheusMetricRecorder struct {
	registry *prometheus.Registry

	queriesStarted *prometheus.CounterVec
	queriesEnded   *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec

	batchesTotal     *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	batchInputRows   *prometheus.HistogramVec
	rowsReadTotal    *prometheus.CounterVec
	rowsWrittenTotal *prometheus.CounterVec
	rowsFiltered     *prometheus.CounterVec
	malformedRows    *prometheus.CounterVec
	idleTriggers     *prometheus.CounterVec
}

// NewPrometheusMetricRecorder creates a recorder with all collectors
// registered on a fresh registry, including the standard Go and process
// collectors.
func NewPrometheusMetricRecorder() *PrometheusMetricRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &PrometheusMetricRecorder{
		registry: registry,
		queriesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "queries_started_total",
			Help:      "Total number of streaming queries started.",
		}, []string{"query"}),
		queriesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "queries_ended_total",
			Help:      "Total number of streaming queries ended, by final status.",
		}, []string{"query", "status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swell",
			Name:      "query_duration_seconds",
			Help:      "Total run duration of streaming queries.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"query", "status"}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "batches_total",
			Help:      "Total number of committed micro-batches.",
		}, []string{"query"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swell",
			Name:      "batch_duration_seconds",
			Help:      "Duration of micro-batches from trigger to commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		batchInputRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swell",
			Name:      "batch_input_rows",
			Help:      "Number of input rows per micro-batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		}, []string{"query"}),
		rowsReadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "rows_read_total",
			Help:      "Total number of rows read from the source.",
		}, []string{"query"}),
		rowsWrittenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "rows_written_total",
			Help:      "Total number of rows written to the sink.",
		}, []string{"query"}),
		rowsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "rows_filtered_total",
			Help:      "Total number of rows dropped during processing.",
		}, []string{"query"}),
		malformedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "malformed_rows_total",
			Help:      "Total number of source rows that could not be parsed.",
		}, []string{"query"}),
		idleTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell",
			Name:      "idle_triggers_total",
			Help:      "Total number of triggers that found no new data.",
		}, []string{"query"}),
	}

	registry.MustRegister(
		r.queriesStarted,
		r.queriesEnded,
		r.queryDuration,
		r.batchesTotal,
		r.batchDuration,
		r.batchInputRows,
		r.rowsReadTotal,
		r.rowsWrittenTotal,
		r.rowsFiltered,
		r.malformedRows,
		r.idleTriggers,
	)

	return r
}

// GetRegistry exposes the underlying registry so the HTTP handler can serve it.
func (r *PrometheusMetricRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusMetricRecorder) RecordQueryStart(ctx context.Context, queryName string) {
	r.queriesStarted.WithLabelValues(queryName).Inc()
}

func (r *PrometheusMetricRecorder) RecordQueryEnd(ctx context.Context, queryName string, status model.QueryStatus, duration time.Duration) {
	r.queriesEnded.WithLabelValues(queryName, string(status)).Inc()
	r.queryDuration.WithLabelValues(queryName, string(status)).Observe(duration.Seconds())
}

func (r *PrometheusMetricRecorder) RecordBatch(ctx context.Context, queryName string, progress model.BatchProgress) {
	r.batchesTotal.WithLabelValues(queryName).Inc()
	r.batchDuration.WithLabelValues(queryName).Observe(float64(progress.DurationMillis) / 1000.0)
	r.batchInputRows.WithLabelValues(queryName).Observe(float64(progress.NumInputRows))
}

func (r *PrometheusMetricRecorder) RecordRowsRead(ctx context.Context, queryName string, count int64) {
	r.rowsReadTotal.WithLabelValues(queryName).Add(float64(count))
}

func (r *PrometheusMetricRecorder) RecordRowsWritten(ctx context.Context, queryName string, count int64) {
	r.rowsWrittenTotal.WithLabelValues(queryName).Add(float64(count))
}

func (r *PrometheusMetricRecorder) RecordRowsFiltered(ctx context.Context, queryName string, count int64) {
	r.rowsFiltered.WithLabelValues(queryName).Add(float64(count))
}

func (r *PrometheusMetricRecorder) RecordMalformedRow(ctx context.Context, queryName string) {
	r.malformedRows.WithLabelValues(queryName).Inc()
}

func (r *PrometheusMetricRecorder) RecordTriggerIdle(ctx context.Context, queryName string) {
	r.idleTriggers.WithLabelValues(queryName).Inc()
}

var _ coremetrics.MetricRecorder = (*PrometheusMetricRecorder)(nil)

// StartMetricsServer serves the recorder's registry on the given address under
// /metrics. It returns the server so the caller can shut it down.
func StartMetricsServer(recorder *PrometheusMetricRecorder, listenAddress string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.GetRegistry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: listenAddress, Handler: mux}
	go func() {
		logger.Infof("Metrics server listening on %s/metrics", listenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	return server
}
