package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "interpro_loader"

// IngestMetrics contains Prometheus metrics for population runs.
type IngestMetrics struct {
	registry *prometheus.Registry

	// Stage metrics
	stageRunsTotal   *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	stageErrorsTotal *prometheus.CounterVec

	// Record throughput
	recordsTotal *prometheus.CounterVec

	// Chunked join metrics
	chunkCommitDuration    prometheus.Histogram
	chunkCommitErrorsTotal *prometheus.CounterVec
	residentMemoryBytes    prometheus.Gauge

	// Database statements
	dbQueryDuration    prometheus.Histogram
	dbQueryErrorsTotal prometheus.Counter

	// Source downloads
	downloadsTotal     *prometheus.CounterVec
	downloadBytesTotal *prometheus.CounterVec
	downloadDuration   *prometheus.HistogramVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewIngestMetrics creates and registers new ingestion metrics.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() {
	m.stageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Total number of population stages by final status",
		},
		[]string{"stage", "status"}, // status: completed, already-populated, failed
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time taken by population stages",
			Buckets:   prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15), // 10ms to ~3h
		},
		[]string{"stage"},
	)

	m.stageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of failed stages by error category",
		},
		[]string{"stage", "error_type"},
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of records processed by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: written, malformed, unresolved
	)

	m.chunkCommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chunk_commit_duration_seconds",
		Help:      "Time taken to commit one chunk of annotations",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~32s
	})

	m.chunkCommitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_commit_errors_total",
			Help:      "Total number of failed chunk commits",
		},
		[]string{"error_type"},
	)

	m.residentMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resident_memory_bytes",
		Help:      "Resident set size sampled during the annotation stage",
	})

	m.dbQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_seconds",
		Help:      "Time taken by SQL statements",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms/10, BucketFactor2, BucketCount15), // 0.1ms to ~3s
	})

	m.dbQueryErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "db_query_errors_total",
		Help:      "Total number of failed SQL statements",
	})

	m.downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of source downloads",
		},
		[]string{"scheme", "status"},
	)

	m.downloadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded from remote sources",
		},
		[]string{"scheme"},
	)

	m.downloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time taken by source downloads",
			Buckets:   prometheus.ExponentialBuckets(BucketStart1s/10, BucketFactor2, BucketCount15), // 100ms to ~55m
		},
		[]string{"scheme"},
	)

	m.collectors = []prometheus.Collector{
		m.stageRunsTotal,
		m.stageDuration,
		m.stageErrorsTotal,
		m.recordsTotal,
		m.chunkCommitDuration,
		m.chunkCommitErrorsTotal,
		m.residentMemoryBytes,
		m.dbQueryDuration,
		m.dbQueryErrorsTotal,
		m.downloadsTotal,
		m.downloadBytesTotal,
		m.downloadDuration,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// parseOperation splits "stage:entries" into ("stage", "entries").
func parseOperation(operation string) (op, subject string) {
	parts := strings.SplitN(operation, ":", SplitPartsCount)
	if len(parts) == SplitPartsCount {
		return parts[0], parts[1]
	}
	return operation, "unknown"
}

// RecordOperation implements the Recorder interface.
// Stage operations use the format "stage:<name>".
func (m *IngestMetrics) RecordOperation(operation, status string) {
	op, stage := parseOperation(operation)
	if op == OpStage {
		m.stageRunsTotal.WithLabelValues(stage, status).Inc()
	}
}

// RecordDuration implements the Recorder interface.
func (m *IngestMetrics) RecordDuration(operation string, seconds float64) {
	op, stage := parseOperation(operation)
	switch op {
	case OpStage:
		m.stageDuration.WithLabelValues(stage).Observe(seconds)
	case OpChunkCommit:
		m.chunkCommitDuration.Observe(seconds)
	case OpDbQuery:
		m.dbQueryDuration.Observe(seconds)
	}
}

// RecordError implements the Recorder interface.
func (m *IngestMetrics) RecordError(operation, errorType string) {
	op, stage := parseOperation(operation)
	switch op {
	case OpStage:
		m.stageErrorsTotal.WithLabelValues(stage, errorType).Inc()
	case OpChunkCommit:
		m.chunkCommitErrorsTotal.WithLabelValues(errorType).Inc()
	case OpDbQuery:
		m.dbQueryErrorsTotal.Inc()
	}
}

// AddRecords counts n records of kind with the given outcome.
func (m *IngestMetrics) AddRecords(kind, outcome string, n int64) {
	if n <= 0 {
		return
	}
	m.recordsTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

// SetResidentMemory records the latest RSS sample.
func (m *IngestMetrics) SetResidentMemory(bytes uint64) {
	m.residentMemoryBytes.Set(float64(bytes))
}

// ObserveQuery records one SQL statement. It matches the datastore query
// observer signature.
func (m *IngestMetrics) ObserveQuery(elapsed time.Duration, err error) {
	m.dbQueryDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.dbQueryErrorsTotal.Inc()
	}
}

// ObserveDownload records one remote download. It matches the source
// download observer signature.
func (m *IngestMetrics) ObserveDownload(scheme string, bytes int64, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.downloadsTotal.WithLabelValues(scheme, status).Inc()
	m.downloadDuration.WithLabelValues(scheme).Observe(elapsed.Seconds())
	if bytes > 0 {
		m.downloadBytesTotal.WithLabelValues(scheme).Add(float64(bytes))
	}
}
