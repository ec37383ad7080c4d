package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	filesTotal        *prometheus.CounterVec
	fileDuration      *prometheus.HistogramVec
	filesInFlight     prometheus.Gauge
	queueLag          *prometheus.HistogramVec
	chunksIndexed     *prometheus.CounterVec
	embedBatchErrors  *prometheus.CounterVec
	indexErrors       *prometheus.CounterVec
	pendingLargeFiles *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "files_processed_total",
			Help:      "Processed files by lane and outcome.",
		},
		[]string{"service", "lane", "outcome"},
	)
	fileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "file_process_duration_seconds",
			Help:      "Per-file processing duration by lane.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800, 7200},
		},
		[]string{"service", "lane"},
	)
	filesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "files_in_flight",
			Help:      "Files currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between dispatch and processing start per lane.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "lane"},
	)
	chunksIndexed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "chunks_indexed_total",
			Help:      "Chunks upserted into the vector store.",
		},
		[]string{"service"},
	)
	embedBatchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "embed_batch_errors_total",
			Help:      "Embedding batches that exhausted their retries.",
		},
		[]string{"service"},
	)
	indexErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "vector_index_errors_total",
			Help:      "Vector store failures absorbed without failing the job.",
		},
		[]string{"service"},
	)
	pendingLargeFiles := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ki",
			Subsystem: "worker",
			Name:      "pending_large_files",
			Help:      "Deferred large-file units not yet reported back.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		filesTotal, fileDuration, filesInFlight, queueLag,
		chunksIndexed, embedBatchErrors, indexErrors, pendingLargeFiles,
	)

	return &WorkerMetrics{
		registry:          registry,
		filesTotal:        filesTotal,
		fileDuration:      fileDuration,
		filesInFlight:     filesInFlight,
		queueLag:          queueLag,
		chunksIndexed:     chunksIndexed,
		embedBatchErrors:  embedBatchErrors,
		indexErrors:       indexErrors,
		pendingLargeFiles: pendingLargeFiles,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartFile() {
	m.filesInFlight.Inc()
}

func (m *WorkerMetrics) FinishFile(service, lane string, duration time.Duration, err error) {
	m.filesInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.filesTotal.WithLabelValues(service, lane, outcome).Inc()
	m.fileDuration.WithLabelValues(service, lane).Observe(duration.Seconds())
}

func (m *WorkerMetrics) SkipFile(service, lane string) {
	m.filesTotal.WithLabelValues(service, lane, "skipped").Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(service, lane string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service, lane).Observe(lag.Seconds())
}

func (m *WorkerMetrics) AddChunksIndexed(service string, n int) {
	if n > 0 {
		m.chunksIndexed.WithLabelValues(service).Add(float64(n))
	}
}

func (m *WorkerMetrics) EmbedBatchError(service string) {
	m.embedBatchErrors.WithLabelValues(service).Inc()
}

func (m *WorkerMetrics) IndexError(service string) {
	m.indexErrors.WithLabelValues(service).Inc()
}

func (m *WorkerMetrics) SetPendingLargeFiles(service string, n int) {
	m.pendingLargeFiles.WithLabelValues(service).Set(float64(n))
}
