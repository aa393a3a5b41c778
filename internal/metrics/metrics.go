package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics.
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Blobstore operation metrics (upload/download/resolve/delete)
	BlobstoreOperationTotal    *prometheus.CounterVec
	BlobstoreOperationDuration *prometheus.HistogramVec

	// Event publishing metrics
	EventPublishTotal    *prometheus.CounterVec
	EventPublishDuration *prometheus.HistogramVec

	// Rendition encode metrics, one observation per rendition per video
	RenditionEncodeTotal    *prometheus.CounterVec
	RenditionEncodeDuration *prometheus.HistogramVec

	// Segment serve metrics, emitted by the HLS Server for each segment
	// request it streams back
	SegmentServeTotal    *prometheus.CounterVec
	SegmentServeDuration *prometheus.HistogramVec

	// Pipeline queue depth at the moment a video enters the worker pool
	PipelineQueueDepth prometheus.Gauge
}

var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics,
// returning the existing instance if one was already created.
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		BlobstoreOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blobstore_operations_total",
			Help: "Total number of blobstore operations",
		}, []string{"operation", "status"}),

		BlobstoreOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blobstore_operation_duration_seconds",
			Help:    "Blobstore operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Total number of event publish operations",
		}, []string{"event_type", "status"}),

		EventPublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "event_publish_duration_seconds",
			Help:    "Event publish duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type", "status"}),

		RenditionEncodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendition_encode_total",
			Help: "Total number of rendition encode attempts",
		}, []string{"rendition", "status"}),

		RenditionEncodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rendition_encode_duration_seconds",
			Help:    "Rendition encode duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"rendition", "status"}),

		SegmentServeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "segment_serve_total",
			Help: "Total number of HLS segment requests served",
		}, []string{"status"}),

		SegmentServeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "segment_serve_duration_seconds",
			Help:    "HLS segment serve duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),

		PipelineQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Number of videos waiting for a pipeline worker slot",
		}),
	}

	registerMetrics(m)
	globalMetrics = m
	return m
}

// registerMetrics registers all metrics with the default registry.
func registerMetrics(m *Metrics) {
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.BlobstoreOperationTotal)
	registerOrGet(m.BlobstoreOperationDuration)
	registerOrGet(m.EventPublishTotal)
	registerOrGet(m.EventPublishDuration)
	registerOrGet(m.RenditionEncodeTotal)
	registerOrGet(m.RenditionEncodeDuration)
	registerOrGet(m.SegmentServeTotal)
	registerOrGet(m.SegmentServeDuration)
	registerOrGet(m.PipelineQueueDepth)
}

// registerOrGet tries to register a metric, returning the existing
// collector if one with the same name was already registered.
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
