package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the video frame service
type Metrics struct {
	// UDP datagram metrics
	DatagramsReceived  prometheus.Counter
	DatagramsProcessed prometheus.Counter
	ForeignDatagrams   prometheus.Counter
	ParseErrors        prometheus.Counter

	// Reassembly metrics
	ActiveAssemblies     prometheus.Gauge
	FramesCompleted      prometheus.Counter
	FramesEvicted        prometheus.Counter
	ChunksRejected       prometheus.Counter
	ChunksDuplicate      prometheus.Counter
	FrameSizeBytes       prometheus.Histogram
	FrameAssemblySeconds prometheus.Histogram
	FramesPerSecond      prometheus.Gauge

	// Publisher metrics
	FramesPublished prometheus.Counter
	PublishErrors   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		DatagramsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		DatagramsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_datagrams_processed_total",
			Help: "Total number of UDP datagrams successfully processed",
		}),
		ForeignDatagrams: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_foreign_datagrams_total",
			Help: "Total number of datagrams that did not match the protocol",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_parse_errors_total",
			Help: "Total number of datagrams with invalid protocol headers",
		}),

		ActiveAssemblies: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vf_active_assemblies",
			Help: "Current number of in-flight frame assemblies",
		}),
		FramesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_frames_completed_total",
			Help: "Total number of frames fully reassembled",
		}),
		FramesEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_frames_evicted_total",
			Help: "Total number of stale assemblies evicted by GC",
		}),
		ChunksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_chunks_rejected_total",
			Help: "Total number of chunks dropped for out-of-range index or offset",
		}),
		ChunksDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_chunks_duplicate_total",
			Help: "Total number of re-delivered chunks ignored",
		}),
		FrameSizeBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vf_frame_size_bytes",
			Help:    "Size distribution of completed frames",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		FrameAssemblySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vf_frame_assembly_seconds",
			Help:    "Time from first chunk to completion per frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		FramesPerSecond: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vf_frames_per_second",
			Help: "Frame completion rate over the last measurement window",
		}),

		FramesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_frames_published_total",
			Help: "Total number of completed frames published to Redis",
		}),
		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vf_publish_errors_total",
			Help: "Total number of failed frame publishes",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vf_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
