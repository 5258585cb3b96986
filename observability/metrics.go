package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Standard metric names emitted by the service.
const (
	MetricOCRInvocations  = "deckscan_ocr_invocations_total"
	MetricOCRFallbacks    = "deckscan_ocr_fallbacks_total"
	MetricFingerprintHits = "deckscan_fingerprint_cache_hits_total"
	MetricJobsTotal       = "deckscan_jobs_total"
	MetricStageDuration   = "deckscan_stage_duration_seconds"
	MetricResolutions     = "deckscan_resolutions_total"
)

// Registry holds every deckscan collector; the /metrics endpoint serves it.
var Registry = prometheus.NewRegistry()

var (
	// OCRInvocations counts engine runs by engine name and image variant.
	OCRInvocations = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: MetricOCRInvocations,
		Help: "OCR engine invocations by engine and preprocessing variant.",
	}, []string{"engine", "variant"})

	// OCRFallbacks counts secondary-engine activations by trigger reason.
	OCRFallbacks = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: MetricOCRFallbacks,
		Help: "Secondary OCR activations by trigger reason.",
	}, []string{"reason"})

	// FingerprintHits counts submissions answered from the fingerprint index
	// without running the pipeline.
	FingerprintHits = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: MetricFingerprintHits,
		Help: "Submissions deduplicated by content fingerprint.",
	})

	// JobsTotal counts job terminal transitions by state.
	JobsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: MetricJobsTotal,
		Help: "Jobs by reached state.",
	}, []string{"state"})

	// StageDuration tracks per-stage pipeline latency.
	StageDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    MetricStageDuration,
		Help:    "Pipeline stage latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// Resolutions counts card resolutions by the lookup step that answered.
	Resolutions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: MetricResolutions,
		Help: "Card resolutions by source.",
	}, []string{"source"})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

// Handler serves the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// TimeStage starts a stage timer; the returned func records the elapsed time
// when called.
func TimeStage(stage string) func() {
	start := time.Now()
	return func() {
		StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
