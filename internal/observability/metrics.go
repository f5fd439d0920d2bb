package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	intakeRequestsTotal    *prometheus.CounterVec
	intakeLatencySeconds   *prometheus.HistogramVec
	chunkUploadsTotal      *prometheus.CounterVec
	reassemblySeconds      prometheus.Histogram
	degradedFinalizesTotal *prometheus.CounterVec
	emergencyAcksTotal     *prometheus.CounterVec
	cdnUploadRejected      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the intake pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		intakeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_requests_total",
			Help: "Total number of submission intake requests by mode and outcome.",
		}, []string{"mode", "outcome"})

		intakeLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_latency_seconds",
			Help:    "Latency distribution for submission intake requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"mode"})

		chunkUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunk_uploads_total",
			Help: "Total number of chunk uploads by status.",
		}, []string{"status"})

		reassemblySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reassembly_duration_seconds",
			Help:    "Duration of chunk reassembly runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
		})

		degradedFinalizesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "degraded_finalizes_total",
			Help: "Finalize calls that completed in a degraded storage mode.",
		}, []string{"reason"})

		emergencyAcksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_acks_total",
			Help: "Degrade-ladder requests acknowledged, by tier and persistence outcome.",
		}, []string{"tier", "persisted"})

		cdnUploadRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdn_upload_rejected_total",
			Help: "Direct CDN uploads rejected before storage, by cause.",
		}, []string{"cause"})

		prometheus.MustRegister(
			intakeRequestsTotal,
			intakeLatencySeconds,
			chunkUploadsTotal,
			reassemblySeconds,
			degradedFinalizesTotal,
			emergencyAcksTotal,
			cdnUploadRejected,
		)
	})
}

// IntakeRequests exposes the counter for intake requests.
func IntakeRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return intakeRequestsTotal
}

// IntakeLatency exposes the latency histogram for intake requests.
func IntakeLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return intakeLatencySeconds
}

// ChunkUploads exposes the chunk upload counter.
func ChunkUploads() *prometheus.CounterVec {
	RegisterMetrics()
	return chunkUploadsTotal
}

// ReassemblyDuration exposes the reassembly latency histogram.
func ReassemblyDuration() prometheus.Histogram {
	RegisterMetrics()
	return reassemblySeconds
}

// DegradedFinalizes exposes the degraded completion counter.
func DegradedFinalizes() *prometheus.CounterVec {
	RegisterMetrics()
	return degradedFinalizesTotal
}

// EmergencyAcks exposes the degrade-ladder acknowledgement counter.
func EmergencyAcks() *prometheus.CounterVec {
	RegisterMetrics()
	return emergencyAcksTotal
}

// CDNUploadRejected exposes the CDN upload rejection counter.
func CDNUploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return cdnUploadRejected
}
