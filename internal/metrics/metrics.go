// File: internal/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

var (
	GenerationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_generation_queue_depth",
			Help: "Number of generation jobs waiting for the model",
		},
	)

	GenerationActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_generation_active",
			Help: "1 while a generation holds the model",
		},
	)

	GenerationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_generation_jobs_total",
			Help: "Generation jobs by request kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_generation_duration_seconds",
			Help:    "Time a job held the model",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"kind"},
	)

	GenerationQueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_generation_queue_wait_seconds",
			Help:    "Time a job waited before reaching the model",
			Buckets: prometheus.ExponentialBuckets(0.01, 3, 10),
		},
		[]string{"kind"},
	)

	GenerationFragments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_generation_fragments_total",
			Help: "Text fragments streamed to callers",
		},
		[]string{"kind"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	ImageRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_image_rejections_total",
			Help: "Uploaded images rejected before generation, by reason",
		},
		[]string{"reason"},
	)
)

// SchedulerMetrics feeds scheduler observations into the collectors above.
type SchedulerMetrics struct{}

var _ scheduler.Metrics = SchedulerMetrics{}

func (SchedulerMetrics) SetQueueDepth(n int) { GenerationQueueDepth.Set(float64(n)) }

func (SchedulerMetrics) SetActive(active bool) {
	if active {
		GenerationActive.Set(1)
		return
	}
	GenerationActive.Set(0)
}

func (SchedulerMetrics) ObserveQueueWait(kind string, d time.Duration) {
	GenerationQueueWait.WithLabelValues(kind).Observe(d.Seconds())
}

func (SchedulerMetrics) ObserveJob(kind string, outcome scheduler.Outcome, d time.Duration) {
	GenerationJobs.WithLabelValues(kind, string(outcome)).Inc()
	if outcome != scheduler.OutcomeRejected && outcome != scheduler.OutcomeDropped {
		GenerationDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (SchedulerMetrics) AddFragments(kind string, n int) {
	GenerationFragments.WithLabelValues(kind).Add(float64(n))
}

// ObserveHTTP counts a finished request.
func ObserveHTTP(route string, code int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveImageRejection counts an image refused by the decoder.
func ObserveImageRejection(reason string) {
	ImageRejections.WithLabelValues(reason).Inc()
}
