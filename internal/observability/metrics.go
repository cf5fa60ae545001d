package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpDurationHistogram     *prometheus.HistogramVec
	webhookEventCounter       *prometheus.CounterVec
	stageTransitionCounter    *prometheus.CounterVec
	attestationAttemptCounter *prometheus.CounterVec
	pendingConfirmationGauge  prometheus.Gauge
	workerRunCounter          *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		webhookEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook notifications by type and outcome",
		}, []string{"type", "outcome"})

		stageTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_stage_transitions_total",
			Help: "Transfer pipeline stage transitions",
		}, []string{"stage"})

		attestationAttemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_attempts_total",
			Help: "Attestation poll attempts by result",
		}, []string{"result"})

		pendingConfirmationGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pending_confirmations",
			Help: "Current number of unconsumed confirmation tokens",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			webhookEventCounter,
			stageTransitionCounter,
			attestationAttemptCounter,
			pendingConfirmationGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementWebhookEvent(notificationType, outcome string) {
	if webhookEventCounter == nil {
		return
	}
	webhookEventCounter.WithLabelValues(notificationType, outcome).Inc()
}

func IncrementStageTransition(stage string) {
	if stageTransitionCounter == nil {
		return
	}
	stageTransitionCounter.WithLabelValues(stage).Inc()
}

func IncrementAttestationAttempt(result string) {
	if attestationAttemptCounter == nil {
		return
	}
	attestationAttemptCounter.WithLabelValues(result).Inc()
}

func SetPendingConfirmations(size int64) {
	if pendingConfirmationGauge == nil {
		return
	}
	pendingConfirmationGauge.Set(float64(size))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
