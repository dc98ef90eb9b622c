package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	gatewayCallHistogram  *prometheus.HistogramVec
	transferOutcomes      *prometheus.CounterVec
	reconcileFlagged      *prometheus.CounterVec
	reconcileQueueGauge   prometheus.Gauge
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
	sweptStatesCounter    prometheus.Counter
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		gatewayCallHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Provider gateway call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "op", "outcome"})

		transferOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_outcomes_total",
			Help: "Terminal transfer outcomes by type and status",
		}, []string{"type", "status"})

		reconcileFlagged = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_flagged_total",
			Help: "Transfers flagged for reconciliation by cause",
		}, []string{"cause"})

		reconcileQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reconcile_queue_depth",
			Help: "Current number of transfers awaiting reconciliation",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		sweptStatesCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauth_states_swept_total",
			Help: "Expired OAuth link states removed by the sweeper",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			gatewayCallHistogram,
			transferOutcomes,
			reconcileFlagged,
			reconcileQueueGauge,
			idempotencyCounter,
			workerRunCounter,
			sweptStatesCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func ObserveGatewayCall(provider, op, outcome string, duration time.Duration) {
	if gatewayCallHistogram == nil {
		return
	}
	gatewayCallHistogram.WithLabelValues(provider, op, outcome).Observe(duration.Seconds())
}

func IncTransferOutcome(transferType, status string) {
	if transferOutcomes == nil {
		return
	}
	transferOutcomes.WithLabelValues(transferType, status).Inc()
}

func IncReconcileFlagged(cause string) {
	if reconcileFlagged == nil {
		return
	}
	reconcileFlagged.WithLabelValues(cause).Inc()
}

func SetReconcileQueueDepth(depth float64) {
	if reconcileQueueGauge == nil {
		return
	}
	reconcileQueueGauge.Set(depth)
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func AddSweptStates(n int64) {
	if sweptStatesCounter == nil || n <= 0 {
		return
	}
	sweptStatesCounter.Add(float64(n))
}
