package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/meshmac/internal/mac"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmac",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meshmac",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	macOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmac",
			Subsystem: "mac",
			Name:      "outcomes_total",
			Help:      "Handshake attempts by the phase that settled them and its outcome.",
		},
		[]string{"node", "phase", "outcome"},
	)
	macDataFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmac",
			Subsystem: "mac",
			Name:      "data_frames_total",
			Help:      "DATA frames put on air (tx) or accepted (rx).",
		},
		[]string{"node", "direction"},
	)
	macBytesAcked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmac",
			Subsystem: "mac",
			Name:      "bytes_acked_total",
			Help:      "Payload bytes acknowledged by receivers.",
		},
		[]string{"node"},
	)
	macInvariantViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmac",
			Subsystem: "mac",
			Name:      "invariant_violations_total",
			Help:      "Fatal session bookkeeping violations.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			macOutcomes,
			macDataFrames,
			macBytesAcked,
			macInvariantViolations,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordAttempt folds one finished handshake into the MAC counters.
func RecordAttempt(node string, a mac.Attempt, err error) {
	RegisterMetrics()
	if mac.IsFatal(err) {
		macInvariantViolations.WithLabelValues(node).Inc()
	}
	macOutcomes.WithLabelValues(node, OutcomePhase(a.Outcome), a.Outcome.String()).Inc()

	if a.Payload == nil {
		return
	}
	switch a.Role {
	case mac.RoleInitiator:
		macDataFrames.WithLabelValues(node, "tx").Inc()
		if a.OK() {
			macBytesAcked.WithLabelValues(node).Add(float64(a.Bytes()))
		}
	case mac.RoleResponder:
		macDataFrames.WithLabelValues(node, "rx").Inc()
	}
}

// OutcomePhase names the receive phase an outcome belongs to.
func OutcomePhase(o mac.Outcome) string {
	switch o {
	case mac.RTSWrong, mac.RTSTimeout:
		return "wait_rts"
	case mac.CTSWrong, mac.CTSNotDest, mac.CTSTimeout:
		return "wait_cts"
	case mac.ACKWrong, mac.ACKTimeout:
		return "wait_ack"
	case mac.MsgTimeout, mac.MsgWrong, mac.MsgUncleared:
		return "recv_msg"
	case mac.Success:
		return "complete"
	default:
		return "radio"
	}
}
