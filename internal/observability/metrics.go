package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total control API requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Control API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carlink",
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the serial link.",
		},
		[]string{"kind"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carlink",
			Subsystem: "link",
			Name:      "frames_dropped_total",
			Help:      "Lines read from the serial link that did not produce a frame.",
		},
		[]string{"reason"},
	)
	linkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carlink",
			Subsystem: "link",
			Name:      "writes_total",
			Help:      "Writes to the serial link.",
		},
		[]string{"result"},
	)
	exchangeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carlink",
			Subsystem: "exchange",
			Name:      "outcomes_total",
			Help:      "Terminal exchange outcomes.",
		},
		[]string{"direction", "outcome"},
	)
	peersVisible = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "carlink",
			Subsystem: "peers",
			Name:      "visible",
			Help:      "Peers currently shown as reachable.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			framesReceived,
			framesDropped,
			linkWrites,
			exchangeOutcomes,
			peersVisible,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameReceived(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

func RecordFrameDropped(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordLinkWrite(err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	linkWrites.WithLabelValues(result).Inc()
}

func RecordExchangeOutcome(direction, outcome string) {
	RegisterMetrics()
	exchangeOutcomes.WithLabelValues(direction, outcome).Inc()
}

func SetPeersVisible(n int) {
	RegisterMetrics()
	peersVisible.Set(float64(n))
}
