package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idgate",
		Name:      "scans_total",
		Help:      "Total number of scan requests by method and result",
	}, []string{"method", "result"})

	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "idgate",
		Name:      "match_distance",
		Help:      "Best distance reported per face scan",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 12),
	})

	ComplianceChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idgate",
		Name:      "compliance_checks_total",
		Help:      "Total number of compliance evaluations by resulting status",
	}, []string{"status"})

	ExpiringAttributes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "idgate",
		Name:      "expiring_attributes",
		Help:      "Attributes inside their warning window at the last sweep",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "idgate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
