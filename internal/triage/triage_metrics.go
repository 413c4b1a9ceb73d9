package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/citycare/internal/cluster"
	"github.com/linnemanlabs/citycare/internal/llm"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	OperationsTotal        *prometheus.CounterVec
	OperationDuration      *prometheus.HistogramVec
	CacheLookupsTotal      *prometheus.CounterVec
	GatewayAttemptsTotal   *prometheus.CounterVec
	GatewayAttemptDuration *prometheus.HistogramVec
	NotificationsTotal     *prometheus.CounterVec
	ClusterRunsTotal       prometheus.Counter
	ClusterDuration        prometheus.Histogram
	ClustersFound          prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycare_triage_operations_total",
			Help: "Triage operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citycare_triage_operation_duration_seconds",
			Help:    "Duration of triage operations in seconds, cache hits included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 10), // 5ms .. ~98s
		}, []string{"operation"}),
		CacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycare_triage_cache_lookups_total",
			Help: "Cache lookups by operation and result.",
		}, []string{"operation", "result"}),
		GatewayAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycare_llm_attempts_total",
			Help: "Model gateway delivery attempts by payload shape and outcome.",
		}, []string{"shape", "outcome"}),
		GatewayAttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citycare_llm_attempt_duration_seconds",
			Help:    "Duration of individual model gateway attempts in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. 32s
		}, []string{"shape"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycare_urgent_notifications_total",
			Help: "Urgent report notifications by result.",
		}, []string{"result"}),
		ClusterRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "citycare_cluster_detections_total",
			Help: "Total cluster detection runs.",
		}),
		ClusterDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "citycare_cluster_detection_duration_seconds",
			Help:    "Duration of cluster detection runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		}),
		ClustersFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "citycare_cluster_seeds",
			Help:    "Cluster seeds returned per detection run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
	}

	reg.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.CacheLookupsTotal,
		m.GatewayAttemptsTotal,
		m.GatewayAttemptDuration,
		m.NotificationsTotal,
		m.ClusterRunsTotal,
		m.ClusterDuration,
		m.ClustersFound,
	)

	return m
}

// Hooks returns service Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnCacheLookup: func(op Operation, hit bool) {
			result := "miss"
			if hit {
				result = "hit"
			}
			m.CacheLookupsTotal.WithLabelValues(string(op), result).Inc()
		},
		OnComplete: func(op Operation, outcome Outcome, duration float64) {
			m.OperationsTotal.WithLabelValues(string(op), string(outcome)).Inc()
			m.OperationDuration.WithLabelValues(string(op)).Observe(duration)
		},
		OnNotify: func(err error) {
			result := "sent"
			if err != nil {
				result = "error"
			}
			m.NotificationsTotal.WithLabelValues(result).Inc()
		},
	}
}

// GatewayHooks returns llm.Hooks recording every delivery attempt.
func (m *Metrics) GatewayHooks() llm.Hooks {
	return llm.Hooks{
		OnAttempt: func(shape llm.Shape, outcome string, duration float64) {
			m.GatewayAttemptsTotal.WithLabelValues(string(shape), outcome).Inc()
			m.GatewayAttemptDuration.WithLabelValues(string(shape)).Observe(duration)
		},
	}
}

// ClusterHooks returns cluster.Hooks recording detection runs.
func (m *Metrics) ClusterHooks() cluster.Hooks {
	return cluster.Hooks{
		OnDetect: func(clusters int, duration float64) {
			m.ClusterRunsTotal.Inc()
			m.ClusterDuration.Observe(duration)
			m.ClustersFound.Observe(float64(clusters))
		},
	}
}
