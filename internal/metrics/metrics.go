// Package metrics exposes the session layer's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the manager and sessions update. A
// single Registry is constructed at startup and threaded through, the
// same way the teacher threads a *zerolog.Logger.
type Registry struct {
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionsRejected *prometheus.CounterVec // reason

	AdmissionPaused prometheus.Gauge

	MethodCalls   *prometheus.CounterVec // method
	MethodErrors  *prometheus.CounterVec // method, kind

	CacheHits   *prometheus.CounterVec // cache
	CacheMisses *prometheus.CounterVec // cache

	ReorgsTotal    prometheus.Counter
	NotifyLatency  prometheus.Histogram
	NotifiesSent   prometheus.Counter

	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessiond_sessions_active",
			Help: "Number of currently connected sessions.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_total",
			Help: "Total sessions ever admitted.",
		}),
		SessionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_sessions_rejected_total",
			Help: "Sessions rejected at admission, by reason.",
		}, []string{"reason"}),
		AdmissionPaused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessiond_admission_paused",
			Help: "1 when non-RPC listeners are paused under session pressure, else 0.",
		}),
		MethodCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_method_calls_total",
			Help: "JSON-RPC method invocations, by method.",
		}, []string{"method"}),
		MethodErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_method_errors_total",
			Help: "JSON-RPC method errors, by method and error kind.",
		}, []string{"method", "kind"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_cache_hits_total",
			Help: "Cache hits, by cache name.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_cache_misses_total",
			Help: "Cache misses, by cache name.",
		}, []string{"cache"}),
		ReorgsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_reorgs_total",
			Help: "Chain reorganizations observed.",
		}),
		NotifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessiond_notify_dispatch_seconds",
			Help:    "Time to fan a single notification tuple out to all sessions.",
			Buckets: prometheus.DefBuckets,
		}),
		NotifiesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_notifies_sent_total",
			Help: "Individual subscription notifications pushed to clients.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_bytes_sent_total",
			Help: "Bytes written to client connections.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_bytes_received_total",
			Help: "Bytes read from client connections.",
		}),
	}

	reg.MustRegister(
		m.SessionsActive, m.SessionsTotal, m.SessionsRejected, m.AdmissionPaused,
		m.MethodCalls, m.MethodErrors, m.CacheHits, m.CacheMisses,
		m.ReorgsTotal, m.NotifyLatency, m.NotifiesSent,
		m.BytesSent, m.BytesReceived,
	)
	return m
}
