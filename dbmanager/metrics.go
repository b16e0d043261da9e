package dbmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the optional Prometheus instrumentation for a Manager,
// following the teacher's promauto-registered-counters-and-gauges pattern
// (tracing/metrics.go) generalized to the handful of lifecycle events this
// module's DatabaseManager façade exposes. A nil *Metrics (the default,
// see NewManager) disables instrumentation entirely; every call site
// nil-checks before recording.
type Metrics struct {
	DatabasesCreated   prometheus.Counter
	DatabasesOpened    prometheus.Counter
	DatabasesTruncated prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		DatabasesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treedb",
			Name:      "databases_created_total",
			Help:      "Total number of databases created.",
		}),
		DatabasesOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treedb",
			Name:      "databases_opened_total",
			Help:      "Total number of OpenDatabase calls that returned a fresh (not idempotently reused) handle.",
		}),
		DatabasesTruncated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treedb",
			Name:      "databases_truncated_total",
			Help:      "Total number of databases truncated.",
		}),
	}
}
