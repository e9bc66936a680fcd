package grove

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCASRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "collection",
		Name:      "cas_retries_total",
		Help:      "Compare-and-swap attempts lost to a concurrent mutation, by operation.",
	}, []string{"op"})

	metricCASFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "collection",
		Name:      "retry_exhausted_total",
		Help:      "Collection mutations that exhausted their retry budget, by operation.",
	}, []string{"op"})

	metricTraversalSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grove",
		Subsystem: "render",
		Name:      "traversal_seconds",
		Help:      "Time spent walking the scene graph for one camera render.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
	})

	metricTriangles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "render",
		Name:      "triangles_total",
		Help:      "Triangles emitted by renderables.",
	})

	metricBehaviourTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "behaviour",
		Name:      "ticks_total",
		Help:      "Behaviour processing passes that ran, by behaviour name.",
	}, []string{"behaviour"})

	metricBehaviourErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "behaviour",
		Name:      "errors_total",
		Help:      "Behaviour processing passes that returned an error, by behaviour name.",
	}, []string{"behaviour"})

	metricParticles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "behaviour",
		Name:      "particles_emitted_total",
		Help:      "Particles created by particle generators.",
	})

	metricResourceLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "resource",
		Name:      "loads_total",
		Help:      "Resource load attempts, by kind and result.",
	}, []string{"kind", "result"})
)
