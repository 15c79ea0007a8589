package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pinrelay"

var (
	// Total number of write requests per result kind ("ok" on success)
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writes_total",
		Help:      "Total number of write requests per result kind",
	}, []string{"kind"})
	// Total number of pins claimed from the GPIO facility
	opensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pin_opens_total",
		Help:      "Total number of pins claimed from the GPIO facility",
	})
	// Total number of pins released back to the GPIO facility
	releasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pin_releases_total",
		Help:      "Total number of pins released to the GPIO facility",
	})
	// Total number of pins whose release failed during cleanup
	releaseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pin_release_failures_total",
		Help:      "Total number of pins whose release failed",
	})
	// Number of pins held in the registry
	openPins = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_pins",
		Help:      "Number of currently claimed pins",
	})
)
