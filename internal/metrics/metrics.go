// Package metrics exposes the application's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Searches counts student searches served.
	Searches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chamada_searches_total",
		Help: "Student searches served.",
	})

	// Calls counts recorded call events.
	Calls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chamada_calls_total",
		Help: "Call events recorded.",
	})

	// SweptEvents counts expired events removed by the sweeper.
	SweptEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chamada_swept_events_total",
		Help: "Expired call events removed by the background sweep.",
	})
)
