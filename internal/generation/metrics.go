package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generationsTotal counts finished generations by result.
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playground_generations_total",
		Help: "Total generation runs by result",
	}, []string{"result"})

	// generationDuration tracks wall time from start to terminal event.
	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playground_generation_duration_seconds",
		Help:    "Generation run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(5, 2, 8), // 5s to ~10m
	})

	// generationActive is 1 while a generation runs.
	generationActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playground_generation_active",
		Help: "Whether a generation is running",
	})
)
