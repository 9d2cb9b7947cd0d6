package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SynthesizedResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "synthesized_resources",
		Namespace: Namespace,
		Subsystem: SynthSubsystem,
		Help:      "Resources in the last synthesized template by type",
	}, []string{"type"})

	Synthesis = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:      "synthesis_duration_seconds",
		Namespace: Namespace,
		Subsystem: SynthSubsystem,
		Help:      "Duration of assembling and synthesizing the stack",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)

func SynthesisObserver() ObserveFunc {
	pt := prometheus.NewTimer(Synthesis)
	return pt.ObserveDuration
}

// SetSynthesizedResources records the resource counts of a template.
func SetSynthesizedResources(counts map[string]int) {
	SynthesizedResources.Reset()
	for resourceType, n := range counts {
		SynthesizedResources.WithLabelValues(resourceType).Set(float64(n))
	}
}
