package session

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "teachable"

var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "loop_ticks_total",
		Help:      "Frames processed by the frame loop while playing",
	})
	extractionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "extraction_failures_total",
		Help:      "Frames skipped because no embedding could be extracted",
	})
	examplesAddedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "examples_added_total",
		Help:      "Training examples added, by class",
	}, []string{"class"})
	predictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "predictions_total",
		Help:      "Frames classified, by predicted class",
	}, []string{"class"})
	tickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "loop_tick_seconds",
		Help:      "Time spent in one tick of the frame loop",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(ticksTotal, extractionFailuresTotal, examplesAddedTotal, predictionsTotal, tickSeconds)
}

func classLabel(class int) string {
	return strconv.Itoa(class)
}
