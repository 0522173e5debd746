package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "reviewbooster"

var eventLabels = []string{"topic", "event_type"}

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "events_published_total",
			Help:      "Events written to Kafka.",
		},
		eventLabels,
	)

	publishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "publish_errors_total",
			Help:      "Events that could not be written to Kafka.",
		},
		eventLabels,
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Time spent in a single WriteMessages call.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic"},
	)

	messageBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "message_bytes",
			Help:      "Encoded size of published event envelopes.",
			Buckets:   prometheus.ExponentialBuckets(128, 2, 8),
		},
		[]string{"topic"},
	)
)

func observePublish(topic, eventType string, size int, seconds float64, err error) {
	publishDuration.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		publishErrorsTotal.WithLabelValues(topic, eventType).Inc()
		return
	}
	publishedTotal.WithLabelValues(topic, eventType).Inc()
	messageBytes.WithLabelValues(topic).Observe(float64(size))
}
