package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Statistic is implemented by metric groups that can be registered and fed
type Statistic interface {
	Collect() []prometheus.Collector
	EvaluateDuration(method string, start time.Time)
}

// BrokerMetrics tracks durations of broker operations
type BrokerMetrics struct {
	OperationsDuration *prometheus.HistogramVec
}

// NewBrokerMetrics initializes broker metrics
func NewBrokerMetrics() *BrokerMetrics {
	bm := &BrokerMetrics{}

	bm.OperationsDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "broker_operations_duration",
		Help:    "Broker operations methods duration",
		Buckets: prometheus.ExponentialBuckets(0.001, 1.5, 25),
	}, []string{"method"})

	return bm
}

func (bm *BrokerMetrics) Collect() []prometheus.Collector {
	return []prometheus.Collector{bm.OperationsDuration}
}

func (bm *BrokerMetrics) EvaluateDuration(method string, start time.Time) {
	duration := time.Since(start)
	bm.OperationsDuration.With(prometheus.Labels{
		"method": method,
	}).Observe(duration.Seconds())
}
