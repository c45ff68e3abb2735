package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "textshard"

// DefaultLatencyBuckets are the buckets of the operation duration histogram if none are
// configured.
var DefaultLatencyBuckets = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1.0, 10.0, 30.0, 60.0}

// Gauge is a subset of a prometheus Gauge
type Gauge interface {
	Set(float64)
}

// Counter is a subset of a prometheus Counter
type Counter interface {
	Add(float64)
}

// OperationMetrics groups the collectors updated by shard and replication operations.
type OperationMetrics struct {
	operations       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	shards           prometheus.Gauge
	replicationLevel prometheus.Gauge
	replicasRepaired prometheus.Counter
}

// NewOperationMetrics creates the operation collectors. The histogram uses buckets, or
// DefaultLatencyBuckets if buckets is empty.
func NewOperationMetrics(buckets []float64) *OperationMetrics {
	if len(buckets) == 0 {
		buckets = DefaultLatencyBuckets
	}

	return &OperationMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of shard and replication operations by result",
			},
			[]string{"operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Time spent performing shard and replication operations",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		shards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "shards",
				Help:      "Number of shards in the current mapping",
			},
		),
		replicationLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "replication_level",
				Help:      "Highest replication level found on disk",
			},
		),
		replicasRepaired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replicas_repaired_total",
				Help:      "Total number of primaries restored and replicas rewritten by sync",
			},
		),
	}
}

// Register registers all collectors with registerer.
func (m *OperationMetrics) Register(registerer prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.operations,
		m.duration,
		m.shards,
		m.replicationLevel,
		m.replicasRepaired,
	} {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// ObserveOperation records the outcome and duration of an operation.
func (m *OperationMetrics) ObserveOperation(operation string, err error, seconds float64) {
	result := "success"
	if err != nil {
		result = "failure"
	}

	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(seconds)
}

// Shards returns the gauge tracking the shard count.
func (m *OperationMetrics) Shards() Gauge { return m.shards }

// ReplicationLevel returns the gauge tracking the highest replication level.
func (m *OperationMetrics) ReplicationLevel() Gauge { return m.replicationLevel }

// ReplicasRepaired returns the counter of files written by sync.
func (m *OperationMetrics) ReplicasRepaired() Counter { return m.replicasRepaired }

// Operations returns the operation counter, labelled by operation and result.
func (m *OperationMetrics) Operations() *prometheus.CounterVec { return m.operations }

// WriteTextfile writes all metrics gathered by gatherer to path in the text exposition format,
// suitable for the node exporter's textfile collector.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, gatherer)
}
