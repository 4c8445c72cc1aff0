// Package metrics provides Prometheus metrics for the codexindex service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nainya/codexindex/pkg/index"
)

const namespace = "codexindex"

// Metrics holds every collector. It satisfies the engine and index
// observer interfaces.
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Index metrics
	IndexOperationsTotal   *prometheus.CounterVec
	IndexOperationDuration *prometheus.HistogramVec
	IndexedNodes           prometheus.Gauge
	QueriesTotal           *prometheus.CounterVec
	QueryDuration          *prometheus.HistogramVec

	// Durability metrics
	JournalWritesTotal     *prometheus.CounterVec
	JournalEntriesTotal    prometheus.Counter
	CheckpointsTotal       *prometheus.CounterVec
	CheckpointDuration     prometheus.Histogram
	SnapshotNodes          prometheus.Gauge
	RecoveryReplayedOps    prometheus.Gauge
	RecoveryDurationSecond prometheus.Gauge

	ServerStartTime time.Time
}

// NewMetrics creates every collector and registers it with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{ServerStartTime: time.Now()}

	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)
	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "Duration of gRPC requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_requests_in_flight",
			Help:      "Number of gRPC requests currently being processed",
		},
	)

	m.IndexOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_operations_total",
			Help:      "Total number of index mutations",
		},
		[]string{"operation", "status"},
	)
	m.IndexOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_operation_duration_seconds",
			Help:      "Duration of index mutations in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"operation"},
	)
	m.IndexedNodes = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_nodes",
			Help:      "Number of nodes currently indexed",
		},
	)
	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of index queries",
		},
		[]string{"query_type", "cache"},
	)
	m.QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of index queries in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"query_type"},
	)

	m.JournalWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_writes_total",
			Help:      "Total number of committed journal transactions",
		},
		[]string{"operation", "status"},
	)
	m.JournalEntriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_entries_total",
			Help:      "Total number of operations written to the journal",
		},
	)
	m.CheckpointsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoints",
		},
		[]string{"status"},
	)
	m.CheckpointDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Duration of checkpoints in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	m.SnapshotNodes = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_nodes",
			Help:      "Number of nodes in the latest snapshot",
		},
	)
	m.RecoveryReplayedOps = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recovery_replayed_operations",
			Help:      "Journal operations replayed at the last startup",
		},
	)
	m.RecoveryDurationSecond = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recovery_duration_seconds",
			Help:      "Time spent restoring the index at the last startup",
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordGrpcRequest records a finished gRPC request with its status code
func (m *Metrics) RecordGrpcRequest(method, code string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, code).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveIndexOp records an index mutation
func (m *Metrics) ObserveIndexOp(op string, err error, d time.Duration) {
	m.IndexOperationsTotal.WithLabelValues(op, status(err)).Inc()
	m.IndexOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveQuery records an index query
func (m *Metrics) ObserveQuery(qt index.QueryType, cacheHit bool, d time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.QueriesTotal.WithLabelValues(string(qt), cache).Inc()
	m.QueryDuration.WithLabelValues(string(qt)).Observe(d.Seconds())
}

// SetIndexedNodes updates the indexed node gauge
func (m *Metrics) SetIndexedNodes(n int) {
	m.IndexedNodes.Set(float64(n))
}

// ObserveJournalWrite records a journal transaction
func (m *Metrics) ObserveJournalWrite(op string, entries int, err error) {
	m.JournalWritesTotal.WithLabelValues(op, status(err)).Inc()
	if err == nil {
		m.JournalEntriesTotal.Add(float64(entries))
	}
}

// ObserveCheckpoint records a checkpoint attempt
func (m *Metrics) ObserveCheckpoint(took time.Duration, nodes int, err error) {
	m.CheckpointsTotal.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	m.CheckpointDuration.Observe(took.Seconds())
	m.SnapshotNodes.Set(float64(nodes))
}

// ObserveRecovery records the startup restore
func (m *Metrics) ObserveRecovery(replayed int, took time.Duration) {
	m.RecoveryReplayedOps.Set(float64(replayed))
	m.RecoveryDurationSecond.Set(took.Seconds())
}
