package metrics

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "dust_indexer"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"
)

// Labels holds constant labels applied to all metrics.
type Labels struct {
	ChainID uint64 // EVM chain id (e.g. 1 for Ethereum mainnet)
	Network string // configured network name
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.ChainID != 0 {
		labels["chain_id"] = strconv.FormatUint(l.ChainID, 10)
	}
	if l.Network != "" {
		labels["network"] = l.Network
	}
	return labels
}

type Metrics struct {
	// Scan state
	headPosition       prometheus.Gauge
	checkpointPosition prometheus.Gauge

	// Scan counters
	blocksScanned     prometheus.Counter
	blocksUnavailable prometheus.Counter
	recordsFound      prometheus.Counter
	batchesCompleted  prometheus.Counter
	errors            *prometheus.CounterVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	batchDuration prometheus.Histogram
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	m := &Metrics{
		headPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "head_position",
			Help:      "Latest head position reported by the range source",
		}),
		checkpointPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "checkpoint_position",
			Help:      "Last position durably recorded as scanned",
		}),
		blocksScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_scanned_total",
			Help:      "Total number of positions fetched successfully",
		}),
		blocksUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_unavailable_total",
			Help:      "Total number of positions whose fetch failed and were skipped",
		}),
		recordsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dust_records_total",
			Help:      "Total number of dust records appended to the sink",
		}),
		batchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_completed_total",
			Help:      "Total number of completed batches",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by type",
		}, []string{"type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rpc_calls_total",
			Help:      "Total number of RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Duration of RPC calls in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rpc_in_flight",
			Help:      "Number of RPC calls currently in flight",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a whole batch (fetch, filter, flush and checkpoint) in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	if err := errors.Join(
		reg.Register(m.headPosition),
		reg.Register(m.checkpointPosition),
		reg.Register(m.blocksScanned),
		reg.Register(m.blocksUnavailable),
		reg.Register(m.recordsFound),
		reg.Register(m.batchesCompleted),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.batchDuration),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// SetHead records the latest head position.
func (m *Metrics) SetHead(position uint64) {
	if m == nil {
		return
	}
	m.headPosition.Set(float64(position))
}

// CommitBatch records a completed batch.
func (m *Metrics) CommitBatch(scanned, unavailable, records int, checkpoint uint64, durationSeconds float64) {
	if m == nil {
		return
	}
	m.batchesCompleted.Inc()
	m.blocksScanned.Add(float64(scanned))
	m.blocksUnavailable.Add(float64(unavailable))
	m.recordsFound.Add(float64(records))
	m.checkpointPosition.Set(float64(checkpoint))
	m.batchDuration.Observe(durationSeconds)
}

// IncError increments the error counter for the given type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call with its method, error status and duration.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}
