package metrics

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabels(t *testing.T) {
	tests := []struct {
		name     string
		labels   Labels
		expected prometheus.Labels
	}{
		{
			name:     "empty labels",
			labels:   Labels{},
			expected: prometheus.Labels{},
		},
		{
			name:   "all labels set",
			labels: Labels{ChainID: 1, Network: "mainnet"},
			expected: prometheus.Labels{
				"chain_id": "1",
				"network":  "mainnet",
			},
		},
		{
			name:     "zero chain id excluded",
			labels:   Labels{Network: "sepolia"},
			expected: prometheus.Labels{"network": "sepolia"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.labels.toPrometheusLabels())
		})
	}
}

func TestCommitBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SetHead(120)
	m.CommitBatch(7, 1, 3, 57, 0.5)
	m.CommitBatch(8, 0, 2, 65, 0.25)

	assert.Equal(t, 120.0, testutil.ToFloat64(m.headPosition))
	assert.Equal(t, 65.0, testutil.ToFloat64(m.checkpointPosition))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.blocksScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blocksUnavailable))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.recordsFound))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batchesCompleted))
}

func TestRecordRPCCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordRPCCall("eth_getBlockByNumber", nil, 0.1)
	m.RecordRPCCall("eth_getBlockByNumber", errors.New("boom"), 0.2)
	m.RecordRPCCall("eth_getBlockByNumber", nil, 0.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_getBlockByNumber", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_getBlockByNumber", StatusError)))
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewWithLabels(reg, Labels{ChainID: 11155111, Network: "sepolia"})
	require.NoError(t, err)
	m.SetHead(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "dust_indexer_head_position" {
			continue
		}
		found = true
		labels := make(map[string]string)
		for _, label := range mf.GetMetric()[0].GetLabel() {
			labels[label.GetName()] = label.GetValue()
		}
		assert.Equal(t, "11155111", labels["chain_id"])
		assert.Equal(t, "sepolia", labels["network"])
	}
	assert.True(t, found)
}

func TestNewRegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	m, err := New(reg)
	assert.Nil(t, m)

	var alreadyRegistered prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &alreadyRegistered)
}

func TestNilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetHead(1)
		m.CommitBatch(1, 1, 1, 1, 1)
		m.IncError("test")
		m.IncRPCInFlight()
		m.DecRPCInFlight()
		m.RecordRPCCall("eth_chainId", nil, 1)
	})
}
