package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Loss("val_loss", 2, 0.5)
	m.Loss("train_loss", 2, 0.7)
	m.Best(0.5)
	m.Checkpoint("classifier")
	m.Checkpoint("classifier")

	assert.InDelta(t, 0.5, testutil.ToFloat64(m.loss.WithLabelValues("val_loss")), 1e-12)
	assert.InDelta(t, 0.7, testutil.ToFloat64(m.loss.WithLabelValues("train_loss")), 1e-12)
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.best), 1e-12)
	assert.InDelta(t, 2, testutil.ToFloat64(m.checkpoints.WithLabelValues("classifier")), 1e-12)
}

func TestMetricsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetricsWithoutRegistry(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.Loss("test_loss", 0, 1)
		m.Best(1)
		m.Checkpoint("classifier")
	})
}
