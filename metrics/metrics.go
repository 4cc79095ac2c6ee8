// Package metrics - Records training progress as structured logs and
// Prometheus gauges.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Recorder receives progress events from the training orchestrator.
type Recorder interface {
	// Loss reports the averaged loss of a phase, keyed like "val_loss".
	Loss(key string, epoch int, value float64)
	// Best reports the best validation loss so far.
	Best(value float64)
	// Checkpoint reports that a sub-model was persisted.
	Checkpoint(name string)
}

// Metrics logs every event and, when registered, mirrors it in Prometheus.
type Metrics struct {
	loss        *prometheus.GaugeVec
	best        prometheus.Gauge
	checkpoints *prometheus.CounterVec
}

// New creates a Metrics recorder. A nil registerer disables Prometheus.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	if reg == nil {
		return m, nil
	}

	m.loss = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "foci",
		Name:      "loss",
		Help:      "Average loss of the last completed epoch, by key.",
	}, []string{"key"})
	m.best = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "foci",
		Name:      "best_loss",
		Help:      "Lowest validation loss observed in this run.",
	})
	m.checkpoints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foci",
		Name:      "checkpoints_total",
		Help:      "Checkpoints written, by sub-model.",
	}, []string{"model"})

	for _, c := range []prometheus.Collector{m.loss, m.best, m.checkpoints} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering metrics")
		}
	}
	return m, nil
}

// Loss implements Recorder.
func (m *Metrics) Loss(key string, epoch int, value float64) {
	log.Info().Int("epoch", epoch).Float64(key, value).Msg("epoch finished")
	if m.loss != nil {
		m.loss.WithLabelValues(key).Set(value)
	}
}

// Best implements Recorder.
func (m *Metrics) Best(value float64) {
	log.Debug().Float64("best_loss", value).Msg("best loss")
	if m.best != nil {
		m.best.Set(value)
	}
}

// Checkpoint implements Recorder.
func (m *Metrics) Checkpoint(name string) {
	log.Info().Str("model", name).Msg("checkpoint written")
	if m.checkpoints != nil {
		m.checkpoints.WithLabelValues(name).Inc()
	}
}
