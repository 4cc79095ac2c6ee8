// Package trainer - Training orchestration for the foci classifier.
//
// Model wraps a classifier graph with a binary cross-entropy criterion and
// implements the lifecycle hooks driven by Fit and Evaluate. Each validation
// epoch end runs three separate stages:
//
//  1. compute: average the step losses,
//  2. compare: BestLoss.Observe against the best validation loss so far,
//  3. persist: write every configured sub-model through a checkpoint.Saver.
//
// The first batch of the validation and test phases is rendered as a foci
// overlay. Rendering failures are logged and never interrupt training;
// checkpoint failures are returned and stop it.
package trainer

import (
	"path/filepath"

	"github.com/nvr-ai/go-foci/checkpoint"
	"github.com/nvr-ai/go-foci/config"
	"github.com/nvr-ai/go-foci/dataset"
	"github.com/nvr-ai/go-foci/metrics"
	"github.com/nvr-ai/go-foci/optim"
	"github.com/nvr-ai/go-foci/visualize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Classifier is a network that maps images to per-pixel probabilities.
type Classifier interface {
	checkpoint.Stateful
	Graph() *G.ExprGraph
	Input() *G.Node
	Output() *G.Node
	Learnables() G.Nodes
	Predict(x *tensor.Dense) (*tensor.Dense, error)
}

// Visualizer renders a batch with its predictions to path.
type Visualizer interface {
	Render(imgs, labels, preds *tensor.Dense, path string, epoch int) error
}

// Option customises a Model.
type Option func(*Model)

// WithSaver replaces the file-based checkpoint saver.
func WithSaver(s checkpoint.Saver) Option {
	return func(m *Model) { m.saver = s }
}

// WithVisualizer replaces the overlay renderer.
func WithVisualizer(v Visualizer) Option {
	return func(m *Model) { m.visualizer = v }
}

// WithRecorder replaces the progress recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Model) { m.recorder = r }
}

// WithSubmodel registers an additional checkpointable sub-model under name.
func WithSubmodel(name string, s checkpoint.Stateful) Option {
	return func(m *Model) { m.submodels[name] = s }
}

// Model is the training orchestrator.
type Model struct {
	params     config.Params
	classifier Classifier
	submodels  map[string]checkpoint.Stateful

	target *G.Node
	loss   *G.Node
	vm     G.VM
	solver G.Solver

	best       *BestLoss
	saver      checkpoint.Saver
	visualizer Visualizer
	recorder   metrics.Recorder
	epoch      int
}

// New attaches the criterion to the classifier graph and prepares the solver.
//
// The classifier is registered as the sub-model "classifier". Every name in
// params.Model must resolve to a registered sub-model.
//
// Arguments:
//   - params: The run configuration.
//   - clf: The network to train.
//   - opts: Optional collaborators; defaults write checkpoints and figures
//     under params.SavePath and log progress.
//
// Returns:
//   - *Model: The orchestrator.
//   - error: A configuration error (missing save path, unknown sub-model,
//     unknown optimizer) or a graph construction error.
func New(params config.Params, clf Classifier, opts ...Option) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if clf == nil {
		return nil, errors.New("classifier is nil")
	}

	m := &Model{
		params:     params,
		classifier: clf,
		submodels:  map[string]checkpoint.Stateful{"classifier": clf},
		best:       NewBestLoss(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, name := range params.Model {
		if _, ok := m.submodels[name]; !ok {
			return nil, errors.Errorf("model %q is not a registered sub-model", name)
		}
	}
	if err := m.defaults(); err != nil {
		return nil, err
	}

	out := clf.Output()
	m.target = G.NewTensor(clf.Graph(), tensor.Float32, out.Dims(), G.WithShape(out.Shape().Clone()...), G.WithName("y"))
	loss, err := BCE(out, m.target)
	if err != nil {
		return nil, errors.Wrap(err, "building criterion")
	}
	m.loss = loss
	if _, err := G.Grad(m.loss, clf.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "building gradients")
	}
	m.vm = G.NewTapeMachine(clf.Graph(), G.BindDualValues(clf.Learnables()...))

	if m.solver, err = m.ConfigureOptimizers(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) defaults() error {
	if m.saver == nil {
		saver, err := checkpoint.NewFileSaver(m.params.SavePath)
		if err != nil {
			return err
		}
		m.saver = saver
	}
	if m.visualizer == nil {
		v := m.params.Visualization
		palette, err := visualize.ParsePalette(v.PredColor, v.TruthColor, v.TruthName)
		if err != nil {
			return err
		}
		var sink visualize.Sink = visualize.FileSink{Scale: v.Scale}
		if v.Plot {
			sink = visualize.WindowSink{}
		}
		r := visualize.NewRenderer(sink)
		r.Palette = palette
		m.visualizer = r
	}
	if m.recorder == nil {
		rec, err := metrics.New(nil)
		if err != nil {
			return err
		}
		m.recorder = rec
	}
	return nil
}

// ConfigureOptimizers builds the solver from params.ConfigureOptimizers.
func (m *Model) ConfigureOptimizers() (G.Solver, error) {
	solver, err := optim.New(m.params.ConfigureOptimizers, m.classifier)
	if err != nil {
		return nil, errors.Wrap(err, "configuring optimizer")
	}
	return solver, nil
}

// Close releases the tape machine.
func (m *Model) Close() error {
	return m.vm.Close()
}

// Best returns the best validation loss tracker.
func (m *Model) Best() *BestLoss { return m.best }

// Epoch returns the current epoch.
func (m *Model) Epoch() int { return m.epoch }

// Forward runs the classifier alone on x.
func (m *Model) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	return m.classifier.Predict(x)
}

// OnEpochStart implements Module.
func (m *Model) OnEpochStart(epoch int) {
	m.epoch = epoch
}

// TrainingStep implements Module. The loss is computed with the weights the
// step started from; the solver is stepped afterwards.
func (m *Model) TrainingStep(batch dataset.Batch, index int) (StepOutput, error) {
	loss, pred, err := m.forward(batch, true)
	if err != nil {
		return StepOutput{}, err
	}
	if index == 0 {
		lo, hi := bounds(pred)
		log.Info().Int("epoch", m.epoch).Float32("pred_max", hi).Float32("pred_min", lo).Msg("first training batch")
		if m.params.Visualization.Train {
			m.visualize(Train, batch, pred)
		}
	}
	return StepOutput{Loss: loss}, nil
}

// TrainingEpochEnd implements Module.
func (m *Model) TrainingEpochEnd(outputs []StepOutput) (float64, error) {
	avg, err := Average(outputs)
	if err != nil {
		return 0, err
	}
	m.recorder.Loss(Train.LossKey(), m.epoch, avg)
	return avg, nil
}

// ValidationStep implements Module. It never touches gradients or the solver.
func (m *Model) ValidationStep(batch dataset.Batch, index int) (StepOutput, error) {
	return m.evalStep(Validation, batch, index)
}

// ValidationEpochEnd implements Module. It checkpoints every configured
// sub-model when the average is strictly below the best so far; a failed
// write is returned.
func (m *Model) ValidationEpochEnd(outputs []StepOutput) (float64, error) {
	avg, err := Average(outputs)
	if err != nil {
		return 0, err
	}
	if m.best.Observe(avg) {
		log.Info().Int("epoch", m.epoch).Float64("val_loss", avg).Msg("model reached new best, saving it")
		if err := m.SaveCheckpoints(); err != nil {
			return avg, err
		}
		m.recorder.Best(m.best.Value())
	}
	m.recorder.Loss(Validation.LossKey(), m.epoch, avg)
	return avg, nil
}

// TestStep implements Module.
func (m *Model) TestStep(batch dataset.Batch, index int) (StepOutput, error) {
	return m.evalStep(Test, batch, index)
}

// TestEpochEnd implements Module.
func (m *Model) TestEpochEnd(outputs []StepOutput) (float64, error) {
	avg, err := Average(outputs)
	if err != nil {
		return 0, err
	}
	m.recorder.Loss(Test.LossKey(), m.epoch, avg)
	return avg, nil
}

// SaveCheckpoints persists every sub-model named in params.Model.
func (m *Model) SaveCheckpoints() error {
	for _, name := range m.params.Model {
		if err := m.saver.Save(name, m.submodels[name]); err != nil {
			return errors.Wrapf(err, "saving %q", name)
		}
		m.recorder.Checkpoint(name)
	}
	return nil
}

func (m *Model) evalStep(phase Phase, batch dataset.Batch, index int) (StepOutput, error) {
	loss, pred, err := m.forward(batch, false)
	if err != nil {
		return StepOutput{}, err
	}
	if index == 0 {
		m.visualize(phase, batch, pred)
	}
	return StepOutput{Loss: loss}, nil
}

// forward scores batch with a forward-only pass of the classifier and returns
// the loss and the predictions. When update is set a separate backward pass
// on the training machine computes gradients and steps the solver. Neither
// returned value is read from the training machine.
func (m *Model) forward(batch dataset.Batch, update bool) (float64, *tensor.Dense, error) {
	if err := batch.Validate(); err != nil {
		return 0, nil, err
	}
	pred, err := m.classifier.Predict(batch.Images)
	if err != nil {
		return 0, nil, err
	}
	p, ok := pred.Data().([]float32)
	if !ok {
		return 0, nil, errors.Errorf("expected float32 predictions, got %v", pred.Dtype())
	}
	y, ok := batch.Labels.Data().([]float32)
	if !ok {
		return 0, nil, errors.Errorf("expected float32 labels, got %v", batch.Labels.Dtype())
	}
	loss, err := BinaryCrossEntropy(p, y)
	if err != nil {
		return 0, nil, err
	}

	if update {
		if err := m.backward(batch); err != nil {
			return 0, nil, err
		}
	}
	return loss, pred, nil
}

// backward runs the training machine on batch and applies one solver step.
// Gradients are cleared first so each step only sees its own batch.
func (m *Model) backward(batch dataset.Batch) error {
	learnables := m.classifier.Learnables()
	zeroGrads(learnables)
	if err := G.Let(m.classifier.Input(), batch.Images); err != nil {
		return errors.Wrap(err, "binding images")
	}
	if err := G.Let(m.target, batch.Labels); err != nil {
		return errors.Wrap(err, "binding labels")
	}
	defer m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return errors.Wrap(err, "running graph")
	}
	if err := m.solver.Step(G.NodesToValueGrads(learnables)); err != nil {
		return errors.Wrap(err, "solver step")
	}
	return nil
}

func zeroGrads(nodes G.Nodes) {
	for _, n := range nodes {
		grad, err := n.Grad()
		if err != nil {
			continue
		}
		if z, ok := grad.(interface{ Zero() }); ok {
			z.Zero()
		}
	}
}

// visualize renders the batch and swallows any failure.
func (m *Model) visualize(phase Phase, batch dataset.Batch, pred *tensor.Dense) {
	path := filepath.Join(m.params.SavePath, phase.Figure())
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("path", path).Interface("panic", r).Msg("visualization panicked")
		}
	}()
	if err := m.visualizer.Render(batch.Images, batch.Labels, pred, path, m.epoch); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("visualization failed")
	}
}

func bounds(t *tensor.Dense) (lo, hi float32) {
	data, ok := t.Data().([]float32)
	if !ok || len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
