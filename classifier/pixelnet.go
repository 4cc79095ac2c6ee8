// Package classifier - A small fully-convolutional per-pixel foci classifier.
//
// PixelNet maps an (N,3,H,W) image batch to an (N,1,H,W) probability mask with
// two convolutions:
//
//	x ─ conv 3×3 (3→Hidden, pad 1) ─ ReLU ─ conv 1×1 (Hidden→1) ─ sigmoid ─ p
//
// It exists so the training harness has a concrete, checkpointable network;
// any model exposing the same graph nodes can replace it.
package classifier

import (
	"fmt"

	"github.com/nvr-ai/go-foci/checkpoint"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config fixes the shape of the graph. Gorgonia graphs are static, so every
// batch fed to the network must have exactly this shape.
type Config struct {
	BatchSize int `json:"batch_size" yaml:"batch_size"`
	Height    int `json:"height" yaml:"height"`
	Width     int `json:"width" yaml:"width"`
	Hidden    int `json:"hidden" yaml:"hidden"`
}

// DefaultConfig returns an 8-sample, 64×64, 8-feature network.
func DefaultConfig() Config {
	return Config{BatchSize: 8, Height: 64, Width: 64, Hidden: 8}
}

// Validate checks that every dimension is positive.
func (c Config) Validate() error {
	if c.BatchSize <= 0 || c.Height <= 0 || c.Width <= 0 || c.Hidden <= 0 {
		return errors.Errorf("invalid classifier config %+v", c)
	}
	return nil
}

// PixelNet is the per-pixel classifier.
type PixelNet struct {
	config Config
	g      *G.ExprGraph
	x      *G.Node
	conv1  *G.Node
	conv2  *G.Node
	out    *G.Node
}

// New builds the PixelNet graph with Glorot-initialised weights.
//
// Arguments:
//   - cfg: The input geometry and hidden width.
//
// Returns:
//   - *PixelNet: The network, ready to Predict or to be trained.
//   - error: An error if the configuration is invalid or graph construction fails.
func New(cfg Config) (*PixelNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := G.NewGraph()
	m := &PixelNet{config: cfg, g: g}

	m.x = G.NewTensor(g, tensor.Float32, 4, G.WithShape(cfg.BatchSize, 3, cfg.Height, cfg.Width), G.WithName("x"))
	m.conv1 = G.NewTensor(g, tensor.Float32, 4, G.WithShape(cfg.Hidden, 3, 3, 3), G.WithName("conv1"), G.WithInit(G.GlorotN(1.0)))
	m.conv2 = G.NewTensor(g, tensor.Float32, 4, G.WithShape(1, cfg.Hidden, 1, 1), G.WithName("conv2"), G.WithInit(G.GlorotN(1.0)))

	hidden, err := G.Conv2d(m.x, m.conv1, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrap(err, "conv1")
	}
	if hidden, err = G.Rectify(hidden); err != nil {
		return nil, errors.Wrap(err, "relu")
	}
	logits, err := G.Conv2d(hidden, m.conv2, tensor.Shape{1, 1}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrap(err, "conv2")
	}
	if m.out, err = G.Sigmoid(logits); err != nil {
		return nil, errors.Wrap(err, "sigmoid")
	}
	return m, nil
}

// Config returns the geometry the network was built with.
func (m *PixelNet) Config() Config { return m.config }

// Graph returns the expression graph holding the network.
func (m *PixelNet) Graph() *G.ExprGraph { return m.g }

// Input returns the (N,3,H,W) image node.
func (m *PixelNet) Input() *G.Node { return m.x }

// Output returns the (N,1,H,W) probability node.
func (m *PixelNet) Output() *G.Node { return m.out }

// Learnables returns the convolution weights.
func (m *PixelNet) Learnables() G.Nodes { return G.Nodes{m.conv1, m.conv2} }

// Predict runs the forward pass alone on x.
func (m *PixelNet) Predict(x *tensor.Dense) (*tensor.Dense, error) {
	if err := G.Let(m.x, x); err != nil {
		return nil, errors.Wrap(err, "binding input")
	}
	vm := G.NewTapeMachine(m.g.SubgraphRoots(m.out))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "forward pass")
	}
	out, ok := m.out.Value().(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("unexpected output value %T", m.out.Value())
	}
	return out.Clone().(*tensor.Dense), nil
}

// StateDict copies every learnable tensor, keyed by node name.
func (m *PixelNet) StateDict() (checkpoint.StateDict, error) {
	state := make(checkpoint.StateDict)
	for _, n := range m.Learnables() {
		v, ok := n.Value().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("parameter %s has no dense value", n.Name())
		}
		state[n.Name()] = v.Clone().(*tensor.Dense)
	}
	return state, nil
}

// LoadStateDict copies the values in state into the learnable tensors in
// place. Every parameter must be present with a matching shape.
func (m *PixelNet) LoadStateDict(state checkpoint.StateDict) error {
	for _, n := range m.Learnables() {
		src, ok := state[n.Name()]
		if !ok {
			return errors.Errorf("checkpoint is missing parameter %s", n.Name())
		}
		dst, ok := n.Value().(*tensor.Dense)
		if !ok {
			return errors.Errorf("parameter %s has no dense value", n.Name())
		}
		if !src.Shape().Eq(dst.Shape()) {
			return errors.Errorf("parameter %s: checkpoint shape %v, model shape %v", n.Name(), src.Shape(), dst.Shape())
		}
		from, ok := src.Data().([]float32)
		if !ok {
			return errors.Errorf("parameter %s: expected float32 data, got %v", n.Name(), src.Dtype())
		}
		copy(dst.Data().([]float32), from)
	}
	return nil
}

// String describes the network.
func (m *PixelNet) String() string {
	c := m.config
	return fmt.Sprintf("PixelNet(batch=%d, %dx%d, hidden=%d)", c.BatchSize, c.Height, c.Width, c.Hidden)
}
