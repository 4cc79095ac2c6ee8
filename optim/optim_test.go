package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type mockModule struct {
	nodes G.Nodes
}

func (m mockModule) Learnables() G.Nodes { return m.nodes }

func newModule() mockModule {
	g := G.NewGraph()
	w := G.NewMatrix(g, tensor.Float32, G.WithShape(2, 2), G.WithName("w"), G.WithInit(G.Zeroes()))
	return mockModule{nodes: G.Nodes{w}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected G.Solver
	}{
		{name: "default is adam", cfg: Config{}, expected: &G.AdamSolver{}},
		{name: "adam", cfg: Config{Name: Adam, LearnRate: 0.01, Beta1: 0.8}, expected: &G.AdamSolver{}},
		{name: "case insensitive", cfg: Config{Name: "SGD"}, expected: &G.VanillaSolver{}},
		{name: "momentum", cfg: Config{Name: Momentum, Momentum: 0.9}, expected: &G.Momentum{}},
		{name: "rmsprop", cfg: Config{Name: RMSProp, Rho: 0.9}, expected: &G.RMSPropSolver{}},
		{name: "adagrad", cfg: Config{Name: AdaGrad, L2Reg: 1e-4, Clip: 5}, expected: &G.AdaGradSolver{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solver, err := New(tt.cfg, newModule())
			require.NoError(t, err)
			assert.IsType(t, tt.expected, solver)
		})
	}
}

func TestNewRejectsUnknownOptimizer(t *testing.T) {
	_, err := New(Config{Name: "lbfgs"}, newModule())
	assert.Error(t, err)
}

func TestNewRequiresLearnables(t *testing.T) {
	_, err := New(DefaultConfig(), mockModule{})
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	assert.Empty(t, options(Config{}))
	assert.Len(t, options(Config{LearnRate: 0.1, L2Reg: 0.1, Clip: 1, BatchSize: 4}), 4)
}
