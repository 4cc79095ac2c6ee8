// Package optim - Builds gorgonia solvers from run configuration.
package optim

import (
	"strings"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Name identifies a solver.
type Name string

// Supported solvers.
const (
	Adam     Name = "adam"
	SGD      Name = "sgd"
	Momentum Name = "momentum"
	RMSProp  Name = "rmsprop"
	AdaGrad  Name = "adagrad"
)

// Config is the `configure_optimizers` section of the run configuration.
// Zero values leave the solver's own default in place.
type Config struct {
	Name      Name    `json:"name" yaml:"name"`
	LearnRate float64 `json:"lr" yaml:"lr"`
	L2Reg     float64 `json:"l2_reg" yaml:"l2_reg"`
	Clip      float64 `json:"clip" yaml:"clip"`
	Momentum  float64 `json:"momentum" yaml:"momentum"`
	Beta1     float64 `json:"beta1" yaml:"beta1"`
	Beta2     float64 `json:"beta2" yaml:"beta2"`
	Eps       float64 `json:"eps" yaml:"eps"`
	Rho       float64 `json:"rho" yaml:"rho"`
	BatchSize int     `json:"batch_size" yaml:"batch_size"`
}

// DefaultConfig returns Adam with a 1e-3 learning rate.
func DefaultConfig() Config {
	return Config{Name: Adam, LearnRate: 1e-3}
}

// Module is what a solver optimises.
type Module interface {
	Learnables() G.Nodes
}

// New builds the solver named in cfg for module.
//
// Arguments:
//   - cfg: The solver configuration.
//   - module: The module whose learnables will be stepped.
//
// Returns:
//   - G.Solver: The configured solver.
//   - error: An error if the solver name is unknown or the module has nothing to learn.
func New(cfg Config, module Module) (G.Solver, error) {
	if module == nil || len(module.Learnables()) == 0 {
		return nil, errors.New("module has no learnable parameters")
	}

	opts := options(cfg)
	switch Name(strings.ToLower(string(cfg.Name))) {
	case Adam, "":
		if cfg.Beta1 > 0 {
			opts = append(opts, G.WithBeta1(cfg.Beta1))
		}
		if cfg.Beta2 > 0 {
			opts = append(opts, G.WithBeta2(cfg.Beta2))
		}
		if cfg.Eps > 0 {
			opts = append(opts, G.WithEps(cfg.Eps))
		}
		return G.NewAdamSolver(opts...), nil
	case SGD:
		return G.NewVanillaSolver(opts...), nil
	case Momentum:
		if cfg.Momentum > 0 {
			opts = append(opts, G.WithMomentum(cfg.Momentum))
		}
		return G.NewMomentum(opts...), nil
	case RMSProp:
		if cfg.Rho > 0 {
			opts = append(opts, G.WithRho(cfg.Rho))
		}
		if cfg.Eps > 0 {
			opts = append(opts, G.WithEps(cfg.Eps))
		}
		return G.NewRMSPropSolver(opts...), nil
	case AdaGrad:
		if cfg.Eps > 0 {
			opts = append(opts, G.WithEps(cfg.Eps))
		}
		return G.NewAdaGradSolver(opts...), nil
	default:
		return nil, errors.Errorf("unsupported optimizer %q", cfg.Name)
	}
}

// options translates the settings shared by every solver.
func options(cfg Config) []G.SolverOpt {
	var opts []G.SolverOpt
	if cfg.LearnRate > 0 {
		opts = append(opts, G.WithLearnRate(cfg.LearnRate))
	}
	if cfg.L2Reg > 0 {
		opts = append(opts, G.WithL2Reg(cfg.L2Reg))
	}
	if cfg.Clip > 0 {
		opts = append(opts, G.WithClip(cfg.Clip))
	}
	if cfg.BatchSize > 0 {
		opts = append(opts, G.WithBatchSize(float64(cfg.BatchSize)))
	}
	return opts
}
