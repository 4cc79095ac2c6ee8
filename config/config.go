// Package config - Run configuration for foci training.
package config

import (
	"os"

	"github.com/nvr-ai/go-foci/classifier"
	"github.com/nvr-ai/go-foci/optim"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Data locates the dataset splits. Each directory holds images/ and masks/.
type Data struct {
	Train string `json:"train" yaml:"train"`
	Val   string `json:"val" yaml:"val"`
	Test  string `json:"test" yaml:"test"`
}

// Visualization controls the prediction overlays.
type Visualization struct {
	// Plot displays figures in a window instead of writing them.
	Plot bool `json:"plot" yaml:"plot"`
	// Train also renders the first training batch of every epoch.
	Train bool `json:"visualize_train" yaml:"visualize_train"`
	// Scale upscales written figures by an integer factor.
	Scale int `json:"scale" yaml:"scale"`
	// PredColor and TruthColor are hex colors such as "#ff00ff".
	PredColor  string `json:"pred_color" yaml:"pred_color"`
	TruthColor string `json:"truth_color" yaml:"truth_color"`
	// TruthName names TruthColor in the figure title.
	TruthName string `json:"truth_name" yaml:"truth_name"`
}

// Params is the run configuration.
type Params struct {
	// SavePath is where figures and the checkpoint directory are written.
	SavePath string `json:"save_path" yaml:"save_path"`
	// Model lists the sub-models checkpointed on every validation improvement.
	Model []string `json:"model" yaml:"model"`
	// ConfigureOptimizers is handed to the optimizer factory.
	ConfigureOptimizers optim.Config `json:"configure_optimizers" yaml:"configure_optimizers"`

	Epochs        int               `json:"epochs" yaml:"epochs"`
	Classifier    classifier.Config `json:"classifier" yaml:"classifier"`
	Data          Data              `json:"data" yaml:"data"`
	Visualization Visualization     `json:"visualization" yaml:"visualization"`
	LogLevel      string            `json:"log_level" yaml:"log_level"`
}

// DefaultParams returns a configuration that checkpoints the classifier with
// Adam and renders figures at 4× scale.
func DefaultParams() Params {
	return Params{
		SavePath:            "runs",
		Model:               []string{"classifier"},
		ConfigureOptimizers: optim.DefaultConfig(),
		Epochs:              10,
		Classifier:          classifier.DefaultConfig(),
		Visualization:       Visualization{Scale: 4},
		LogLevel:            "info",
	}
}

// Validate reports configuration errors that would otherwise surface mid-run.
func (p Params) Validate() error {
	if p.SavePath == "" {
		return errors.New("save_path is required")
	}
	if len(p.Model) == 0 {
		return errors.New("model must name at least one sub-model")
	}
	if p.Epochs < 0 {
		return errors.Errorf("epochs must not be negative, got %d", p.Epochs)
	}
	return nil
}

// Load reads a YAML file on top of DefaultParams and validates the result.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultParams and validates the result.
func Parse(data []byte) (Params, error) {
	p := DefaultParams()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, errors.Wrap(err, "decoding config")
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
