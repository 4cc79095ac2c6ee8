package trainer

import (
	"github.com/nvr-ai/go-foci/dataset"
	"github.com/pkg/errors"
)

// Phase is one of the three loops of a run.
type Phase string

// Phases.
const (
	Train      Phase = "train"
	Validation Phase = "val"
	Test       Phase = "test"
)

// LossKey names the phase's averaged loss, e.g. "val_loss".
func (p Phase) LossKey() string { return string(p) + "_loss" }

// Figure names the phase's visualization file, e.g. "val_pred.png".
func (p Phase) Figure() string { return string(p) + "_pred.png" }

// StepOutput is what a step hook returns for its batch.
type StepOutput struct {
	Loss float64
}

// Module is the set of lifecycle hooks the driver calls.
type Module interface {
	OnEpochStart(epoch int)
	TrainingStep(batch dataset.Batch, index int) (StepOutput, error)
	TrainingEpochEnd(outputs []StepOutput) (float64, error)
	ValidationStep(batch dataset.Batch, index int) (StepOutput, error)
	ValidationEpochEnd(outputs []StepOutput) (float64, error)
	TestStep(batch dataset.Batch, index int) (StepOutput, error)
	TestEpochEnd(outputs []StepOutput) (float64, error)
}

// State is a state of the per-phase loop.
type State int

// Loop states.
const (
	EpochStart State = iota
	BatchStep
	EpochEnd
)

func (s State) String() string {
	switch s {
	case EpochStart:
		return "epoch_start"
	case BatchStep:
		return "batch_step"
	case EpochEnd:
		return "epoch_end"
	default:
		return "unknown"
	}
}

// Fit runs epochs of training, each followed by a validation pass when val
// has batches.
//
// Arguments:
//   - module: The hooks to drive.
//   - train: Training batches; must not be empty.
//   - val: Validation batches; nil or empty skips validation.
//   - epochs: Number of epochs.
//
// Returns:
//   - error: The first error returned by a hook or a loader.
func Fit(module Module, train, val dataset.Loader, epochs int) error {
	if train == nil || train.Len() == 0 {
		return errors.New("no training batches")
	}
	for epoch := 0; epoch < epochs; epoch++ {
		module.OnEpochStart(epoch)
		if _, err := run(module, Train, train); err != nil {
			return errors.Wrapf(err, "epoch %d", epoch)
		}
		if val == nil || val.Len() == 0 {
			continue
		}
		if _, err := run(module, Validation, val); err != nil {
			return errors.Wrapf(err, "epoch %d", epoch)
		}
	}
	return nil
}

// Evaluate runs the test phase once and returns its averaged loss.
func Evaluate(module Module, test dataset.Loader) (float64, error) {
	if test == nil || test.Len() == 0 {
		return 0, errors.New("no test batches")
	}
	return run(module, Test, test)
}

// run drives one phase through EpochStart → BatchStep… → EpochEnd.
func run(module Module, phase Phase, loader dataset.Loader) (float64, error) {
	var (
		state   = EpochStart
		index   int
		outputs []StepOutput
	)
	for {
		switch state {
		case EpochStart:
			index = 0
			outputs = make([]StepOutput, 0, loader.Len())
			state = BatchStep

		case BatchStep:
			if index >= loader.Len() {
				state = EpochEnd
				continue
			}
			batch, err := loader.Batch(index)
			if err != nil {
				return 0, errors.Wrapf(err, "%s batch %d", phase, index)
			}
			out, err := step(module, phase, batch, index)
			if err != nil {
				return 0, errors.Wrapf(err, "%s step %d", phase, index)
			}
			outputs = append(outputs, out)
			index++

		case EpochEnd:
			avg, err := end(module, phase, outputs)
			if err != nil {
				return 0, errors.Wrapf(err, "%s epoch end", phase)
			}
			return avg, nil
		}
	}
}

func step(module Module, phase Phase, batch dataset.Batch, index int) (StepOutput, error) {
	switch phase {
	case Train:
		return module.TrainingStep(batch, index)
	case Validation:
		return module.ValidationStep(batch, index)
	default:
		return module.TestStep(batch, index)
	}
}

func end(module Module, phase Phase, outputs []StepOutput) (float64, error) {
	switch phase {
	case Train:
		return module.TrainingEpochEnd(outputs)
	case Validation:
		return module.ValidationEpochEnd(outputs)
	default:
		return module.TestEpochEnd(outputs)
	}
}
