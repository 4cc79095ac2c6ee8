package trainer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nvr-ai/go-foci/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockModule records every hook call as a string.
type MockModule struct {
	calls  []string
	losses map[Phase][]float64
	failOn string
}

func (m *MockModule) record(call string) error {
	m.calls = append(m.calls, call)
	if call == m.failOn {
		return errors.New("mock failure")
	}
	return nil
}

func (m *MockModule) loss(phase Phase, index int) float64 {
	if l := m.losses[phase]; index < len(l) {
		return l[index]
	}
	return 1
}

func (m *MockModule) OnEpochStart(epoch int) {
	m.calls = append(m.calls, fmt.Sprintf("start:%d", epoch))
}

func (m *MockModule) TrainingStep(_ dataset.Batch, index int) (StepOutput, error) {
	return StepOutput{Loss: m.loss(Train, index)}, m.record(fmt.Sprintf("train:%d", index))
}

func (m *MockModule) TrainingEpochEnd(outputs []StepOutput) (float64, error) {
	avg, _ := Average(outputs)
	return avg, m.record("train_end")
}

func (m *MockModule) ValidationStep(_ dataset.Batch, index int) (StepOutput, error) {
	return StepOutput{Loss: m.loss(Validation, index)}, m.record(fmt.Sprintf("val:%d", index))
}

func (m *MockModule) ValidationEpochEnd(outputs []StepOutput) (float64, error) {
	avg, _ := Average(outputs)
	return avg, m.record("val_end")
}

func (m *MockModule) TestStep(_ dataset.Batch, index int) (StepOutput, error) {
	return StepOutput{Loss: m.loss(Test, index)}, m.record(fmt.Sprintf("test:%d", index))
}

func (m *MockModule) TestEpochEnd(outputs []StepOutput) (float64, error) {
	avg, _ := Average(outputs)
	return avg, m.record("test_end")
}

// failingLoader fails on every batch.
type failingLoader struct{}

func (failingLoader) Len() int { return 1 }

func (failingLoader) Batch(int) (dataset.Batch, error) {
	return dataset.Batch{}, errors.New("mock read error")
}

func empty(n int) dataset.SliceLoader { return make(dataset.SliceLoader, n) }

func TestFitCallOrder(t *testing.T) {
	m := &MockModule{}
	require.NoError(t, Fit(m, empty(2), empty(1), 2))

	assert.Equal(t, []string{
		"start:0", "train:0", "train:1", "train_end", "val:0", "val_end",
		"start:1", "train:0", "train:1", "train_end", "val:0", "val_end",
	}, m.calls)
}

func TestFitWithoutValidation(t *testing.T) {
	for _, val := range []dataset.Loader{nil, empty(0)} {
		m := &MockModule{}
		require.NoError(t, Fit(m, empty(1), val, 1))
		assert.Equal(t, []string{"start:0", "train:0", "train_end"}, m.calls)
	}
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name          string
		module        *MockModule
		train         dataset.Loader
		expectedCalls []string
	}{
		{
			name:   "empty training set",
			module: &MockModule{},
			train:  empty(0),
		},
		{
			name:          "step failure stops the epoch",
			module:        &MockModule{failOn: "train:0"},
			train:         empty(3),
			expectedCalls: []string{"start:0", "train:0"},
		},
		{
			name:          "validation end failure",
			module:        &MockModule{failOn: "val_end"},
			train:         empty(1),
			expectedCalls: []string{"start:0", "train:0", "train_end", "val:0", "val_end"},
		},
		{
			name:          "loader failure",
			module:        &MockModule{},
			train:         failingLoader{},
			expectedCalls: []string{"start:0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Fit(tt.module, tt.train, empty(1), 3)
			assert.Error(t, err)
			assert.Equal(t, tt.expectedCalls, tt.module.calls)
		})
	}
}

func TestEvaluate(t *testing.T) {
	m := &MockModule{losses: map[Phase][]float64{Test: {0.2, 0.4}}}
	avg, err := Evaluate(m, empty(2))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, avg, 1e-12)
	assert.Equal(t, []string{"test:0", "test:1", "test_end"}, m.calls)

	_, err = Evaluate(&MockModule{}, empty(0))
	assert.Error(t, err)
}

func TestPhaseNames(t *testing.T) {
	assert.Equal(t, "val_loss", Validation.LossKey())
	assert.Equal(t, "train_pred.png", Train.Figure())
	assert.Equal(t, "test_pred.png", Test.Figure())
	assert.Equal(t, "batch_step", BatchStep.String())
}
