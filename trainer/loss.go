package trainer

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Epsilon keeps the logarithms in BCE finite for saturated predictions.
const Epsilon = 1e-7

// BCE builds the mean binary cross-entropy between pred and target,
//
//	-mean(y·log(p+ε) + (1-y)·log(1-p+ε))
//
// over both nodes flattened to vectors. The nodes must have the same shape.
func BCE(pred, target *G.Node) (*G.Node, error) {
	if !pred.Shape().Eq(target.Shape()) {
		return nil, errors.Errorf("prediction shape %v does not match target shape %v", pred.Shape(), target.Shape())
	}
	n := pred.Shape().TotalSize()
	p, err := G.Reshape(pred, tensor.Shape{n})
	if err != nil {
		return nil, errors.Wrap(err, "flattening predictions")
	}
	y, err := G.Reshape(target, tensor.Shape{n})
	if err != nil {
		return nil, errors.Wrap(err, "flattening targets")
	}

	one := func() *G.Node { return G.NewConstant(float32(1)) }
	eps := func() *G.Node { return G.NewConstant(float32(Epsilon)) }

	logP := G.Must(G.Log(G.Must(G.Add(p, eps()))))
	logQ := G.Must(G.Log(G.Must(G.Add(G.Must(G.Sub(one(), p)), eps()))))
	pos := G.Must(G.HadamardProd(y, logP))
	neg := G.Must(G.HadamardProd(G.Must(G.Sub(one(), y)), logQ))
	mean, err := G.Mean(G.Must(G.Add(pos, neg)))
	if err != nil {
		return nil, errors.Wrap(err, "averaging")
	}
	return G.Neg(mean)
}

// BinaryCrossEntropy evaluates the BCE expression built by BCE on host
// values. pred and target are compared element by element.
func BinaryCrossEntropy(pred, target []float32) (float64, error) {
	if len(pred) != len(target) {
		return 0, errors.Errorf("prediction length %d does not match target length %d", len(pred), len(target))
	}
	if len(pred) == 0 {
		return 0, errors.New("no predictions")
	}
	terms := make([]float64, len(pred))
	for i, p := range pred {
		pv, yv := float64(p), float64(target[i])
		terms[i] = yv*math.Log(pv+Epsilon) + (1-yv)*math.Log(1-pv+Epsilon)
	}
	return -stat.Mean(terms, nil), nil
}

// Average is the mean of the step losses.
func Average(outputs []StepOutput) (float64, error) {
	if len(outputs) == 0 {
		return 0, errors.New("no step outputs to average")
	}
	losses := make([]float64, len(outputs))
	for i, o := range outputs {
		losses[i] = o.Loss
	}
	return stat.Mean(losses, nil), nil
}

// BestLoss tracks the lowest validation loss of a run.
type BestLoss struct {
	value float64
}

// NewBestLoss starts at +Inf so the first observation always improves.
func NewBestLoss() *BestLoss {
	return &BestLoss{value: math.Inf(1)}
}

// Value returns the best loss so far.
func (b *BestLoss) Value() float64 { return b.value }

// Observe records loss and reports whether it is strictly lower than the best.
func (b *BestLoss) Observe(loss float64) bool {
	if loss < b.value {
		b.value = loss
		return true
	}
	return false
}
