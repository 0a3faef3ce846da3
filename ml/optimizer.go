package ml

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimizerType = "sgd"
	OptMomentum OptimizerType = "momentum"
)

type OptimizerType string

// ParseOptimizer validates a CLI optimizer name.
func ParseOptimizer(name string) (OptimizerType, error) {
	switch t := OptimizerType(name); t {
	case OptSGD, OptMomentum:
		return t, nil
	}
	return "", errors.Wrapf(ErrConfig, "unknown optimizer %q", name)
}

// Optimizer applies averaged gradients to the network. The learning rate is
// passed on every call because the training loop may change it between batches.
type Optimizer interface {
	Update(nw *NeuralNetwork, grads []GradientSet, learnRate float64)
}

type SGDOptimizer struct{}

type MomentumOptimizer struct {
	Mu float64 // Momentum Factor (usually 0.9)

	velW, velB []*Matrix
}

func NewOptimizer(nw *NeuralNetwork, t OptimizerType, mu float64) Optimizer {
	switch t {
	case OptMomentum:
		return NewMomentumOptimizer(nw, mu)
	default:
		return &SGDOptimizer{}
	}
}

func NewMomentumOptimizer(nw *NeuralNetwork, mu float64) *MomentumOptimizer {
	if mu == 0 {
		mu = 0.9
	} // Default

	opt := &MomentumOptimizer{
		Mu:   mu,
		velW: make([]*Matrix, len(nw.Layers)),
		velB: make([]*Matrix, len(nw.Layers)),
	}
	for i, layer := range nw.Layers {
		opt.velW[i] = NewMatrix(layer.Weights.rows, layer.Weights.cols)
		opt.velB[i] = NewMatrix(layer.Biases.rows, layer.Biases.cols)
	}
	return opt
}

// ------ SGD OPTIMIZER METHODS ------ //
func (opt *SGDOptimizer) Update(nw *NeuralNetwork, grads []GradientSet, learnRate float64) {
	for i, layer := range nw.Layers {
		// Simple update: W = W - (lr * gradient)
		floats.AddScaled(layer.Weights.data, -learnRate, grads[i].dW.data)
		floats.AddScaled(layer.Biases.data, -learnRate, grads[i].db.data)
	}
}

// ------ MOMENTUM OPTIMIZER METHODS ------ //
func (opt *MomentumOptimizer) Update(nw *NeuralNetwork, grads []GradientSet, learnRate float64) {
	// v = mu * v - lr * grad
	// w = w + v
	applyMomentum := func(params, grads, velocity []float64) {
		floats.Scale(opt.Mu, velocity)
		floats.AddScaled(velocity, -learnRate, grads)
		floats.Add(params, velocity)
	}

	for i, layer := range nw.Layers {
		applyMomentum(layer.Weights.data, grads[i].dW.data, opt.velW[i].data)
		applyMomentum(layer.Biases.data, grads[i].db.data, opt.velB[i].data)
	}
}
