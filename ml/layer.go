package ml

import "github.com/pkg/errors"

const (
	ActSigmoid ActivationType = iota
	ActRelu
)

var activationMap = map[string]ActivationType{
	"sigmoid": ActSigmoid,
	"relu":    ActRelu,
}

// -------- TYPE DEFINITIONS -------- //
type ActivationType int
type LayerOption func(*LayerConfig)

func (a ActivationType) String() string {
	for name, v := range activationMap {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// ParseActivation maps a name such as "relu" to its ActivationType.
func ParseActivation(name string) (ActivationType, error) {
	act, ok := activationMap[name]
	if !ok {
		return 0, errors.Wrapf(ErrConfig, "unknown activation %q", name)
	}
	return act, nil
}

// LayerConfig holds the blueprint for a layer
type LayerConfig struct {
	Neurons    int
	IsInput    bool
	Activation ActivationType
}

// Layer is a fully connected layer: A = act(A_prev * Weights + Biases).
type Layer struct {
	Weights *Matrix // [fan_in, fan_out]
	Biases  *Matrix // [1, fan_out]
	ActType ActivationType
}

// GradientSet holds the calculated gradients for one layer
type GradientSet struct {
	dW *Matrix
	db *Matrix
}

// batchBuffers are the per-batch-size forward/backward workspaces.
type batchBuffers struct {
	input *Matrix
	z     []*Matrix
	a     []*Matrix
	dZ    []*Matrix
	grads []GradientSet
}

// ------- LAYER CONFIG HELPERS ------- //
// Input defines the entry point dimensions
func Input(size int) LayerConfig {
	return LayerConfig{
		Neurons: size,
		IsInput: true,
	}
}

// Dense defines a fully connected layer. Hidden layers default to sigmoid.
func Dense(size int, opts ...LayerOption) LayerConfig {
	d := LayerConfig{
		Neurons:    size,
		Activation: ActSigmoid,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func WithActivation(act ActivationType) LayerOption {
	return func(lc *LayerConfig) {
		lc.Activation = act
	}
}

// derivative turns dA into dZ in place, given the layer's Z and A.
func (a ActivationType) derivative(dA, z, act []float64) {
	switch a {
	case ActRelu:
		for k := range dA {
			if z[k] <= 0 {
				dA[k] = 0
			}
		}
	default:
		for k := range dA {
			dA[k] *= act[k] * (1.0 - act[k])
		}
	}
}

func (a ActivationType) apply(m *Matrix) {
	switch a {
	case ActRelu:
		m.ApplyRelu()
	default:
		m.ApplySigmoid()
	}
}
