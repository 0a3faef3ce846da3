package ml

import (
	"encoding/gob"
	"io"
	"math/rand/v2"

	"github.com/b0tShaman/neuro-train/data"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// modelFormat tags every persisted network.
const modelFormat = "neuro-train/mlp/v1"

// NeuralNetwork is a multilayer perceptron with a sigmoid output layer trained
// on the quadratic cost 0.5*||a-y||².
type NeuralNetwork struct {
	ID     uuid.UUID
	Layers []*Layer

	optimizer Optimizer
	buffers   map[int]*batchBuffers
}

// Neural Network Builder
func NewNetwork(rng *rand.Rand, configs ...LayerConfig) (*NeuralNetwork, error) {
	if len(configs) < 2 {
		return nil, errors.Wrap(ErrConfig, "network must have at least Input and one Output layer")
	}
	if !configs[0].IsInput {
		return nil, errors.Wrap(ErrConfig, "first layer must be Input()")
	}

	nn := &NeuralNetwork{ID: newID(rng)}
	prevOutputSize := configs[0].Neurons
	if prevOutputSize <= 0 {
		return nil, errors.Wrapf(ErrConfig, "input size %d", prevOutputSize)
	}

	for i := 1; i < len(configs); i++ {
		cfg := configs[i]
		if cfg.Neurons <= 0 {
			return nil, errors.Wrapf(ErrConfig, "layer %d has %d neurons", i, cfg.Neurons)
		}
		// The output layer is always sigmoid so outputs stay comparable to one-hot targets.
		if i == len(configs)-1 {
			cfg.Activation = ActSigmoid
		}

		layer := &Layer{
			Weights: NewMatrix(prevOutputSize, cfg.Neurons),
			Biases:  NewMatrix(1, cfg.Neurons),
			ActType: cfg.Activation,
		}
		switch cfg.Activation {
		case ActRelu:
			layer.Weights.Randomize(rng)
		default:
			layer.Weights.RandomizeXavier(rng)
		}

		nn.Layers = append(nn.Layers, layer)
		prevOutputSize = cfg.Neurons
	}

	return nn, nil
}

// newID derives a version 4 UUID from rng so seeded runs stay reproducible.
func newID(rng *rand.Rand) uuid.UUID {
	var id uuid.UUID
	for i := range id {
		id[i] = byte(rng.Uint32())
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// -------- NEURAL NETWORK METHODS -------- //
func (nw *NeuralNetwork) LayerSizes() []int {
	if len(nw.Layers) == 0 {
		return nil
	}
	sizes := []int{nw.Layers[0].Weights.Rows()}
	for _, l := range nw.Layers {
		sizes = append(sizes, l.Weights.Cols())
	}
	return sizes
}

// SetOptimizer replaces the update rule. The default is plain SGD.
func (nw *NeuralNetwork) SetOptimizer(opt Optimizer) {
	nw.optimizer = opt
}

// FeedForward runs one input through the network without touching any shared buffer.
func (nw *NeuralNetwork) FeedForward(input []float64) []float64 {
	if in := nw.Layers[0].Weights.rows; len(input) != in {
		exceptions.Panicf("input size mismatch: expected %d, got %d", in, len(input))
	}

	a := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for _, layer := range nw.Layers {
		z := mat.NewVecDense(layer.Weights.cols, nil)
		z.MulVec(layer.Weights.dense.T(), a)
		out := z.RawVector().Data
		floats.Add(out, layer.Biases.data)
		layer.ActType.apply(NewMatrixFromSlice(1, len(out), out))
		a = z
	}
	return a.RawVector().Data
}

// Predict returns the arg-max class of the output and its activation.
func (nw *NeuralNetwork) Predict(input []float64) (int, float64) {
	out := nw.FeedForward(input)
	best := data.ArgMax(out)
	return best, out[best]
}

// MeasureError returns the mean quadratic cost over set, 0 for an empty set.
func (nw *NeuralNetwork) MeasureError(set []data.Sample) float64 {
	if len(set) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range set {
		out := nw.FeedForward(s.Input)
		floats.Sub(out, s.Target)
		total += 0.5 * floats.Dot(out, out)
	}
	return total / float64(len(set))
}

// TrainOnBatch runs forward and backward passes over the batch and applies one
// averaged gradient step.
func (nw *NeuralNetwork) TrainOnBatch(batch []data.Sample, learnRate float64) error {
	if len(batch) == 0 {
		return nil
	}
	buf := nw.bufferFor(len(batch))
	sizes := nw.LayerSizes()
	inDim, outDim := sizes[0], sizes[len(sizes)-1]

	targets := NewMatrix(len(batch), outDim)
	for i, s := range batch {
		if len(s.Input) != inDim || len(s.Target) != outDim {
			return errors.Wrapf(ErrModel, "sample %d: input %d/target %d, network expects %d/%d",
				i, len(s.Input), len(s.Target), inDim, outDim)
		}
		copy(buf.input.data[i*inDim:], s.Input)
		copy(targets.data[i*outDim:], s.Target)
	}

	nw.forward(buf)
	nw.computeGradients(buf, targets)

	if nw.optimizer == nil {
		nw.optimizer = &SGDOptimizer{}
	}
	nw.optimizer.Update(nw, buf.grads, learnRate)
	return nil
}

func (nw *NeuralNetwork) bufferFor(batchSize int) *batchBuffers {
	if nw.buffers == nil {
		nw.buffers = make(map[int]*batchBuffers)
	}
	if buf, ok := nw.buffers[batchSize]; ok {
		return buf
	}

	buf := &batchBuffers{
		input: NewMatrix(batchSize, nw.Layers[0].Weights.rows),
		grads: make([]GradientSet, len(nw.Layers)),
	}
	for l, layer := range nw.Layers {
		outDim := layer.Weights.cols
		buf.z = append(buf.z, NewMatrix(batchSize, outDim))
		buf.a = append(buf.a, NewMatrix(batchSize, outDim))
		buf.dZ = append(buf.dZ, NewMatrix(batchSize, outDim))
		buf.grads[l] = GradientSet{
			dW: NewMatrix(layer.Weights.rows, layer.Weights.cols),
			db: NewMatrix(1, outDim),
		}
	}
	nw.buffers[batchSize] = buf
	return buf
}

func (nw *NeuralNetwork) forward(buf *batchBuffers) {
	activation := buf.input
	for l, layer := range nw.Layers {
		MatMul(activation.dense, layer.Weights.dense, buf.z[l])
		buf.z[l].AddVector(layer.Biases)
		copy(buf.a[l].data, buf.z[l].data)
		layer.ActType.apply(buf.a[l])
		activation = buf.a[l]
	}
}

func (nw *NeuralNetwork) computeGradients(buf *batchBuffers, targets *Matrix) {
	scale := 1.0 / float64(buf.input.rows)
	last := len(nw.Layers) - 1

	// Output error for the quadratic cost: (a - y) * sigmoid'(z)
	copy(buf.dZ[last].data, buf.a[last].data)
	floats.Sub(buf.dZ[last].data, targets.data)
	nw.Layers[last].ActType.derivative(buf.dZ[last].data, buf.z[last].data, buf.a[last].data)

	for l := last; l >= 0; l-- {
		layer := nw.Layers[l]
		prev := buf.input
		if l > 0 {
			prev = buf.a[l-1]
		}

		MatMul(prev.dense.T(), buf.dZ[l].dense, buf.grads[l].dW)
		buf.grads[l].db.Reset()
		db := buf.grads[l].db.data
		cols := buf.dZ[l].cols
		for r := 0; r < buf.dZ[l].rows; r++ {
			floats.Add(db, buf.dZ[l].data[r*cols:(r+1)*cols])
		}
		floats.Scale(scale, buf.grads[l].dW.data)
		floats.Scale(scale, db)

		if l > 0 {
			MatMul(buf.dZ[l].dense, layer.Weights.dense.T(), buf.dZ[l-1])
			nw.Layers[l-1].ActType.derivative(buf.dZ[l-1].data, buf.z[l-1].data, buf.a[l-1].data)
		}
	}
}

// Equal reports whether both networks hold the same topology and parameters.
func (nw *NeuralNetwork) Equal(other *NeuralNetwork) bool {
	if nw.ID != other.ID || len(nw.Layers) != len(other.Layers) {
		return false
	}
	for i, l := range nw.Layers {
		o := other.Layers[i]
		if l.ActType != o.ActType || !l.Weights.Equal(o.Weights) || !l.Biases.Equal(o.Biases) {
			return false
		}
	}
	return true
}

// ------ SERIALIZATION ------ //

type layerData struct {
	Weights *Matrix
	Biases  *Matrix
	ActType ActivationType
}

type networkData struct {
	Format     string
	ID         uuid.UUID
	LayerSizes []int
	Layers     []layerData
}

// Encode writes the network as a gob stream.
func (nw *NeuralNetwork) Encode(w io.Writer) error {
	nd := networkData{
		Format:     modelFormat,
		ID:         nw.ID,
		LayerSizes: nw.LayerSizes(),
		Layers:     make([]layerData, len(nw.Layers)),
	}
	for i, l := range nw.Layers {
		nd.Layers[i] = layerData{Weights: l.Weights, Biases: l.Biases, ActType: l.ActType}
	}
	return gob.NewEncoder(w).Encode(nd)
}

// DecodeNetwork reads a network written by Encode and validates its shapes.
func DecodeNetwork(r io.Reader) (*NeuralNetwork, error) {
	var nd networkData
	if err := gob.NewDecoder(r).Decode(&nd); err != nil {
		return nil, errors.Wrapf(ErrCorruptModel, "decode: %v", err)
	}
	if nd.Format != modelFormat {
		return nil, errors.Wrapf(ErrCorruptModel, "unknown format %q", nd.Format)
	}
	if len(nd.Layers) == 0 || len(nd.LayerSizes) != len(nd.Layers)+1 {
		return nil, errors.Wrapf(ErrCorruptModel, "%d layers for topology %v", len(nd.Layers), nd.LayerSizes)
	}

	nw := &NeuralNetwork{ID: nd.ID}
	for i, ld := range nd.Layers {
		in, out := nd.LayerSizes[i], nd.LayerSizes[i+1]
		if ld.Weights == nil || ld.Biases == nil {
			return nil, errors.Wrapf(ErrCorruptModel, "layer %d is missing parameters", i)
		}
		if ld.Weights.rows != in || ld.Weights.cols != out {
			return nil, errors.Wrapf(ErrCorruptModel, "layer %d weights shape mismatch: expected [%d, %d], got [%d, %d]",
				i, in, out, ld.Weights.rows, ld.Weights.cols)
		}
		if ld.Biases.rows != 1 || ld.Biases.cols != out {
			return nil, errors.Wrapf(ErrCorruptModel, "layer %d biases shape mismatch: expected [1, %d], got [%d, %d]",
				i, out, ld.Biases.rows, ld.Biases.cols)
		}
		if ld.ActType.String() == "unknown" {
			return nil, errors.Wrapf(ErrCorruptModel, "layer %d has unknown activation %d", i, ld.ActType)
		}
		nw.Layers = append(nw.Layers, &Layer{Weights: ld.Weights, Biases: ld.Biases, ActType: ld.ActType})
	}
	return nw, nil
}

// NetworkGateway builds NeuralNetworks for the training core.
type NetworkGateway struct {
	Hidden    ActivationType
	Optimizer OptimizerType
	Momentum  float64
}

func (g NetworkGateway) GenerateRandom(layerSizes []int, rng *rand.Rand) (Model, error) {
	if len(layerSizes) < 2 {
		return nil, errors.Wrapf(ErrConfig, "topology %v needs an input and an output layer", layerSizes)
	}
	configs := []LayerConfig{Input(layerSizes[0])}
	for _, size := range layerSizes[1:] {
		configs = append(configs, Dense(size, WithActivation(g.Hidden)))
	}
	nw, err := NewNetwork(rng, configs...)
	if err != nil {
		return nil, err
	}
	nw.SetOptimizer(NewOptimizer(nw, g.Optimizer, g.Momentum))
	return nw, nil
}

func (g NetworkGateway) Decode(r io.Reader) (Model, error) {
	nw, err := DecodeNetwork(r)
	if err != nil {
		return nil, err
	}
	nw.SetOptimizer(NewOptimizer(nw, g.Optimizer, g.Momentum))
	return nw, nil
}
