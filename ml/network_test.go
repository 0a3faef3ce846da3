package ml

import (
	"bytes"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/b0tShaman/neuro-train/data"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

func newTestNetwork(t testing.TB, act ActivationType, sizes ...int) *NeuralNetwork {
	t.Helper()
	m := must.M1(NetworkGateway{Hidden: act}.GenerateRandom(sizes, seeded()))
	return m.(*NeuralNetwork)
}

func clone(t testing.TB, nw *NeuralNetwork) *NeuralNetwork {
	t.Helper()
	var buf bytes.Buffer
	must.M(nw.Encode(&buf))
	return must.M1(DecodeNetwork(&buf))
}

func randomSamples(rng *rand.Rand, n, in, classes int) []data.Sample {
	out := make([]data.Sample, n)
	for i := range out {
		x := make([]float64, in)
		for j := range x {
			x[j] = rng.Float64()
		}
		y := make([]float64, classes)
		y[rng.IntN(classes)] = 1
		out[i] = data.Sample{Input: x, Target: y}
	}
	return out
}

func TestGenerateRandomTopology(t *testing.T) {
	nw := newTestNetwork(t, ActSigmoid, 784, 30, 10)
	if got := nw.LayerSizes(); !slices.Equal(got, []int{784, 30, 10}) {
		t.Fatalf("LayerSizes() = %v", got)
	}
	if out := nw.FeedForward(make([]float64, 784)); len(out) != 10 {
		t.Fatalf("output length %d", len(out))
	}

	for _, sizes := range [][]int{nil, {5}, {5, 0}, {0, 3}} {
		if _, err := (NetworkGateway{}).GenerateRandom(sizes, seeded()); !errors.Is(err, ErrConfig) {
			t.Errorf("GenerateRandom(%v) err = %v", sizes, err)
		}
	}
}

func TestGenerateRandomIsSeeded(t *testing.T) {
	a := must.M1(NetworkGateway{}.GenerateRandom([]int{4, 3, 2}, rand.New(rand.NewPCG(1, 1)))).(*NeuralNetwork)
	b := must.M1(NetworkGateway{}.GenerateRandom([]int{4, 3, 2}, rand.New(rand.NewPCG(1, 1)))).(*NeuralNetwork)
	c := must.M1(NetworkGateway{}.GenerateRandom([]int{4, 3, 2}, rand.New(rand.NewPCG(2, 1)))).(*NeuralNetwork)
	if !a.Equal(b) {
		t.Fatal("same seed produced different networks")
	}
	if a.Equal(c) {
		t.Fatal("different seeds produced the same network")
	}
}

func TestFeedForwardIsPure(t *testing.T) {
	nw := newTestNetwork(t, ActRelu, 6, 5, 3)
	snapshot := clone(t, nw)
	input := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	first := nw.FeedForward(input)
	second := nw.FeedForward(input)
	if !slices.Equal(first, second) {
		t.Fatalf("outputs differ: %v vs %v", first, second)
	}
	if !nw.Equal(snapshot) {
		t.Fatal("FeedForward changed the parameters")
	}
	if input[0] != 0.1 {
		t.Fatal("FeedForward changed its input")
	}
}

func TestFeedForwardMatchesBatchForward(t *testing.T) {
	nw := newTestNetwork(t, ActSigmoid, 4, 3, 2)
	samples := randomSamples(seeded(), 3, 4, 2)
	buf := nw.bufferFor(len(samples))
	for i, s := range samples {
		copy(buf.input.data[i*4:], s.Input)
	}
	nw.forward(buf)
	last := buf.a[len(buf.a)-1]
	for i, s := range samples {
		single := nw.FeedForward(s.Input)
		for j, v := range single {
			if math.Abs(v-last.data[i*2+j]) > 1e-12 {
				t.Fatalf("sample %d: single %v, batch %v", i, single, last.data[i*2:i*2+2])
			}
		}
	}
}

// TestGradients compares one SGD step at rate 1 against central differences of MeasureError.
func TestGradients(t *testing.T) {
	for _, act := range []ActivationType{ActSigmoid, ActRelu} {
		nw := newTestNetwork(t, act, 3, 4, 2)
		batch := randomSamples(seeded(), 5, 3, 2)
		stepped := clone(t, nw)
		must.M(stepped.TrainOnBatch(batch, 1.0))

		const h = 1e-6
		for l, layer := range nw.Layers {
			for k := range layer.Weights.data {
				orig := layer.Weights.data[k]
				layer.Weights.data[k] = orig + h
				plus := nw.MeasureError(batch)
				layer.Weights.data[k] = orig - h
				minus := nw.MeasureError(batch)
				layer.Weights.data[k] = orig

				numeric := (plus - minus) / (2 * h)
				analytic := orig - stepped.Layers[l].Weights.data[k]
				if math.Abs(numeric-analytic) > 1e-6 {
					t.Fatalf("%v layer %d weight %d: numeric %v, backprop %v", act, l, k, numeric, analytic)
				}
			}
			for k := range layer.Biases.data {
				orig := layer.Biases.data[k]
				layer.Biases.data[k] = orig + h
				plus := nw.MeasureError(batch)
				layer.Biases.data[k] = orig - h
				minus := nw.MeasureError(batch)
				layer.Biases.data[k] = orig

				numeric := (plus - minus) / (2 * h)
				analytic := orig - stepped.Layers[l].Biases.data[k]
				if math.Abs(numeric-analytic) > 1e-6 {
					t.Fatalf("%v layer %d bias %d: numeric %v, backprop %v", act, l, k, numeric, analytic)
				}
			}
		}
	}
}

func TestTrainOnBatchReusesBuffers(t *testing.T) {
	nw := newTestNetwork(t, ActSigmoid, 3, 4, 2)
	samples := randomSamples(seeded(), 8, 3, 2)
	must.M(nw.TrainOnBatch(samples[:4], 0.5))

	// fresh has no cached workspaces, so any gradient left over in nw's would show.
	fresh := clone(t, nw)
	must.M(nw.TrainOnBatch(samples[4:], 0.5))
	must.M(fresh.TrainOnBatch(samples[4:], 0.5))
	if !nw.Equal(fresh) {
		t.Fatal("second step depends on the previous batch")
	}
	if got := nw.LayerSizes(); !slices.Equal(got, []int{3, 4, 2}) {
		t.Fatalf("LayerSizes() = %v", got)
	}
}

func TestTrainingReducesError(t *testing.T) {
	for _, opt := range []OptimizerType{OptSGD, OptMomentum} {
		m := must.M1(NetworkGateway{Optimizer: opt}.GenerateRandom([]int{2, 6, 2}, seeded()))
		set := []data.Sample{
			{Input: []float64{0, 0}, Target: []float64{1, 0}},
			{Input: []float64{0, 1}, Target: []float64{0, 1}},
			{Input: []float64{1, 0}, Target: []float64{0, 1}},
			{Input: []float64{1, 1}, Target: []float64{1, 0}},
		}
		before := m.MeasureError(set)
		for range 300 {
			must.M(m.TrainOnBatch(set[:3], 0.5))
			must.M(m.TrainOnBatch(set[3:], 0.5))
		}
		if after := m.MeasureError(set); !(after < before) {
			t.Errorf("%s: error went from %v to %v", opt, before, after)
		}
	}
}

func TestTrainOnBatchRejectsBadShapes(t *testing.T) {
	nw := newTestNetwork(t, ActSigmoid, 3, 2)
	err := nw.TrainOnBatch([]data.Sample{{Input: []float64{1, 2}, Target: []float64{1, 0}}}, 0.1)
	if !errors.Is(err, ErrModel) {
		t.Fatalf("err = %v, want ErrModel", err)
	}
	if err := nw.TrainOnBatch(nil, 0.1); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestMeasureError(t *testing.T) {
	nw := newTestNetwork(t, ActSigmoid, 1, 2)
	for _, l := range nw.Layers {
		l.Weights.Reset()
		l.Biases.Reset()
	}
	// Zero parameters output sigmoid(0) = 0.5 everywhere.
	set := []data.Sample{{Input: []float64{1}, Target: []float64{1, 0}}}
	if got := nw.MeasureError(set); math.Abs(got-0.25) > 1e-12 {
		t.Fatalf("MeasureError = %v, want 0.25", got)
	}
	if got := nw.MeasureError(nil); got != 0 {
		t.Fatalf("empty set error %v", got)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	nw := newTestNetwork(t, ActRelu, 5, 4, 3, 2)
	must.M(nw.TrainOnBatch(randomSamples(seeded(), 4, 5, 2), 0.3))

	var first, second bytes.Buffer
	must.M(nw.Encode(&first))
	must.M(nw.Encode(&second))
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("encoding the same network twice differs")
	}

	back := must.M1(DecodeNetwork(bytes.NewReader(first.Bytes())))
	if !nw.Equal(back) {
		t.Fatal("decoded network differs")
	}
	input := []float64{0.5, 0.1, 0.9, 0.3, 0.7}
	if !slices.Equal(nw.FeedForward(input), back.FeedForward(input)) {
		t.Fatal("decoded network predicts differently")
	}
}

func TestDecodeCorrupt(t *testing.T) {
	nw := newTestNetwork(t, ActSigmoid, 3, 2)
	var buf bytes.Buffer
	must.M(nw.Encode(&buf))
	good := buf.Bytes()

	for name, in := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("definitely not a model"),
		"truncated": good[:len(good)/2],
	} {
		if _, err := DecodeNetwork(bytes.NewReader(in)); !errors.Is(err, ErrCorruptModel) {
			t.Errorf("%s: err = %v, want ErrCorruptModel", name, err)
		}
	}
}

func TestPredict(t *testing.T) {
	nw := newTestNetwork(t, ActSigmoid, 2, 3)
	for _, l := range nw.Layers {
		l.Weights.Reset()
		l.Biases.Reset()
	}
	nw.Layers[0].Biases.data[2] = 4
	class, act := nw.Predict([]float64{0, 0})
	if class != 2 || math.Abs(act-Sigmoid(4)) > 1e-12 {
		t.Fatalf("Predict = %d, %v", class, act)
	}
}

// --- Benchmarks ---

var resultLoss float64

func benchmarkFeedForward(b *testing.B, hidden int) {
	nw := newTestNetwork(b, ActSigmoid, 784, hidden, 10)
	input := randomSamples(seeded(), 1, 784, 10)[0].Input
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		nw.FeedForward(input)
	}
}

func BenchmarkFeedForward_Hidden_30(b *testing.B)  { benchmarkFeedForward(b, 30) }
func BenchmarkFeedForward_Hidden_128(b *testing.B) { benchmarkFeedForward(b, 128) }

func benchmarkTrainOnBatch(b *testing.B, batchSize int, opt OptimizerType) {
	m := must.M1(NetworkGateway{Optimizer: opt}.GenerateRandom([]int{784, 30, 10}, seeded()))
	batch := randomSamples(seeded(), batchSize, 784, 10)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if err := m.TrainOnBatch(batch, 0.5); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTrainStep_SGD_10(b *testing.B)      { benchmarkTrainOnBatch(b, 10, OptSGD) }
func BenchmarkTrainStep_SGD_64(b *testing.B)      { benchmarkTrainOnBatch(b, 64, OptSGD) }
func BenchmarkTrainStep_Momentum_64(b *testing.B) { benchmarkTrainOnBatch(b, 64, OptMomentum) }

func BenchmarkMeasureError_1000(b *testing.B) {
	nw := newTestNetwork(b, ActSigmoid, 784, 30, 10)
	set := randomSamples(seeded(), 1000, 784, 10)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		resultLoss = nw.MeasureError(set)
	}
}
