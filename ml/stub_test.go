package ml

import (
	"encoding/gob"
	"io"
	"math/rand/v2"

	"github.com/b0tShaman/neuro-train/data"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
)

// stubModel answers with scripted outputs so the training core can be tested
// without any learning math.
type stubModel struct {
	sizes []int
	// outputs maps the first input value of a sample to the vector FeedForward returns.
	outputs map[float64][]float64
	// errors is returned by MeasureError, one value per call; the last repeats.
	errors []float64

	batchSizes []int
	rates      []float64
	seen       map[float64]int
	measured   int
	failAt     int // 1-based batch call that fails, 0 = never
	panicAt    int
}

func (m *stubModel) FeedForward(input []float64) []float64 {
	if out, ok := m.outputs[input[0]]; ok {
		return out
	}
	return make([]float64, m.sizes[len(m.sizes)-1])
}

func (m *stubModel) TrainOnBatch(batch []data.Sample, learnRate float64) error {
	m.batchSizes = append(m.batchSizes, len(batch))
	m.rates = append(m.rates, learnRate)
	if m.seen == nil {
		m.seen = map[float64]int{}
	}
	for _, s := range batch {
		m.seen[s.Input[0]]++
	}
	if m.failAt == len(m.batchSizes) {
		return io.ErrUnexpectedEOF
	}
	if m.panicAt == len(m.batchSizes) {
		exceptions.Panicf("stub exploded")
	}
	return nil
}

func (m *stubModel) MeasureError(set []data.Sample) float64 {
	i := min(m.measured, len(m.errors)-1)
	m.measured++
	if i < 0 {
		return 0
	}
	return m.errors[i]
}

func (m *stubModel) LayerSizes() []int { return m.sizes }

func (m *stubModel) Encode(w io.Writer) error {
	return gob.NewEncoder(w).Encode(m.sizes)
}

// datasetOf builds a dataset whose sample i has input {i} and the given label.
func datasetOf(labels ...byte) *data.Dataset {
	features := make([]byte, len(labels))
	for i := range features {
		features[i] = byte(i)
	}
	return must.M1(data.Assemble(features, labels, 1, 10))
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(42, 7))
}
