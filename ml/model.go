package ml

import (
	"io"
	"math/rand/v2"

	"github.com/b0tShaman/neuro-train/data"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Error kinds. Every one of them aborts a run; callers tell them apart with errors.Is.
var (
	ErrConfig           = errors.New("invalid configuration")
	ErrIntegrity        = errors.New("data integrity violation")
	ErrModel            = errors.New("model failure")
	ErrCorruptModel     = errors.New("corrupt model file")
	ErrTopologyMismatch = errors.New("model topology mismatch")

	errShape = errors.New("matrix shape mismatch")
)

// Model is the trainable classifier driven by Train and read by Evaluate.
type Model interface {
	// FeedForward runs inference on one input. It must not mutate the model.
	FeedForward(input []float64) []float64
	// TrainOnBatch applies one update from the batch at the given learning rate.
	TrainOnBatch(batch []data.Sample, learnRate float64) error
	// MeasureError is the model's own loss over set.
	MeasureError(set []data.Sample) float64
	LayerSizes() []int
	// Encode writes the complete parameter state.
	Encode(w io.Writer) error
}

// Gateway creates models, either fresh or from a serialized state.
type Gateway interface {
	GenerateRandom(layerSizes []int, rng *rand.Rand) (Model, error)
	Decode(r io.Reader) (Model, error)
}

// guard runs fn and turns a panic carrying an error into a returned error.
func guard(fn func() error) (err error) {
	if exc := exceptions.TryCatch[error](func() { err = fn() }); exc != nil {
		return exc
	}
	return err
}
