package ml

import (
	"github.com/b0tShaman/neuro-train/data"
	"github.com/pkg/errors"
)

// Report is the outcome of one evaluation pass.
type Report struct {
	Error   float64
	Correct int
	Total   int
	// IncorrectByTrue[c] counts misses whose true class was c.
	IncorrectByTrue []int
	// IncorrectByGuessed[c] counts misses where the model guessed c.
	IncorrectByGuessed []int
	// Predictions holds one entry per sample in set order.
	Predictions []Prediction
}

// Prediction is the model's answer for one sample.
type Prediction struct {
	Guess, Expected int
}

func (p Prediction) Correct() bool { return p.Guess == p.Expected }

// Accuracy is the percentage of correct predictions, 0 for an empty set.
func (r *Report) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct*100) / float64(r.Total)
}

func (r *Report) Misclassified() int { return r.Total - r.Correct }

// Evaluate scores model over set. It only reads the model.
//
// Every target must decode back to the raw label at the same index; a mismatch
// means the encoding path is broken and is reported as ErrIntegrity.
func Evaluate(model Model, set *data.Dataset) (*Report, error) {
	if len(set.Labels) != len(set.Samples) {
		return nil, errors.Wrapf(ErrIntegrity, "%d samples but %d labels", len(set.Samples), len(set.Labels))
	}

	numClasses := set.NumClasses()
	rep := &Report{
		Total:              set.Len(),
		IncorrectByTrue:    make([]int, numClasses),
		IncorrectByGuessed: make([]int, numClasses),
		Predictions:        make([]Prediction, 0, set.Len()),
	}

	err := guard(func() error {
		for i, s := range set.Samples {
			if len(s.Target) != numClasses {
				return errors.Wrapf(ErrIntegrity, "sample %d has %d classes, want %d", i, len(s.Target), numClasses)
			}
			truth := data.ArgMax(s.Target)
			if truth != int(set.Labels[i]) {
				return errors.Wrapf(ErrIntegrity, "sample %d target decodes to %d, label is %d", i, truth, set.Labels[i])
			}

			out := model.FeedForward(s.Input)
			if len(out) != numClasses {
				return errors.Wrapf(ErrModel, "sample %d: model produced %d outputs for %d classes", i, len(out), numClasses)
			}
			guess := data.ArgMax(out)
			rep.Predictions = append(rep.Predictions, Prediction{Guess: guess, Expected: truth})

			if guess == truth {
				rep.Correct++
				continue
			}
			rep.IncorrectByTrue[truth]++
			rep.IncorrectByGuessed[guess]++
		}
		rep.Error = model.MeasureError(set.Samples)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrIntegrity) && !errors.Is(err, ErrModel) {
			err = errors.Wrapf(ErrModel, "evaluate: %v", err)
		}
		return nil, err
	}
	return rep, nil
}
