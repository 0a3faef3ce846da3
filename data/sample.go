package data

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidLabel is returned when a label falls outside [0, numClasses).
	ErrInvalidLabel = errors.New("invalid label")
	// ErrSizeMismatch is returned when parallel feature and label buffers disagree.
	ErrSizeMismatch = errors.New("size mismatch")
)

// Sample is one (input, target) pair. Input values lie in [0,1] and Target is one-hot.
type Sample struct {
	Input  []float64
	Target []float64
}

// Normalize maps every raw byte b to b/255.
func Normalize(raw []byte) []float64 {
	out := make([]float64, len(raw))
	for i, b := range raw {
		out[i] = float64(b) / 255.0
	}
	return out
}

// OneHot returns a numClasses long vector with 1.0 at label.
func OneHot(label, numClasses int) ([]float64, error) {
	if numClasses <= 0 {
		return nil, errors.Wrapf(ErrInvalidLabel, "class count %d", numClasses)
	}
	if label < 0 || label >= numClasses {
		return nil, errors.Wrapf(ErrInvalidLabel, "label %d not in [0,%d)", label, numClasses)
	}
	out := make([]float64, numClasses)
	out[label] = 1.0
	return out, nil
}

// Encode turns one raw image and its label byte into a Sample.
func Encode(raw []byte, label byte, numClasses int) (Sample, error) {
	target, err := OneHot(int(label), numClasses)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Input: Normalize(raw), Target: target}, nil
}

// ArgMax returns the index of the largest value. Among equal maxima the lowest
// index wins. It returns -1 for an empty vector.
func ArgMax(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	return floats.MaxIdx(v)
}
