package data

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Dataset is an ordered sequence of samples together with the raw labels they
// were encoded from. Labels[i] always belongs to Samples[i].
type Dataset struct {
	Samples []Sample
	Labels  []byte
}

// Assemble splits features into sampleSize chunks and pairs every chunk with
// its label, preserving index order.
func Assemble(features, labels []byte, sampleSize, numClasses int) (*Dataset, error) {
	if sampleSize <= 0 {
		return nil, errors.Wrapf(ErrSizeMismatch, "sample size %d", sampleSize)
	}
	if len(features)%sampleSize != 0 {
		return nil, errors.Wrapf(ErrSizeMismatch, "%d feature bytes are not a multiple of sample size %d", len(features), sampleSize)
	}
	chunks := len(features) / sampleSize
	if chunks != len(labels) {
		return nil, errors.Wrapf(ErrSizeMismatch, "%d samples but %d labels", chunks, len(labels))
	}

	ds := &Dataset{
		Samples: make([]Sample, chunks),
		Labels:  make([]byte, chunks),
	}
	copy(ds.Labels, labels)
	for i := range chunks {
		s, err := Encode(features[i*sampleSize:(i+1)*sampleSize], labels[i], numClasses)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		ds.Samples[i] = s
	}
	return ds, nil
}

func (d *Dataset) Len() int { return len(d.Samples) }

// NumClasses is the target vector length, or 0 for an empty dataset.
func (d *Dataset) NumClasses() int {
	if len(d.Samples) == 0 {
		return 0
	}
	return len(d.Samples[0].Target)
}

// Truncate keeps the first n samples. n <= 0 or n >= Len() is a no-op.
func (d *Dataset) Truncate(n int) {
	if n <= 0 || n >= len(d.Samples) {
		return
	}
	d.Samples = d.Samples[:n]
	d.Labels = d.Labels[:n]
}

// Shuffle applies a uniform random permutation, moving samples and labels together.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.Samples), func(i, j int) {
		d.Samples[i], d.Samples[j] = d.Samples[j], d.Samples[i]
		d.Labels[i], d.Labels[j] = d.Labels[j], d.Labels[i]
	})
}

// Batches partitions the samples into consecutive batches of size. The last
// batch may be shorter. The batches share memory with the dataset.
func (d *Dataset) Batches(size int) [][]Sample {
	if size <= 0 {
		return nil
	}
	n := len(d.Samples)
	out := make([][]Sample, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		out = append(out, d.Samples[start:end])
	}
	return out
}
