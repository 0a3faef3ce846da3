package ml

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/b0tShaman/neuro-train/data"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type TrainingConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	EvalEvery    int // Checkpoint interval in epochs

	// Adaptive enables Schedule at every checkpoint.
	Adaptive bool
	Schedule Schedule

	// ReshuffleEveryEpoch shuffles before every epoch instead of once per run.
	ReshuffleEveryEpoch bool
}

// Validate checks cfg against a training set of trainSize samples.
func (cfg TrainingConfig) Validate(trainSize int) error {
	if cfg.Epochs <= 0 {
		return errors.Wrapf(ErrConfig, "epochs must be > 0, got %d", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return errors.Wrapf(ErrConfig, "batch size must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.BatchSize > trainSize {
		return errors.Wrapf(ErrConfig, "batch size %d exceeds training set of %d", cfg.BatchSize, trainSize)
	}
	if !(cfg.LearningRate > 0) || math.IsInf(cfg.LearningRate, 0) {
		return errors.Wrapf(ErrConfig, "learning rate must be a positive number, got %v", cfg.LearningRate)
	}
	if cfg.EvalEvery <= 0 {
		return errors.Wrapf(ErrConfig, "eval interval must be > 0, got %d", cfg.EvalEvery)
	}
	if s := cfg.Schedule; s.MinRate < 0 || s.MaxRate < 0 || (s.MaxRate > 0 && s.MinRate > s.MaxRate) {
		return errors.Wrapf(ErrConfig, "learning rate bounds [%v, %v]", s.MinRate, s.MaxRate)
	}
	return nil
}

// Checkpoint is the trend measurement taken at a checkpoint epoch.
type Checkpoint struct {
	Epoch int
	Error float64
	Delta float64
	// DeltaPercent is Delta relative to the previous error. It is only
	// meaningful when DeltaDefined is set.
	DeltaPercent float64
	DeltaDefined bool
	Accuracy     float64
	LearnRate    float64
}

// Result summarises a run.
type Result struct {
	FinalLearnRate float64
	Before, After  *Report
	Checkpoints    []Checkpoint
	Batches        int
	Elapsed        time.Duration
}

// Improvement is the accuracy gain in percentage points.
func (r *Result) Improvement() float64 {
	return r.After.Accuracy() - r.Before.Accuracy()
}

// percentDelta returns delta as a percentage of last. The result is undefined
// when last is zero or either value is not finite.
func percentDelta(delta, last float64) (float64, bool) {
	if last == 0 || math.IsNaN(last) || math.IsInf(last, 0) {
		return 0, false
	}
	p := delta * 100 / last
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}

// Train runs cfg.Epochs epochs of mini-batch updates on model. Batches are
// applied strictly in order, so each update sees the previous one. Any model
// failure aborts the run with ErrModel.
func Train(model Model, trainSet, evalSet *data.Dataset, cfg TrainingConfig, rng *rand.Rand, rep Reporter) (*Result, error) {
	if err := cfg.Validate(trainSet.Len()); err != nil {
		return nil, err
	}
	if rep == nil {
		rep = NopReporter{}
	}
	klog.V(1).Infof("TrainingConfig: %+v", cfg)

	before, err := Evaluate(model, evalSet)
	if err != nil {
		return nil, errors.Wrap(err, "pre-training evaluation")
	}
	rep.Evaluated(StageBefore, before)

	res := &Result{Before: before}
	rate := cfg.LearningRate
	lastError := before.Error

	start := time.Now()
	trainSet.Shuffle(rng)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if cfg.ReshuffleEveryEpoch && epoch > 0 {
			trainSet.Shuffle(rng)
		}

		for b, batch := range trainSet.Batches(cfg.BatchSize) {
			err := guard(func() error { return model.TrainOnBatch(batch, rate) })
			if err != nil {
				if !errors.Is(err, ErrModel) {
					err = errors.Wrap(ErrModel, err.Error())
				}
				return nil, errors.Wrapf(err, "epoch %d batch %d", epoch, b)
			}
			res.Batches++
			klog.V(2).Infof("epoch %d batch %d (%d samples) rate %g", epoch, b, len(batch), rate)
		}

		if epoch%cfg.EvalEvery != 0 {
			continue
		}

		report, err := Evaluate(model, evalSet)
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d checkpoint", epoch)
		}
		e := report.Error
		delta := e - lastError
		cp := Checkpoint{Epoch: epoch, Error: e, Delta: delta, Accuracy: report.Accuracy(), LearnRate: rate}
		cp.DeltaPercent, cp.DeltaDefined = percentDelta(delta, lastError)
		res.Checkpoints = append(res.Checkpoints, cp)
		rep.Checkpoint(cp)

		if cfg.Adaptive {
			rate = cfg.Schedule.Next(rate, delta > 0)
		}
		lastError = e
	}
	res.Elapsed = time.Since(start)
	res.FinalLearnRate = rate

	after, err := Evaluate(model, evalSet)
	if err != nil {
		return nil, errors.Wrap(err, "post-training evaluation")
	}
	res.After = after
	rep.Evaluated(StageAfter, after)
	rep.Finished(res)

	klog.Infof("Training complete: %d batches in %v, final learning rate %g", res.Batches, res.Elapsed, rate)
	return res, nil
}
