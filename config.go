package main

import (
	"flag"
	"io"
	"strconv"
	"strings"

	"github.com/b0tShaman/neuro-train/ml"
	"github.com/pkg/errors"
)

const numClasses = 10

// config is the resolved command line. It is not modified after parseConfig.
type config struct {
	Verbose    bool
	Detail     bool
	SaveOnExit bool
	Train      ml.TrainingConfig

	LogLevel   int
	Seed       uint64
	Hidden     []int
	Activation ml.ActivationType
	Optimizer  ml.OptimizerType
	Momentum   float64

	ModelPath  string
	DataDir    string
	TrainLimit int
	EvalLimit  int

	PredictPath string
	Invert      bool
}

func parseConfig(args []string, output io.Writer) (*config, error) {
	fs := flag.NewFlagSet("neuro-train", flag.ContinueOnError)
	fs.SetOutput(output)

	cfg := &config{}
	fs.BoolVar(&cfg.Verbose, "v", false, "print the training report")
	fs.BoolVar(&cfg.Detail, "detail", false, "with -v, list every evaluation sample before training")
	fs.BoolVar(&cfg.SaveOnExit, "save", false, "save the model when training finishes")
	fs.BoolVar(&cfg.Train.Adaptive, "adaptive", false, "adapt the learning rate at every checkpoint")
	fs.IntVar(&cfg.Train.Epochs, "epochs", 50, "number of epochs")
	fs.IntVar(&cfg.Train.BatchSize, "batch", 10, "mini-batch size")
	fs.Float64Var(&cfg.Train.LearningRate, "rate", 0.5, "initial learning rate")
	fs.IntVar(&cfg.Train.EvalEvery, "eval-every", 1, "evaluate every N epochs")
	fs.Float64Var(&cfg.Train.Schedule.MinRate, "min-rate", 1e-6, "lower bound for the adaptive learning rate (0 = none)")
	fs.Float64Var(&cfg.Train.Schedule.MaxRate, "max-rate", 10, "upper bound for the adaptive learning rate (0 = none)")
	fs.BoolVar(&cfg.Train.ReshuffleEveryEpoch, "reshuffle", false, "shuffle the training set before every epoch")
	fs.IntVar(&cfg.LogLevel, "log-v", 0, "klog verbosity level")
	fs.Uint64Var(&cfg.Seed, "seed", 0, "random seed (0 = time based)")
	hidden := fs.String("hidden", "30", "comma separated hidden layer sizes")
	activation := fs.String("activation", "sigmoid", "hidden layer activation: sigmoid or relu")
	optimizer := fs.String("optimizer", "sgd", "optimizer: sgd or momentum")
	fs.Float64Var(&cfg.Momentum, "momentum", 0.9, "momentum factor")
	fs.StringVar(&cfg.ModelPath, "model", "assets/model.gob", "model file")
	fs.StringVar(&cfg.DataDir, "data", "assets/mnist", "directory holding the MNIST idx files")
	fs.IntVar(&cfg.TrainLimit, "train-limit", 50000, "number of training samples to use (0 = all)")
	fs.IntVar(&cfg.EvalLimit, "eval-limit", 10000, "number of evaluation samples to use (0 = all)")
	fs.StringVar(&cfg.PredictPath, "predict", "", "classify this image with the saved model instead of training")
	fs.BoolVar(&cfg.Invert, "invert", true, "invert the -predict image (dark digit on light background)")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(ml.ErrConfig, err.Error())
	}
	if fs.NArg() > 0 {
		return nil, errors.Wrapf(ml.ErrConfig, "unexpected arguments %v", fs.Args())
	}

	var err error
	if cfg.Hidden, err = parseSizes(*hidden); err != nil {
		return nil, err
	}
	if cfg.Activation, err = ml.ParseActivation(*activation); err != nil {
		return nil, err
	}
	if cfg.Optimizer, err = ml.ParseOptimizer(*optimizer); err != nil {
		return nil, err
	}
	if cfg.Momentum < 0 || cfg.Momentum >= 1 {
		return nil, errors.Wrapf(ml.ErrConfig, "momentum must be in [0,1), got %v", cfg.Momentum)
	}
	if cfg.TrainLimit < 0 || cfg.EvalLimit < 0 {
		return nil, errors.Wrap(ml.ErrConfig, "sample limits must not be negative")
	}
	if cfg.LogLevel < 0 {
		return nil, errors.Wrapf(ml.ErrConfig, "log level must not be negative, got %d", cfg.LogLevel)
	}
	// The batch bound needs the dataset; everything else is checked up front.
	if err := cfg.Train.Validate(cfg.Train.BatchSize); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSizes(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, errors.Wrapf(ml.ErrConfig, "invalid layer size %q", part)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// topology is the full layer list for inputs of the given size.
func (c *config) topology(inputSize int) []int {
	sizes := append([]int{inputSize}, c.Hidden...)
	return append(sizes, numClasses)
}

func (c *config) gateway() ml.Gateway {
	return ml.NetworkGateway{Hidden: c.Activation, Optimizer: c.Optimizer, Momentum: c.Momentum}
}
