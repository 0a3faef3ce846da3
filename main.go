package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/b0tShaman/neuro-train/data"
	"github.com/b0tShaman/neuro-train/ml"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var klogFlags = flag.NewFlagSet("klog", flag.ContinueOnError)

func init() {
	klog.InitFlags(klogFlags)
}

// -------- MAIN -------- //
func main() {
	defer klog.Flush()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		klog.Errorf("Fatal: %v", err)
		klog.Flush()
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := parseConfig(args, stdout)
	if err != nil {
		return err
	}
	if err := klogFlags.Set("v", strconv.Itoa(cfg.LogLevel)); err != nil {
		return errors.Wrap(err, "set log level")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	klog.V(1).Infof("Random seed %d", seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	if cfg.PredictPath != "" {
		return predict(cfg, stdout)
	}

	// 1. Load Data
	klog.Infof("Loading dataset from %s", cfg.DataDir)
	src, err := data.LoadMNIST(cfg.DataDir)
	if err != nil {
		return errors.Wrap(err, "load dataset")
	}
	trainSet, err := data.Assemble(src.TrainImages, src.TrainLabels, src.SampleSize(), numClasses)
	if err != nil {
		return errors.Wrap(err, "training set")
	}
	evalSet, err := data.Assemble(src.EvalImages, src.EvalLabels, src.SampleSize(), numClasses)
	if err != nil {
		return errors.Wrap(err, "evaluation set")
	}
	trainSet.Truncate(cfg.TrainLimit)
	evalSet.Truncate(cfg.EvalLimit)
	klog.Infof("Loaded dataset: %d training, %d evaluation samples, %d input features",
		trainSet.Len(), evalSet.Len(), src.SampleSize())

	if err := cfg.Train.Validate(trainSet.Len()); err != nil {
		return err
	}

	// 2. Initialize Network
	store := &ml.Store{Path: cfg.ModelPath, Gateway: cfg.gateway()}
	model, _, err := store.Load(cfg.topology(src.SampleSize()), rng)
	if err != nil {
		return err
	}

	// 3. Train
	var rep ml.Reporter = ml.NopReporter{}
	if cfg.Verbose {
		console := ml.NewConsoleReporter(stdout)
		console.Detail = cfg.Detail
		rep = console
	}
	res, err := ml.Train(model, trainSet, evalSet, cfg.Train, rng, rep)
	if err != nil {
		return err
	}
	if !cfg.Verbose {
		fmt.Fprintf(stdout, "Correctly identified %d/%d (%.2f%% - %+.2f%%)\n",
			res.After.Correct, res.After.Total, res.After.Accuracy(), res.Improvement())
	}

	if cfg.SaveOnExit {
		return store.Save(model)
	}
	return nil
}

// predict classifies a single image with the persisted model.
func predict(cfg *config, stdout io.Writer) error {
	store := &ml.Store{Path: cfg.ModelPath, Gateway: cfg.gateway()}
	model, err := store.Open()
	if err != nil {
		return errors.Wrap(err, "prediction needs a trained model")
	}

	// The image is scaled to the model's input size, assumed square.
	inputs := model.LayerSizes()[0]
	side := isqrt(inputs)
	if side*side != inputs {
		return errors.Wrapf(ml.ErrConfig, "model input size %d is not a square image", inputs)
	}

	raw, err := data.ConvertImage(cfg.PredictPath, side, side, cfg.Invert)
	if err != nil {
		return errors.Wrapf(err, "read %s", cfg.PredictPath)
	}
	out := model.FeedForward(data.Normalize(raw))
	best := data.ArgMax(out)
	fmt.Fprintf(stdout, "Prediction: %d (activation %.4f)\n", best, out[best])
	return nil
}

func isqrt(n int) int {
	r := 0
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
