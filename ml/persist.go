package ml

import (
	"bufio"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Store keeps a model at a fixed path.
type Store struct {
	Path    string
	Gateway Gateway
}

// Load returns the model stored at s.Path. When no file exists it asks the
// gateway for a random model with layerSizes and reports loaded=false. A file
// that exists but cannot be decoded is ErrCorruptModel, never a fresh model.
func (s *Store) Load(layerSizes []int, rng *rand.Rand) (model Model, loaded bool, err error) {
	model, err = s.Open()
	if errors.Is(err, os.ErrNotExist) {
		klog.Infof("No model at %s, generating random network %v", s.Path, layerSizes)
		model, err = s.Gateway.GenerateRandom(layerSizes, rng)
		return model, false, err
	}
	if err != nil {
		return nil, false, err
	}
	if got := model.LayerSizes(); !slices.Equal(got, layerSizes) {
		return nil, false, errors.Wrapf(ErrTopologyMismatch, "%s holds %v, want %v", s.Path, got, layerSizes)
	}
	return model, true, nil
}

// Open decodes the model at s.Path whatever its topology. A missing file is
// reported with an error matching os.ErrNotExist.
func (s *Store) Open() (Model, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	model, err := s.Gateway.Decode(bufio.NewReader(f))
	if err != nil {
		if !errors.Is(err, ErrCorruptModel) {
			err = errors.Wrap(ErrCorruptModel, err.Error())
		}
		return nil, errors.Wrap(err, s.Path)
	}
	klog.Infof("Loaded model from %s", s.Path)
	return model, nil
}

// Save writes model to s.Path atomically: the state goes to a temporary file in
// the same directory, is synced and then renamed over the target.
func (s *Store) Save(model Model) (err error) {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = model.Encode(w); err != nil {
		return errors.Wrap(err, "encode model")
	}
	if err = w.Flush(); err != nil {
		return errors.Wrap(err, "write model")
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync model")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close model")
	}
	if err = os.Rename(tmp.Name(), s.Path); err != nil {
		return errors.Wrap(err, "rename model")
	}

	klog.Infof("Saved model to %s", s.Path)
	return nil
}
