package data

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrCorruptIDX is returned for files that are not unsigned-byte IDX data.
var ErrCorruptIDX = errors.New("corrupt idx file")

const idxUnsignedByte = 0x08

// MNIST file names, looked up plain first and then with a .gz suffix.
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	EvalImagesFile  = "t10k-images-idx3-ubyte"
	EvalLabelsFile  = "t10k-labels-idx1-ubyte"
)

// IDX is a decoded unsigned-byte IDX tensor.
type IDX struct {
	Dims []int
	Data []byte
}

// ReadIDX decodes an IDX stream: two zero bytes, a type byte, a dimension
// count, one big-endian uint32 per dimension and the payload.
func ReadIDX(r io.Reader) (*IDX, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errors.Wrap(ErrCorruptIDX, "short header")
	}
	if magic[0] != 0 || magic[1] != 0 {
		return nil, errors.Wrapf(ErrCorruptIDX, "bad magic %x", magic)
	}
	if magic[2] != idxUnsignedByte {
		return nil, errors.Wrapf(ErrCorruptIDX, "unsupported element type 0x%02x", magic[2])
	}
	nd := int(magic[3])
	if nd == 0 {
		return nil, errors.Wrap(ErrCorruptIDX, "zero dimensions")
	}

	dims := make([]int, nd)
	size := 1
	for i := range dims {
		var d uint32
		if err := binary.Read(r, binary.BigEndian, &d); err != nil {
			return nil, errors.Wrapf(ErrCorruptIDX, "dimension %d: %v", i, err)
		}
		if d == 0 {
			return nil, errors.Wrapf(ErrCorruptIDX, "dimension %d is empty", i)
		}
		if size > math.MaxInt/int(d) {
			return nil, errors.Wrapf(ErrCorruptIDX, "dimension %d of size %d overflows the payload size", i, d)
		}
		dims[i] = int(d)
		size *= int(d)
	}

	// The header is untrusted: the buffer only grows with bytes actually read.
	payload, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptIDX, "payload: %v", err)
	}
	if len(payload) != size {
		return nil, errors.Wrapf(ErrCorruptIDX, "payload: want %d bytes, got %d", size, len(payload))
	}
	return &IDX{Dims: dims, Data: payload}, nil
}

// OpenIDX reads an IDX file from disk, gunzipping it when needed.
func OpenIDX(path string) (*IDX, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if head, err := br.Peek(2); err == nil && bytes.Equal(head, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptIDX, "%s: %v", path, err)
		}
		defer gz.Close()
		r = gz
	}

	idx, err := ReadIDX(r)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return idx, nil
}

// Source holds the four raw MNIST buffers.
type Source struct {
	TrainImages, TrainLabels []byte
	EvalImages, EvalLabels   []byte
	Rows, Cols               int
}

// SampleSize is the number of bytes per image.
func (s *Source) SampleSize() int { return s.Rows * s.Cols }

// LoadMNIST reads the standard four MNIST files from dir.
func LoadMNIST(dir string) (*Source, error) {
	trainImg, err := openInDir(dir, TrainImagesFile)
	if err != nil {
		return nil, err
	}
	trainLbl, err := openInDir(dir, TrainLabelsFile)
	if err != nil {
		return nil, err
	}
	evalImg, err := openInDir(dir, EvalImagesFile)
	if err != nil {
		return nil, err
	}
	evalLbl, err := openInDir(dir, EvalLabelsFile)
	if err != nil {
		return nil, err
	}

	if len(trainImg.Dims) != 3 || len(evalImg.Dims) != 3 {
		return nil, errors.Wrap(ErrCorruptIDX, "image files must be 3 dimensional")
	}
	if len(trainLbl.Dims) != 1 || len(evalLbl.Dims) != 1 {
		return nil, errors.Wrap(ErrCorruptIDX, "label files must be 1 dimensional")
	}
	if trainImg.Dims[1] != evalImg.Dims[1] || trainImg.Dims[2] != evalImg.Dims[2] {
		return nil, errors.Wrapf(ErrSizeMismatch, "train images are %dx%d, eval images %dx%d",
			trainImg.Dims[1], trainImg.Dims[2], evalImg.Dims[1], evalImg.Dims[2])
	}

	return &Source{
		TrainImages: trainImg.Data,
		TrainLabels: trainLbl.Data,
		EvalImages:  evalImg.Data,
		EvalLabels:  evalLbl.Data,
		Rows:        trainImg.Dims[1],
		Cols:        trainImg.Dims[2],
	}, nil
}

func openInDir(dir, name string) (*IDX, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		path += ".gz"
	}
	return OpenIDX(path)
}
