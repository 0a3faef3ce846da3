package ml

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a row-major float64 matrix. data and dense share one backing
// array, so element loops and gonum kernels see the same values.
type Matrix struct {
	rows, cols int
	data       []float64
	dense      *mat.Dense
}

// -------- CONSTRUCTORS ------- //
func NewMatrix(rows, cols int) *Matrix {
	return wrap(rows, cols, make([]float64, rows*cols))
}

// NewMatrixFromSlice wraps data without copying it.
func NewMatrixFromSlice(rows, cols int, data []float64) *Matrix {
	if len(data) != rows*cols {
		exceptions.Panicf("slice length %d does not match %dx%d", len(data), rows, cols)
	}
	return wrap(rows, cols, data)
}

func wrap(rows, cols int, data []float64) *Matrix {
	return &Matrix{rows: rows, cols: cols, data: data, dense: mat.NewDense(rows, cols, data)}
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// ------- SERIALIZATION ------ //

type matrixWire struct {
	Rows, Cols int
	Data       []float64
}

func (m *Matrix) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(matrixWire{Rows: m.rows, Cols: m.cols, Data: m.data})
	return buf.Bytes(), err
}

func (m *Matrix) GobDecode(b []byte) error {
	var w matrixWire
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return err
	}
	// mat.NewDense panics on a short payload.
	if w.Rows <= 0 || w.Cols <= 0 || len(w.Data) != w.Rows*w.Cols {
		return errShape
	}
	*m = *wrap(w.Rows, w.Cols, w.Data)
	return nil
}

// ------- INITIALISATION ------ //

// Randomize draws He-scaled normal values, suited to ReLU layers.
func (m *Matrix) Randomize(rng *rand.Rand) {
	std := math.Sqrt(2 / float64(m.rows))
	m.fill(func() float64 { return rng.NormFloat64() * std })
}

// RandomizeXavier draws uniform values in ±sqrt(6/(fan_in+fan_out)), suited to sigmoid layers.
func (m *Matrix) RandomizeXavier(rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(m.rows+m.cols))
	m.fill(func() float64 { return limit * (2*rng.Float64() - 1) })
}

func (m *Matrix) fill(draw func() float64) {
	for i := range m.data {
		m.data[i] = draw()
	}
}

func (m *Matrix) Reset() {
	clear(m.data)
}

// ------- ARITHMETIC ------ //

// Equal reports whether both matrices have the same shape and identical values.
func (m *Matrix) Equal(b *Matrix) bool {
	if m == nil || b == nil {
		return m == b
	}
	if m.rows != b.rows || m.cols != b.cols {
		return false
	}
	return mat.Equal(m.dense, b.dense)
}

// AddVector adds the [1, cols] row vector v to every row of m.
func (m *Matrix) AddVector(v *Matrix) {
	bias := v.data[:m.cols]
	for r := range m.rows {
		row := m.data[r*m.cols : (r+1)*m.cols]
		for c, b := range bias {
			row[c] += b
		}
	}
}

func (m *Matrix) ApplyRelu() {
	for i := range m.data {
		m.data[i] = max(m.data[i], 0)
	}
}

func (m *Matrix) ApplySigmoid() {
	for i := range m.data {
		m.data[i] = Sigmoid(m.data[i])
	}
}

// MatMul stores a*b in out.
func MatMul(a, b mat.Matrix, out *Matrix) {
	out.dense.Mul(a, b)
}

func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
