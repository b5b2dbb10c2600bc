// Package sparse adapts github.com/james-bowman/sparse to the needs of map
// collections. Matrices are stored in compressed sparse column form and are
// immutable once built: every operation returns a new value, so a matrix can
// be shared as a snapshot between a collection and any statistic computed on
// it.
//
// Stored zeros left behind by cancellation are never reported: NNZ, DoNonZero
// and the column accessors only see non-zero values.
package sparse

import (
	"errors"
	"fmt"
	"math"

	bsparse "github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// ErrShape indicates operands whose dimensions do not agree.
var ErrShape = errors.New("sparse: dimension mismatch")

// Matrix is a rows x cols matrix in compressed sparse column form. A matrix
// with a zero dimension carries no storage.
type Matrix struct {
	rows, cols int
	csc        *bsparse.CSC
}

func wrap(rows, cols int, csc *bsparse.CSC) *Matrix {
	if rows == 0 || cols == 0 {
		csc = nil
	}
	return &Matrix{rows: rows, cols: cols, csc: csc}
}

// Zeros returns an all-zero rows x cols matrix.
func Zeros(rows, cols int) *Matrix {
	return NewBuilder(rows, cols).Build()
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// CSC returns the underlying compressed sparse column matrix, or nil when m
// has a zero dimension. Callers must not modify it.
func (m *Matrix) CSC() *bsparse.CSC {
	return m.csc
}

// NNZ returns the number of non-zero values.
func (m *Matrix) NNZ() int {
	n := 0
	m.DoNonZero(func(int, int, float64) { n++ })
	return n
}

// At returns the element at (i, j). It panics when out of range.
func (m *Matrix) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("sparse: At(%d, %d) outside %dx%d", i, j, m.rows, m.cols))
	}
	return m.csc.At(i, j)
}

func (m *Matrix) doCol(j int, fn func(i int, v float64)) {
	if m.csc == nil {
		return
	}
	m.csc.DoColNonZero(j, func(i, _ int, v float64) {
		if v != 0 {
			fn(i, v)
		}
	})
}

// Col returns column j as a sparse vector.
func (m *Matrix) Col(j int) *Vector {
	var ind []int
	var data []float64
	m.doCol(j, func(i int, v float64) {
		ind = append(ind, i)
		data = append(data, v)
	})
	return &Vector{v: bsparse.NewVector(m.rows, ind, data)}
}

// ColDense writes column j into dst, which must have length rows, and
// returns it. A nil dst is allocated.
func (m *Matrix) ColDense(dst []float64, j int) []float64 {
	if dst == nil {
		dst = make([]float64, m.rows)
	} else {
		if len(dst) != m.rows {
			panic(ErrShape)
		}
		for i := range dst {
			dst[i] = 0
		}
	}
	m.doCol(j, func(i int, v float64) { dst[i] = v })
	return dst
}

// DoNonZero calls fn for every non-zero element. The visiting order is
// unspecified.
func (m *Matrix) DoNonZero(fn func(i, j int, v float64)) {
	if m.csc == nil {
		return
	}
	m.csc.DoNonZero(func(i, j int, v float64) {
		if v != 0 {
			fn(i, j, v)
		}
	})
}

// Add returns m + o.
func (m *Matrix) Add(o *Matrix) (*Matrix, error) {
	if m.rows != o.rows || m.cols != o.cols {
		return nil, fmt.Errorf("%w: add %dx%d and %dx%d", ErrShape, m.rows, m.cols, o.rows, o.cols)
	}
	if m.csc == nil {
		return m, nil
	}
	var r bsparse.CSR
	r.Add(m.csc, o.csc)
	return wrap(m.rows, m.cols, r.ToCSC()), nil
}

// Mul returns m·o.
func (m *Matrix) Mul(o *Matrix) (*Matrix, error) {
	if m.cols != o.rows {
		return nil, fmt.Errorf("%w: multiply %dx%d by %dx%d", ErrShape, m.rows, m.cols, o.rows, o.cols)
	}
	if m.csc == nil || o.csc == nil {
		return Zeros(m.rows, o.cols), nil
	}
	var r bsparse.CSR
	r.Mul(m.csc, o.csc)
	return wrap(m.rows, o.cols, r.ToCSC()), nil
}

// apply rebuilds m with every non-zero value v at (i, j) replaced by
// fn(i, j, v).
func (m *Matrix) apply(fn func(i, j int, v float64) float64) *Matrix {
	b := NewBuilder(m.rows, m.cols)
	m.DoNonZero(func(i, j int, v float64) {
		b.Add(i, j, fn(i, j, v))
	})
	return b.Build()
}

// Scale returns f*m.
func (m *Matrix) Scale(f float64) *Matrix {
	if f == 0 {
		return Zeros(m.rows, m.cols)
	}
	return m.apply(func(_, _ int, v float64) float64 { return f * v })
}

// ScaleCols returns m·diag(d).
func (m *Matrix) ScaleCols(d []float64) (*Matrix, error) {
	if len(d) != m.cols {
		return nil, fmt.Errorf("%w: %d column factors for %d columns", ErrShape, len(d), m.cols)
	}
	return m.apply(func(_, j int, v float64) float64 { return v * d[j] }), nil
}

// ScaleRows returns diag(d)·m.
func (m *Matrix) ScaleRows(d []float64) (*Matrix, error) {
	if len(d) != m.rows {
		return nil, fmt.Errorf("%w: %d row factors for %d rows", ErrShape, len(d), m.rows)
	}
	return m.apply(func(i, _ int, v float64) float64 { return d[i] * v }), nil
}

// SetRowZero returns a copy of m with row i cleared.
func (m *Matrix) SetRowZero(row int) *Matrix {
	return m.apply(func(i, _ int, v float64) float64 {
		if i == row {
			return 0
		}
		return v
	})
}

// ColSums returns the sum of every column.
func (m *Matrix) ColSums() []float64 {
	s := make([]float64, m.cols)
	m.DoNonZero(func(_, j int, v float64) { s[j] += v })
	return s
}

// RowSums returns the sum of every row.
func (m *Matrix) RowSums() []float64 {
	s := make([]float64, m.rows)
	m.DoNonZero(func(i, _ int, v float64) { s[i] += v })
	return s
}

// Sum returns the sum of all elements.
func (m *Matrix) Sum() float64 {
	var s float64
	m.DoNonZero(func(_, _ int, v float64) { s += v })
	return s
}

// Max returns the largest element, implicit zeros included.
func (m *Matrix) Max() float64 {
	if m.rows == 0 || m.cols == 0 {
		return math.NaN()
	}
	max := math.Inf(-1)
	n := 0
	m.DoNonZero(func(_, _ int, v float64) {
		n++
		if v > max {
			max = v
		}
	})
	if n < m.rows*m.cols && max < 0 {
		max = 0
	}
	return max
}

// ToDense materialises m as a gonum dense matrix. It panics on an empty
// matrix, as mat.NewDense does.
func (m *Matrix) ToDense() *mat.Dense {
	if m.csc == nil {
		return mat.NewDense(m.rows, m.cols, nil)
	}
	return m.csc.ToDense()
}

// FromDense builds a sparse matrix from any gonum matrix, dropping zeros.
func FromDense(a mat.Matrix) *Matrix {
	r, c := a.Dims()
	b := NewBuilder(r, c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			if v := a.At(i, j); v != 0 {
				b.Add(i, j, v)
			}
		}
	}
	return b.Build()
}

// FromColumns assembles a matrix from column vectors of length rows.
func FromColumns(rows int, cols []*Vector) (*Matrix, error) {
	b := NewBuilder(rows, len(cols))
	for j, c := range cols {
		if c.Len() != rows {
			return nil, fmt.Errorf("%w: column %d has length %d, want %d", ErrShape, j, c.Len(), rows)
		}
		c.DoNonZero(func(i int, v float64) { b.Add(i, j, v) })
	}
	return b.Build(), nil
}

// Builder accumulates (i, j, v) triplets in a dictionary of keys. Duplicate
// coordinates are summed. A Builder is not safe for concurrent use; each
// worker owns its own.
type Builder struct {
	rows, cols int
	dok        *bsparse.DOK
}

// NewBuilder returns an empty builder for a rows x cols matrix.
func NewBuilder(rows, cols int) *Builder {
	b := &Builder{rows: rows, cols: cols}
	if rows > 0 && cols > 0 {
		b.dok = bsparse.NewDOK(rows, cols)
	}
	return b
}

// Add accumulates v at (i, j). It panics when out of range.
func (b *Builder) Add(i, j int, v float64) {
	if i < 0 || i >= b.rows || j < 0 || j >= b.cols {
		panic(fmt.Sprintf("sparse: Add(%d, %d) outside %dx%d", i, j, b.rows, b.cols))
	}
	if v == 0 {
		return
	}
	b.dok.Set(i, j, b.dok.At(i, j)+v)
}

// Build returns the accumulated matrix in compressed sparse column form.
func (b *Builder) Build() *Matrix {
	if b.dok == nil {
		return wrap(b.rows, b.cols, nil)
	}
	return wrap(b.rows, b.cols, b.dok.ToCSC())
}
