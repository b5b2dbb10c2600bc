package sparse

import (
	"fmt"

	bsparse "github.com/james-bowman/sparse"
)

// Vector is a sparse vector of fixed length.
type Vector struct {
	v *bsparse.Vector
}

// NewVector returns an all-zero vector of length n.
func NewVector(n int) *Vector {
	return &Vector{v: bsparse.NewVector(n, nil, nil)}
}

// VectorFromDense builds a vector from dense values, dropping zeros.
func VectorFromDense(d []float64) *Vector {
	var ind []int
	var data []float64
	for i, x := range d {
		if x != 0 {
			ind = append(ind, i)
			data = append(data, x)
		}
	}
	return &Vector{v: bsparse.NewVector(len(d), ind, data)}
}

// Len returns the logical length.
func (v *Vector) Len() int { return v.v.Len() }

// NNZ returns the number of non-zero values.
func (v *Vector) NNZ() int {
	n := 0
	v.DoNonZero(func(int, float64) { n++ })
	return n
}

// At returns element i.
func (v *Vector) At(i int) float64 {
	if i < 0 || i >= v.Len() {
		panic(fmt.Sprintf("sparse: vector index %d outside [0, %d)", i, v.Len()))
	}
	return v.v.AtVec(i)
}

// DoNonZero calls fn for every non-zero value.
func (v *Vector) DoNonZero(fn func(i int, x float64)) {
	v.v.DoNonZero(func(i, _ int, x float64) {
		if x != 0 {
			fn(i, x)
		}
	})
}

// Dense returns the vector as a dense slice.
func (v *Vector) Dense() []float64 {
	d := make([]float64, v.Len())
	v.DoNonZero(func(i int, x float64) { d[i] = x })
	return d
}

// Scale returns f*v.
func (v *Vector) Scale(f float64) *Vector {
	if f == 0 {
		return NewVector(v.Len())
	}
	r := new(bsparse.Vector)
	r.ScaleVec(f, v.v)
	return &Vector{v: r}
}

// Square returns the elementwise square of v.
func (v *Vector) Square() *Vector {
	var ind []int
	var data []float64
	v.DoNonZero(func(i int, x float64) {
		ind = append(ind, i)
		data = append(data, x*x)
	})
	return &Vector{v: bsparse.NewVector(v.Len(), ind, data)}
}

// Combine returns alpha*a + beta*b. It panics when the lengths differ.
func Combine(alpha float64, a *Vector, beta float64, b *Vector) *Vector {
	if a.Len() != b.Len() {
		panic(fmt.Sprintf("sparse: combine vectors of length %d and %d", a.Len(), b.Len()))
	}
	r := new(bsparse.Vector)
	r.AddVec(a.Scale(alpha).v, b.Scale(beta).v)
	return &Vector{v: r}
}
