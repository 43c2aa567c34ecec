package model

import (
	"fmt"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

/*
Tensor is a row-major rank 1 or rank 2 block of float64 values
*/
type Tensor struct {
	Shape []int
	Data  []float64
}

/*
Matrix creates rows x cols tensor, data is used as is
*/
func Matrix(rows, cols int, data []float64) Tensor {
	if data == nil {
		data = make([]float64, rows*cols)
	}
	return Tensor{Shape: []int{rows, cols}, Data: data}
}

/*
Vector creates rank 1 tensor, data is used as is
*/
func Vector(data []float64) Tensor {
	return Tensor{Shape: []int{len(data)}, Data: data}
}

func (t Tensor) Rank() int {
	return len(t.Shape)
}

func (t Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

/*
Cols returns width of one example, 1 for rank 1 tensors
*/
func (t Tensor) Cols() int {
	if len(t.Shape) < 2 {
		return 1
	}
	return t.Shape[1]
}

func (t Tensor) At(i, j int) float64 {
	return t.Data[i*t.Cols()+j]
}

/*
Row returns a view of i-th example
*/
func (t Tensor) Row(i int) []float64 {
	c := t.Cols()
	return t.Data[i*c : (i+1)*c]
}

/*
Head returns a copy of the first n examples
*/
func (t Tensor) Head(n int) Tensor {
	if n > t.Rows() {
		n = t.Rows()
	}
	shape := append([]int(nil), t.Shape...)
	shape[0] = n
	return Tensor{Shape: shape, Data: append([]float64(nil), t.Data[:n*t.Cols()]...)}
}

func (t Tensor) Copy() Tensor {
	return Tensor{Shape: append([]int(nil), t.Shape...), Data: append([]float64(nil), t.Data...)}
}

/*
Reshape returns tensor with the same data and a new shape
*/
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	n := 1
	for _, x := range shape {
		n *= x
	}
	if n != len(t.Data) {
		return Tensor{}, xerrors.Errorf("can't reshape %v to %v: %w", t.Shape, shape, ErrShape)
	}
	return Tensor{Shape: shape, Data: t.Data}, nil
}

func (t Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

/*
dense wraps rank 2 tensor data as gonum matrix without copying
*/
func (t Tensor) dense() *mat.Dense {
	return mat.NewDense(t.Rows(), t.Cols(), t.Data)
}

func fromDense(m *mat.Dense) Tensor {
	r, c := m.Dims()
	raw := m.RawMatrix()
	if raw.Stride == c {
		return Matrix(r, c, raw.Data[:r*c])
	}
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return Matrix(r, c, data)
}

/*
SameShape reports whether two shapes are equal
*/
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
