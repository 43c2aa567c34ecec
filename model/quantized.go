package model

import (
	"fmt"
	"math"

	"go-ml.dev/pkg/camp/fu"
	"golang.org/x/xerrors"
)

const qmax = 127

/*
QuantizedLinear is a linear layer with int8 weights and a per-tensor scale.
Inputs are quantized dynamically, row by row, when the layer runs.
Products are accumulated in int64.
*/
type QuantizedLinear struct {
	Q     []int8 // row-major Rows x Cols
	Scale float64
	Rows  int // output width
	Cols  int // input width
	B     []float64
}

/*
QuantizeLinear converts float weights to the symmetric int8 representation
*/
func QuantizeLinear(l *Linear) *QuantizedLinear {
	w := l.Weights()
	scale := fu.Absmaxd(w) / qmax
	if scale == 0 {
		scale = 1
	}
	return &QuantizedLinear{
		Q:     quantize(w, scale),
		Scale: scale,
		Rows:  l.Out(),
		Cols:  l.In(),
		B:     append([]float64(nil), l.B...),
	}
}

func quantize(x []float64, scale float64) []int8 {
	q := make([]int8, len(x))
	for i, v := range x {
		r := math.Round(v / scale)
		q[i] = int8(math.Max(-qmax, math.Min(qmax, r)))
	}
	return q
}

func (*QuantizedLinear) layer() {}

func (l *QuantizedLinear) String() string {
	return fmt.Sprintf("QuantizedLinear(%d, %d, scale=%g)", l.Cols, l.Rows, l.Scale)
}

/*
Dequantized returns float approximation of the weights
*/
func (l *QuantizedLinear) Dequantized() []float64 {
	w := make([]float64, len(l.Q))
	for i, q := range l.Q {
		w[i] = float64(q) * l.Scale
	}
	return w
}

func (l *QuantizedLinear) clone() *QuantizedLinear {
	return &QuantizedLinear{
		Q:     append([]int8(nil), l.Q...),
		Scale: l.Scale,
		Rows:  l.Rows,
		Cols:  l.Cols,
		B:     append([]float64(nil), l.B...),
	}
}

func (l *QuantizedLinear) forward(x Tensor) (Tensor, error) {
	if x.Rank() != 2 || x.Cols() != l.Cols {
		return Tensor{}, xerrors.Errorf("%v got input %v: %w", l, x.Shape, ErrShape)
	}
	return quantizedKernel(l.Q, l.Scale, l.Rows, l.Cols, l.B, x), nil
}

func quantizedKernel(q []int8, scale float64, rows, cols int, b []float64, x Tensor) Tensor {
	r := Matrix(x.Rows(), rows, nil)
	for n := 0; n < x.Rows(); n++ {
		in := x.Row(n)
		out := r.Row(n)
		sx := fu.Absmaxd(in) / qmax
		if sx == 0 {
			copy(out, b)
			continue
		}
		qx := quantize(in, sx)
		for o := 0; o < rows; o++ {
			var acc int64
			w := q[o*cols : (o+1)*cols]
			for k, v := range qx {
				acc += int64(v) * int64(w[k])
			}
			out[o] = float64(acc)*sx*scale + b[o]
		}
	}
	return r
}
