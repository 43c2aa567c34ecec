package model

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

/*
Layer is one element of a sequential network.
It's one of *Linear, *QuantizedLinear, *Activation or *Squeeze.
*/
type Layer interface {
	layer()
	String() string
}

/*
Linear is y = x·Wᵀ + b with W of Out x In
*/
type Linear struct {
	W *mat.Dense
	B []float64
}

/*
NewLinear creates linear layer from row-major out x in weights
*/
func NewLinear(in, out int, w, b []float64) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, xerrors.Errorf("linear layer %dx%d: %w", in, out, ErrShape)
	}
	if w == nil {
		w = make([]float64, in*out)
	}
	if b == nil {
		b = make([]float64, out)
	}
	if len(w) != in*out || len(b) != out {
		return nil, xerrors.Errorf("linear layer %dx%d got %d weights and %d biases: %w", in, out, len(w), len(b), ErrShape)
	}
	return &Linear{
		W: mat.NewDense(out, in, append([]float64(nil), w...)),
		B: append([]float64(nil), b...),
	}, nil
}

func (*Linear) layer() {}

func (l *Linear) In() int {
	_, c := l.W.Dims()
	return c
}

func (l *Linear) Out() int {
	r, _ := l.W.Dims()
	return r
}

/*
Weights returns a row-major copy of the weight matrix
*/
func (l *Linear) Weights() []float64 {
	return fromDense(mat.DenseCopyOf(l.W)).Data
}

func (l *Linear) String() string {
	return fmt.Sprintf("Linear(%d, %d)", l.In(), l.Out())
}

func (l *Linear) clone() *Linear {
	return &Linear{W: mat.DenseCopyOf(l.W), B: append([]float64(nil), l.B...)}
}

func (l *Linear) forward(x Tensor) (Tensor, error) {
	if x.Rank() != 2 || x.Cols() != l.In() {
		return Tensor{}, xerrors.Errorf("%v got input %v: %w", l, x.Shape, ErrShape)
	}
	return linearKernel(l.W, l.B, x), nil
}

func linearKernel(w *mat.Dense, b []float64, x Tensor) Tensor {
	out, _ := w.Dims()
	if x.Rows() == 0 {
		return Matrix(0, out, []float64{})
	}
	y := mat.NewDense(x.Rows(), out, nil)
	y.Mul(x.dense(), w.T())
	r := fromDense(y)
	for i := 0; i < r.Rows(); i++ {
		row := r.Row(i)
		for j := range row {
			row[j] += b[j]
		}
	}
	return r
}

/*
ActivationKind enumerates supported nonlinearities
*/
type ActivationKind uint8

const (
	SiLU ActivationKind = iota
	ReLU
	Tanh
	Sigmoid
)

var activationNames = []string{"SiLU", "ReLU", "Tanh", "Sigmoid"}

func (k ActivationKind) String() string {
	if k.valid() {
		return activationNames[k]
	}
	return fmt.Sprintf("Activation#%d", int(k))
}

func (k ActivationKind) valid() bool {
	return int(k) < len(activationNames)
}

/*
ParseActivation decodes activation name, swish is accepted for SiLU
*/
func ParseActivation(s string) (ActivationKind, error) {
	for i, n := range activationNames {
		if strings.EqualFold(n, s) {
			return ActivationKind(i), nil
		}
	}
	if strings.EqualFold(s, "swish") {
		return SiLU, nil
	}
	return 0, xerrors.Errorf("unknown activation `%v`", s)
}

func (k ActivationKind) apply(x float64) float64 {
	switch k {
	case SiLU:
		return x / (1 + math.Exp(-x))
	case ReLU:
		return math.Max(x, 0)
	case Tanh:
		return math.Tanh(x)
	case Sigmoid:
		return 1 / (1 + math.Exp(-x))
	}
	return x
}

func (k ActivationKind) forward(x Tensor) Tensor {
	r := x.Copy()
	for i, v := range r.Data {
		r.Data[i] = k.apply(v)
	}
	return r
}

/*
Activation is an elementwise nonlinearity without parameters
*/
type Activation struct {
	Kind ActivationKind
}

func (*Activation) layer() {}

func (a *Activation) String() string {
	return a.Kind.String() + "()"
}

/*
Squeeze reshapes [N,1] output to [N]
*/
type Squeeze struct{}

func (*Squeeze) layer() {}

func (*Squeeze) String() string {
	return "Squeeze()"
}

func squeeze(x Tensor) (Tensor, error) {
	if x.Rank() == 2 && x.Cols() == 1 {
		return Vector(x.Copy().Data), nil
	}
	return x.Copy(), nil
}

func cloneLayer(l Layer) Layer {
	switch q := l.(type) {
	case *Linear:
		return q.clone()
	case *QuantizedLinear:
		return q.clone()
	case *Activation:
		return &Activation{Kind: q.Kind}
	case *Squeeze:
		return &Squeeze{}
	}
	panic(fmt.Sprintf("unknown layer type %T", l))
}

func forwardLayer(l Layer, x Tensor) (Tensor, error) {
	switch q := l.(type) {
	case *Linear:
		return q.forward(x)
	case *QuantizedLinear:
		return q.forward(x)
	case *Activation:
		return q.Kind.forward(x), nil
	case *Squeeze:
		return squeeze(x)
	}
	return Tensor{}, xerrors.Errorf("unknown layer type %T", l)
}

/*
widths returns input and output widths for parameterized layers
*/
func widths(l Layer) (int, int, bool) {
	switch q := l.(type) {
	case *Linear:
		return q.In(), q.Out(), true
	case *QuantizedLinear:
		return q.Cols, q.Rows, true
	}
	return 0, 0, false
}

func paramCount(l Layer) int {
	switch q := l.(type) {
	case *Linear:
		return q.In()*q.Out() + len(q.B)
	case *QuantizedLinear:
		return len(q.Q) + len(q.B)
	}
	return 0
}
