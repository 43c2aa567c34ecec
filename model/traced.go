package model

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

type opCode uint8

const (
	opLinear opCode = iota + 1
	opQuantized
	opActivation
	opSqueeze
)

const noActivation = 0xff

/*
op is one fused step of a traced network. Linear steps may carry the
activation that immediately followed them in the traced run.
*/
type op struct {
	code  opCode
	act   uint8
	w     *mat.Dense
	q     []int8
	scale float64
	rows  int
	cols  int
	b     []float64
}

func (o op) clone() op {
	r := o
	if o.w != nil {
		r.w = mat.DenseCopyOf(o.w)
	}
	r.q = append([]int8(nil), o.q...)
	r.b = append([]float64(nil), o.b...)
	return r
}

func (o op) String() string {
	var s string
	switch o.code {
	case opLinear:
		s = fmt.Sprintf("linear(%dx%d)", o.cols, o.rows)
	case opQuantized:
		s = fmt.Sprintf("qlinear(%dx%d)", o.cols, o.rows)
	case opActivation:
		return strings.ToLower(ActivationKind(o.act).String())
	case opSqueeze:
		return "squeeze"
	}
	if o.act != noActivation {
		s += "+" + strings.ToLower(ActivationKind(o.act).String())
	}
	return s
}

func (o op) run(x Tensor) (Tensor, error) {
	switch o.code {
	case opLinear, opQuantized:
		if x.Rank() != 2 || x.Cols() != o.cols {
			return Tensor{}, xerrors.Errorf("%v got input %v: %w", o, x.Shape, ErrShape)
		}
		var y Tensor
		if o.code == opLinear {
			y = linearKernel(o.w, o.b, x)
		} else {
			y = quantizedKernel(o.q, o.scale, o.rows, o.cols, o.b, x)
		}
		if o.act != noActivation {
			k := ActivationKind(o.act)
			for i, v := range y.Data {
				y.Data[i] = k.apply(v)
			}
		}
		return y, nil
	case opActivation:
		return ActivationKind(o.act).forward(x), nil
	case opSqueeze:
		return squeeze(x)
	}
	return Tensor{}, xerrors.Errorf("unknown traced op %d", o.code)
}

/*
Traced is a fixed topology network recorded from one forward pass.
It does not expose layers, only the flattened list of fused ops.
*/
type Traced struct {
	ops    []op
	in     int
	device Device
}

/*
Trace runs the network once on the example and records executed ops
*/
func Trace(s *Sequential, example Tensor) (*Traced, error) {
	if example.Rows() == 0 {
		return nil, xerrors.Errorf("tracing needs an example input: %w", ErrShape)
	}
	t := &Traced{in: example.Cols(), device: s.device}
	x := example
	fusable := false
	for i, l := range s.layers {
		y, err := forwardLayer(l, x)
		if err != nil {
			return nil, xerrors.Errorf("trace layer %d: %w", i, err)
		}
		switch q := l.(type) {
		case *Linear:
			t.ops = append(t.ops, op{code: opLinear, act: noActivation, w: mat.DenseCopyOf(q.W), rows: q.Out(), cols: q.In(), b: append([]float64(nil), q.B...)})
			fusable = true
		case *QuantizedLinear:
			t.ops = append(t.ops, op{code: opQuantized, act: noActivation, q: append([]int8(nil), q.Q...), scale: q.Scale, rows: q.Rows, cols: q.Cols, b: append([]float64(nil), q.B...)})
			fusable = true
		case *Activation:
			if fusable {
				t.ops[len(t.ops)-1].act = uint8(q.Kind)
				fusable = false
			} else {
				t.ops = append(t.ops, op{code: opActivation, act: uint8(q.Kind)})
			}
		case *Squeeze:
			t.ops = append(t.ops, op{code: opSqueeze, act: noActivation})
			fusable = false
		}
		x = y
	}
	return t, nil
}

func (t *Traced) Kind() Kind {
	return KindTraced
}

func (t *Traced) Device() Device {
	return t.device
}

/*
InWidth is the example width the network was traced with
*/
func (t *Traced) InWidth() int {
	return t.in
}

/*
Len returns count of fused ops
*/
func (t *Traced) Len() int {
	return len(t.ops)
}

/*
Graph describes fused ops in execution order
*/
func (t *Traced) Graph() []string {
	r := make([]string, len(t.ops))
	for i, o := range t.ops {
		r[i] = o.String()
	}
	return r
}

func (t *Traced) To(d Device) *Traced {
	r := &Traced{ops: make([]op, len(t.ops)), in: t.in, device: d}
	for i, o := range t.ops {
		r.ops[i] = o.clone()
	}
	return r
}

func (t *Traced) Clone() Network {
	return t.To(t.device)
}

func (t *Traced) ParamCount() int {
	n := 0
	for _, o := range t.ops {
		switch o.code {
		case opLinear, opQuantized:
			n += o.rows*o.cols + len(o.b)
		}
	}
	return n
}

func (t *Traced) Forward(x Tensor) (Tensor, error) {
	if x.Rank() != 2 || x.Cols() != t.in {
		return Tensor{}, xerrors.Errorf("traced with width %d got input %v: %w", t.in, x.Shape, ErrShape)
	}
	var err error
	for i, o := range t.ops {
		if x, err = o.run(x); err != nil {
			return Tensor{}, xerrors.Errorf("op %d: %w", i, err)
		}
	}
	return x, nil
}

func (t *Traced) String() string {
	return "Traced(" + strings.Join(t.Graph(), " -> ") + ")"
}
