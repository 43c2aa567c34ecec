package model

import (
	"strings"

	"golang.org/x/xerrors"
)

/*
Sequential is an ordered sequence of layers, output width of every
parameterized layer is equal to input width of the next one
*/
type Sequential struct {
	layers []Layer
	device Device
}

/*
NewSequential creates host resident network from layers, layers are copied
*/
func NewSequential(layers ...Layer) (*Sequential, error) {
	prev, at := -1, -1
	for i, l := range layers {
		if l == nil {
			return nil, xerrors.Errorf("layer %d is nil", i)
		}
		in, out, ok := widths(l)
		if !ok {
			continue
		}
		if prev >= 0 && in != prev {
			return nil, xerrors.Errorf("layer %d %v expects width %d but layer %d produces %d: %w", i, l, in, at, prev, ErrShape)
		}
		prev, at = out, i
	}
	s := &Sequential{layers: make([]Layer, len(layers))}
	for i, l := range layers {
		s.layers[i] = cloneLayer(l)
	}
	return s, nil
}

/*
MustSequential is NewSequential panicking on error
*/
func MustSequential(layers ...Layer) *Sequential {
	s, err := NewSequential(layers...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Sequential) Len() int {
	return len(s.layers)
}

/*
Layers returns deep copies of the network layers
*/
func (s *Sequential) Layers() []Layer {
	r := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		r[i] = cloneLayer(l)
	}
	return r
}

/*
InWidth returns input width of the first parameterized layer or 0
*/
func (s *Sequential) InWidth() int {
	for _, l := range s.layers {
		if in, _, ok := widths(l); ok {
			return in
		}
	}
	return 0
}

func (s *Sequential) Kind() Kind {
	return KindSequential
}

func (s *Sequential) Device() Device {
	return s.device
}

/*
To returns a deep copy placed on the device
*/
func (s *Sequential) To(d Device) *Sequential {
	r := &Sequential{layers: s.Layers(), device: d}
	return r
}

func (s *Sequential) Clone() Network {
	return s.To(s.device)
}

func (s *Sequential) ParamCount() int {
	n := 0
	for _, l := range s.layers {
		n += paramCount(l)
	}
	return n
}

func (s *Sequential) Forward(x Tensor) (Tensor, error) {
	var err error
	for i, l := range s.layers {
		if x, err = forwardLayer(l, x); err != nil {
			return Tensor{}, xerrors.Errorf("layer %d: %w", i, err)
		}
	}
	return x, nil
}

func (s *Sequential) String() string {
	q := make([]string, len(s.layers))
	for i, l := range s.layers {
		q[i] = l.String()
	}
	return "Sequential(" + strings.Join(q, ", ") + ")"
}
