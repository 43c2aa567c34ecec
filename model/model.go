package model

import (
	"golang.org/x/xerrors"
)

var (
	// ErrShape is reported when data or layer widths do not chain
	ErrShape = xerrors.New("shape mismatch")
	// ErrStructural is reported when a transform needs layer access the representation does not expose
	ErrStructural = xerrors.New("incompatible model structure")
)

/*
Kind is the representation kind of a network
*/
type Kind uint8

const (
	// KindSequential is the mutable ordered layer sequence
	KindSequential Kind = iota
	// KindTraced is the fixed topology fused-op representation
	KindTraced
)

func (k Kind) String() string {
	switch k {
	case KindSequential:
		return "sequential"
	case KindTraced:
		return "traced"
	}
	return "unknown"
}

/*
Network is a feed-forward model able to map a batch of examples to outputs.
Implementations are immutable, every transformation produces a new value.
*/
type Network interface {
	// Forward maps N x D examples to the network output
	Forward(x Tensor) (Tensor, error)
	// Kind returns representation kind
	Kind() Kind
	// Device returns where parameters of the network are placed
	Device() Device
	// Clone returns a deep copy
	Clone() Network
	// ParamCount returns the number of weights and biases
	ParamCount() int
}

/*
Place returns a copy of the network placed on the device
*/
func Place(net Network, d Device) Network {
	switch n := net.(type) {
	case *Sequential:
		return n.To(d)
	case *Traced:
		return n.To(d)
	}
	return net.Clone()
}

/*
Criterion selects the loss used to evaluate a model
*/
type Criterion int

const (
	// Classification uses cross-entropy
	Classification Criterion = 0
	// Regression uses mean squared error
	Regression Criterion = 1
)

func (c Criterion) String() string {
	switch c {
	case Classification:
		return "classification"
	case Regression:
		return "regression"
	}
	return "unknown"
}

/*
Params is a set of transform parameters
*/
type Params map[string]float64

/*
Get value of the parameter by name if exists and dflt value otherwise
*/
func (p Params) Get(name string, dflt float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return dflt
}
