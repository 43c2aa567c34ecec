/*
Package policy implements the classifier choosing a compression strategy
for a deployment context
*/
package policy

import (
	"go-ml.dev/pkg/camp/fu"
	"go-ml.dev/pkg/camp/model"
	"go-ml.dev/pkg/camp/strategy"
	"go-ml.dev/pkg/zorros"
	"golang.org/x/xerrors"
)

/*
Platform is the deployment target code
*/
type Platform int

const (
	GPU   Platform = 1
	CPU   Platform = 2
	MCU   Platform = 3
	Other Platform = 4
)

/*
Constraint is the optimization constraint code
*/
type Constraint int

const (
	Accuracy Constraint = 1
	Latency  Constraint = 2
	Size     Constraint = 3
)

/*
Context is the deployment context vector (platform, constraint)
*/
type Context struct {
	Platform   Platform
	Constraint Constraint
}

func (c Context) Vector() []float64 {
	return []float64{float64(c.Platform), float64(c.Constraint)}
}

/*
Topology is the layer widths of the policy network, hidden layers use SiLU
*/
func Topology() []int {
	return []int{2, 4, 8, 16, 32, 64, 32, 16, 8, strategy.Count}
}

/*
Classifier maps a deployment context to a strategy index
*/
type Classifier struct {
	net model.Network
}

func New(net model.Network) (*Classifier, error) {
	if net == nil {
		return nil, zorros.Errorf("policy network is nil")
	}
	return &Classifier{net: net}, nil
}

/*
Load reads the policy network artifact
*/
func Load(path string) (*Classifier, error) {
	net, err := model.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(net)
}

/*
Scores returns raw strategy scores for the context
*/
func (c *Classifier) Scores(ctx Context) ([]float64, error) {
	out, err := c.net.Forward(model.Matrix(1, 2, ctx.Vector()))
	if err != nil {
		return nil, xerrors.Errorf("policy network: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, xerrors.Errorf("policy network has empty output: %w", model.ErrShape)
	}
	return out.Data, nil
}

/*
Classify returns index of the maximal score, the lowest index wins a tie
*/
func (c *Classifier) Classify(ctx Context) (strategy.Index, error) {
	s, err := c.Scores(ctx)
	if err != nil {
		return -1, err
	}
	return strategy.Index(fu.Indmaxd(s)), nil
}

/*
Build creates a policy network of the standard topology, init provides
row-major out x in weights and biases of every linear layer
*/
func Build(init func(in, out int) ([]float64, []float64)) (*model.Sequential, error) {
	w := Topology()
	var layers []model.Layer
	for i := 1; i < len(w); i++ {
		a, b := init(w[i-1], w[i])
		l, err := model.NewLinear(w[i-1], w[i], a, b)
		if err != nil {
			return nil, err
		}
		if i > 1 {
			layers = append(layers, &model.Activation{Kind: model.SiLU})
		}
		layers = append(layers, l)
	}
	return model.NewSequential(layers...)
}
