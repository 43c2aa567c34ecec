/*
Package transform implements compression transforms of feed-forward networks.

Every transform takes a network together with evaluation data and returns a
new network, the input network is never modified.
*/
package transform

import (
	"go-ml.dev/pkg/camp/model"
	"go.uber.org/zap"
)

const (
	// ParamPruneAmount is the fraction of weights pruning zeroes in every linear layer
	ParamPruneAmount = "prune_amount"
	// DefaultPruneAmount is used when ParamPruneAmount is not set
	DefaultPruneAmount = 0.3
	// ParamClusters is the count of shared weight values per linear layer
	ParamClusters = "clusters"
	// DefaultClusters is used when ParamClusters is not set
	DefaultClusters = 16
)

/*
Env is the per-run context transforms are called with
*/
type Env struct {
	Logger *zap.Logger
	Params model.Params
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

/*
Func is a transform of a network
*/
type Func func(env Env, net model.Network, data *model.Dataset, criterion model.Criterion) (model.Network, error)

/*
ID identifies a transform
*/
type ID uint8

const (
	Quantization ID = iota + 1
	Pruning
	WeightSharing
	LayerDropping
	Fusion
)

func (id ID) String() string {
	switch id {
	case Quantization:
		return "Quantization"
	case Pruning:
		return "Pruning"
	case WeightSharing:
		return "WeightSharing"
	case LayerDropping:
		return "LayerDropping"
	case Fusion:
		return "Fusion"
	}
	return "Unknown"
}

var registry = map[ID]Func{
	Quantization:  Quantize,
	Pruning:       Prune,
	WeightSharing: ShareWeights,
	LayerDropping: DropLayers,
	Fusion:        Fuse,
}

/*
Lookup returns transform function by its identifier
*/
func Lookup(id ID) (Func, bool) {
	f, ok := registry[id]
	return f, ok
}
