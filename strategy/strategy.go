/*
Package strategy maps strategy indices to ordered transform sequences and
applies them to a network
*/
package strategy

import (
	"go-ml.dev/pkg/camp/model"
	"go-ml.dev/pkg/camp/model/transform"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

/*
Index is the strategy chosen by the policy classifier
*/
type Index int

/*
Count is the number of known strategies
*/
const Count = 8

// Indices 5 and 6 chain a transform after Fusion. Layer dropping rejects
// the traced representation, so strategy 5 always fails, and pruning has
// no linear layers to prune in it.
var table = [Count][]transform.ID{
	{transform.Quantization},
	{transform.Quantization, transform.LayerDropping},
	{transform.Quantization, transform.Fusion},
	{transform.Quantization, transform.WeightSharing},
	{transform.Fusion},
	{transform.Fusion, transform.LayerDropping},
	{transform.Fusion, transform.Pruning},
	{transform.WeightSharing, transform.Pruning},
}

func (i Index) Known() bool {
	return i >= 0 && i < Count
}

/*
Sequence returns transforms of the strategy in application order,
false for unknown strategies
*/
func Sequence(i Index) ([]transform.ID, bool) {
	if !i.Known() {
		return nil, false
	}
	return append([]transform.ID(nil), table[i]...), true
}

/*
Dispatch applies the strategy transforms in order, every step gets output of
the previous one. Unknown strategies leave the network uncompressed.
The first failing step aborts the sequence.
*/
func Dispatch(env transform.Env, i Index, net model.Network, data *model.Dataset, criterion model.Criterion) (model.Network, error) {
	log := env.Logger
	if log == nil {
		log = zap.NewNop()
	}
	seq, ok := Sequence(i)
	if !ok {
		log.Warn("Unknown strategy index, leaving model uncompressed.", zap.Int("strategy", int(i)))
		return net, nil
	}
	for step, id := range seq {
		f, ok := transform.Lookup(id)
		if !ok {
			return nil, xerrors.Errorf("strategy %d step %d: unknown transform %v", int(i), step, id)
		}
		log.Debug("applying transform", zap.Int("strategy", int(i)), zap.Int("step", step), zap.Stringer("transform", id))
		out, err := f(env, net, data, criterion)
		if err != nil {
			return nil, xerrors.Errorf("strategy %d step %d (%v): %w", int(i), step, id, err)
		}
		net = out
	}
	return net, nil
}
