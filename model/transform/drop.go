package transform

import (
	"go-ml.dev/pkg/camp/model"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

/*
KeptIndices returns indices layer dropping keeps for n layers:
the first, the last and every interior layer at an even index
*/
func KeptIndices(n int) []int {
	if n <= 0 {
		return nil
	}
	keep := []int{0}
	for i := 2; i < n-1; i += 2 {
		keep = append(keep, i)
	}
	if n > 1 {
		keep = append(keep, n-1)
	}
	return keep
}

/*
DropLayers removes odd interior layers of a sequential network.
Networks of two or less layers are returned as a copy.
*/
func DropLayers(env Env, net model.Network, data *model.Dataset, criterion model.Criterion) (model.Network, error) {
	log := env.logger()
	s, ok := net.(*model.Sequential)
	if !ok {
		return nil, xerrors.Errorf("layer dropping expects a sequential network, got %v: %w", net.Kind(), model.ErrStructural)
	}
	device := model.ResolveDevice(net, data)
	n := s.Len()
	if n <= 2 {
		log.Info("[Layer Dropping] (nothing to drop, model too shallow)")
		return s.To(device), nil
	}
	layers := s.Layers()
	keep := KeptIndices(n)
	kept := make([]model.Layer, len(keep))
	for i, j := range keep {
		kept[i] = layers[j]
	}
	m, err := model.NewSequential(kept...)
	if err != nil {
		return nil, xerrors.Errorf("layer dropping with kept indices %v: %w", keep, err)
	}
	log.Info("[Layer Dropping]", zap.Ints("kept", keep))
	return m.To(device), nil
}
