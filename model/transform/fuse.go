package transform

import (
	"go-ml.dev/pkg/camp/model"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

/*
Fuse traces the network on the first example of the data and returns the
fixed topology representation. A traced network is returned as a copy.
*/
func Fuse(env Env, net model.Network, data *model.Dataset, criterion model.Criterion) (model.Network, error) {
	log := env.logger()
	device := model.ResolveDevice(net, data)
	switch n := net.(type) {
	case *model.Traced:
		log.Info("[Fusion] already traced")
		return n.To(device), nil
	case *model.Sequential:
		if data == nil || data.Len() == 0 {
			return nil, xerrors.Errorf("fusion needs an example input: %w", model.ErrShape)
		}
		t, err := model.Trace(n.To(device), data.Head(1))
		if err != nil {
			return nil, err
		}
		log.Info("[Fusion]", zap.Strings("ops", t.Graph()))
		return t, nil
	}
	return nil, xerrors.Errorf("can't trace network %T: %w", net, model.ErrStructural)
}
