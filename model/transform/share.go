package transform

import (
	"go-ml.dev/pkg/camp/fu"
	"go-ml.dev/pkg/camp/model"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

/*
ShareWeights replaces every weight of a linear layer with the nearest of K
evenly spaced centers between the layer minimal and maximal weights
*/
func ShareWeights(env Env, net model.Network, data *model.Dataset, criterion model.Criterion) (model.Network, error) {
	log := env.logger()
	k := int(env.Params.Get(ParamClusters, DefaultClusters))
	if k < 1 {
		return nil, xerrors.Errorf("clusters count must be positive, got %d", k)
	}
	device := model.ResolveDevice(net, data)
	s, ok := net.(*model.Sequential)
	if !ok {
		log.Info("[Weight Sharing] no linear layers exposed", zap.Stringer("kind", net.Kind()))
		return model.Place(net, device), nil
	}
	layers := s.Layers()
	for i, l := range layers {
		if q, ok := l.(*model.Linear); ok {
			layers[i] = shareLinear(q, k)
		}
	}
	m, err := model.NewSequential(layers...)
	if err != nil {
		return nil, err
	}
	log.Info("[Weight Sharing]", zap.Int("K", k))
	return m.To(device), nil
}

/*
Centers returns cluster centers for the weights, nil when weights are empty or constant
*/
func Centers(w []float64, k int) []float64 {
	if len(w) == 0 {
		return nil
	}
	lo, hi := fu.Minmaxd(w)
	if lo == hi {
		return nil
	}
	return fu.Linspace(lo, hi, k)
}

func shareLinear(l *model.Linear, k int) *model.Linear {
	w := l.Weights()
	centers := Centers(w, k)
	if centers == nil {
		return l
	}
	for i, x := range w {
		w[i] = centers[fu.Nearest(centers, x)]
	}
	r, c := l.W.Dims()
	return &model.Linear{W: mat.NewDense(r, c, w), B: l.B}
}
