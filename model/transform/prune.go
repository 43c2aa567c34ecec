package transform

import (
	"math"
	"sort"

	"go-ml.dev/pkg/camp/model"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

/*
Prune zeroes the fraction of smallest by magnitude weights in every linear
layer independently. Equal magnitudes are pruned in the order of their
position in the row-major weight matrix.
*/
func Prune(env Env, net model.Network, data *model.Dataset, criterion model.Criterion) (model.Network, error) {
	log := env.logger()
	amount := env.Params.Get(ParamPruneAmount, DefaultPruneAmount)
	if amount < 0 || amount > 1 || math.IsNaN(amount) {
		return nil, xerrors.Errorf("pruning amount must be in [0,1], got %v", amount)
	}
	device := model.ResolveDevice(net, data)
	s, ok := net.(*model.Sequential)
	if !ok {
		log.Info("[Unstructured Pruning] no linear layers exposed", zap.Stringer("kind", net.Kind()))
		return model.Place(net, device), nil
	}
	layers := s.Layers()
	for i, l := range layers {
		if q, ok := l.(*model.Linear); ok {
			layers[i] = pruneLinear(q, amount)
		}
	}
	m, err := model.NewSequential(layers...)
	if err != nil {
		return nil, err
	}
	log.Info("[Unstructured Pruning]", zap.Float64("amount", amount))
	return m.To(device), nil
}

/*
PruneCount returns how many of n weights are pruned with the amount
*/
func PruneCount(n int, amount float64) int {
	return int(math.Round(amount * float64(n)))
}

func pruneLinear(l *model.Linear, amount float64) *model.Linear {
	w := l.Weights()
	k := PruneCount(len(w), amount)
	if k == 0 {
		return l
	}
	idx := make([]int, len(w))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(w[idx[a]]) < math.Abs(w[idx[b]])
	})
	for _, i := range idx[:k] {
		w[i] = 0
	}
	r, c := l.W.Dims()
	return &model.Linear{W: mat.NewDense(r, c, w), B: l.B}
}
