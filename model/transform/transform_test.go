package transform_test

import (
	"math"
	"math/rand"
	"testing"

	"go-ml.dev/pkg/camp/model"
	"go-ml.dev/pkg/camp/model/transform"
	"golang.org/x/xerrors"
	"gotest.tools/v3/assert"
)

func randomLinear(t *testing.T, rng *rand.Rand, in, out int) *model.Linear {
	w := make([]float64, in*out)
	for i := range w {
		w[i] = rng.NormFloat64()
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = rng.NormFloat64()
	}
	l, err := model.NewLinear(in, out, w, b)
	assert.NilError(t, err)
	return l
}

// iris-like network: Linear(4,16) SiLU Linear(16,64) SiLU Linear(64,16) SiLU Linear(16,3)
func irisNet(t *testing.T, seed int64) *model.Sequential {
	rng := rand.New(rand.NewSource(seed))
	return model.MustSequential(
		randomLinear(t, rng, 4, 16),
		&model.Activation{Kind: model.SiLU},
		randomLinear(t, rng, 16, 64),
		&model.Activation{Kind: model.SiLU},
		randomLinear(t, rng, 64, 16),
		&model.Activation{Kind: model.SiLU},
		randomLinear(t, rng, 16, 3),
	)
}

func irisData(seed int64, n int) *model.Dataset {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, n*4)
	y := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64() * 5
	}
	for i := range y {
		y[i] = float64(rng.Intn(3))
	}
	return model.NewDataset(n, 4, x, y)
}

func weights(net *model.Sequential) [][]float64 {
	var r [][]float64
	for _, l := range net.Layers() {
		if q, ok := l.(*model.Linear); ok {
			r = append(r, append(q.Weights(), q.B...))
		}
	}
	return r
}

func env() transform.Env {
	return transform.Env{Params: model.Params{}}
}

func Test_NoMutation(t *testing.T) {
	data := irisData(1, 10)
	for _, id := range []transform.ID{transform.Quantization, transform.Pruning, transform.WeightSharing, transform.LayerDropping, transform.Fusion} {
		net := irisNet(t, 42)
		before := weights(net)
		f, ok := transform.Lookup(id)
		assert.Assert(t, ok)
		out, err := f(env(), net, data, model.Classification)
		assert.NilError(t, err, id.String())
		assert.Assert(t, out != model.Network(net))
		assert.DeepEqual(t, weights(net), before)
	}
}

func Test_Quantize(t *testing.T) {
	net := irisNet(t, 1).To(model.Accelerator)
	out, err := transform.Quantize(env(), net, irisData(1, 5), model.Classification)
	assert.NilError(t, err)
	assert.Equal(t, out.Device(), model.Host)
	assert.Equal(t, net.Device(), model.Accelerator)
	s := out.(*model.Sequential)
	for _, l := range s.Layers() {
		_, linear := l.(*model.Linear)
		assert.Assert(t, !linear)
	}
	_, ok := s.Layers()[0].(*model.QuantizedLinear)
	assert.Assert(t, ok)
}

func Test_QuantizeKeepsPredictions(t *testing.T) {
	net := irisNet(t, 3)
	data := irisData(3, 20)
	out, err := transform.Quantize(env(), net, data, model.Classification)
	assert.NilError(t, err)
	a, err := net.Forward(data.X)
	assert.NilError(t, err)
	b, err := out.Forward(data.X)
	assert.NilError(t, err)
	var scale float64
	for _, v := range a.Data {
		scale = math.Max(scale, math.Abs(v))
	}
	for i := range a.Data {
		assert.Assert(t, math.Abs(a.Data[i]-b.Data[i]) < 0.1*scale, "%v vs %v", a.Data[i], b.Data[i])
	}
}

func Test_Prune100(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := make([]float64, 100)
	for i := range w {
		w[i] = float64(i+1) * 0.01
		if rng.Intn(2) == 0 {
			w[i] = -w[i]
		}
	}
	rng.Shuffle(len(w), func(i, j int) { w[i], w[j] = w[j], w[i] })
	l, err := model.NewLinear(10, 10, w, nil)
	assert.NilError(t, err)
	out, err := transform.Prune(env(), model.MustSequential(l), nil, model.Regression)
	assert.NilError(t, err)
	pruned := out.(*model.Sequential).Layers()[0].(*model.Linear).Weights()
	zeros := 0
	for i, x := range pruned {
		if x == 0 {
			zeros++
			assert.Assert(t, math.Abs(w[i]) <= 0.30+1e-9)
		} else {
			assert.Equal(t, x, w[i])
			assert.Assert(t, math.Abs(w[i]) > 0.30+1e-9)
		}
	}
	assert.Equal(t, zeros, 30)
}

func Test_PruneTies(t *testing.T) {
	l, err := model.NewLinear(5, 2, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, nil)
	assert.NilError(t, err)
	e := transform.Env{Params: model.Params{transform.ParamPruneAmount: 0.3}}
	out, err := transform.Prune(e, model.MustSequential(l), nil, model.Classification)
	assert.NilError(t, err)
	w := out.(*model.Sequential).Layers()[0].(*model.Linear).Weights()
	assert.DeepEqual(t, w, []float64{0, 0, 0, 1, 1, 1, 1, 1, 1, 1})
	_, err = transform.Prune(transform.Env{Params: model.Params{transform.ParamPruneAmount: 1.5}}, model.MustSequential(l), nil, model.Classification)
	assert.ErrorContains(t, err, "pruning amount")
}

func Test_PruneCount(t *testing.T) {
	assert.Equal(t, transform.PruneCount(100, 0.3), 30)
	assert.Equal(t, transform.PruneCount(10, 0.3), 3)
	assert.Equal(t, transform.PruneCount(0, 0.3), 0)
}

func Test_ShareWeights(t *testing.T) {
	net := irisNet(t, 5)
	out, err := transform.ShareWeights(env(), net, nil, model.Classification)
	assert.NilError(t, err)
	orig := net.Layers()
	for i, l := range out.(*model.Sequential).Layers() {
		q, ok := l.(*model.Linear)
		if !ok {
			continue
		}
		w0 := orig[i].(*model.Linear).Weights()
		centers := transform.Centers(w0, transform.DefaultClusters)
		assert.Equal(t, len(centers), 16)
		set := map[float64]bool{}
		for _, c := range centers {
			set[c] = true
		}
		hasMin, hasMax := false, false
		for _, x := range q.Weights() {
			assert.Assert(t, set[x], "%v is not a center", x)
			hasMin = hasMin || x == centers[0]
			hasMax = hasMax || x == centers[15]
		}
		assert.Assert(t, hasMin && hasMax)
		lo, hi := w0[0], w0[0]
		for _, x := range w0 {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
		assert.Equal(t, centers[0], lo)
		assert.Equal(t, centers[15], hi)
	}
}

func Test_ShareConstant(t *testing.T) {
	l, err := model.NewLinear(2, 2, []float64{0.5, 0.5, 0.5, 0.5}, []float64{1, 2})
	assert.NilError(t, err)
	e := transform.Env{Params: model.Params{transform.ParamClusters: 4}}
	out, err := transform.ShareWeights(e, model.MustSequential(l), nil, model.Classification)
	assert.NilError(t, err)
	assert.DeepEqual(t, out.(*model.Sequential).Layers()[0].(*model.Linear).Weights(), []float64{0.5, 0.5, 0.5, 0.5})
}

func Test_ShareTieGoesToLowerCenter(t *testing.T) {
	// centers for K=2 are {0, 1}, 0.5 is in the middle
	l, err := model.NewLinear(3, 1, []float64{0, 0.5, 1}, nil)
	assert.NilError(t, err)
	e := transform.Env{Params: model.Params{transform.ParamClusters: 2}}
	out, err := transform.ShareWeights(e, model.MustSequential(l), nil, model.Classification)
	assert.NilError(t, err)
	assert.DeepEqual(t, out.(*model.Sequential).Layers()[0].(*model.Linear).Weights(), []float64{0, 0, 1})
}

func Test_KeptIndices(t *testing.T) {
	assert.DeepEqual(t, transform.KeptIndices(7), []int{0, 2, 4, 6})
	assert.DeepEqual(t, transform.KeptIndices(4), []int{0, 2, 3})
	assert.DeepEqual(t, transform.KeptIndices(3), []int{0, 2})
	assert.DeepEqual(t, transform.KeptIndices(2), []int{0, 1})
}

func Test_DropLayers(t *testing.T) {
	net := irisNet(t, 9)
	out, err := transform.DropLayers(env(), net, nil, model.Classification)
	assert.NilError(t, err)
	s := out.(*model.Sequential)
	assert.Equal(t, s.Len(), 4)
	orig := net.Layers()
	for i, j := range []int{0, 2, 4, 6} {
		assert.Equal(t, s.Layers()[i].String(), orig[j].String())
	}
	_, err = s.Forward(irisData(9, 3).X)
	assert.NilError(t, err)
}

func Test_DropShallow(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := model.MustSequential(randomLinear(t, rng, 2, 3), &model.Activation{Kind: model.Tanh})
	out, err := transform.DropLayers(env(), net, nil, model.Classification)
	assert.NilError(t, err)
	assert.Equal(t, out.(*model.Sequential).Len(), 2)
	assert.DeepEqual(t, weights(out.(*model.Sequential)), weights(net))
}

func Test_DropRejectsTraced(t *testing.T) {
	data := irisData(2, 4)
	traced, err := transform.Fuse(env(), irisNet(t, 2), data, model.Classification)
	assert.NilError(t, err)
	_, err = transform.DropLayers(env(), traced, data, model.Classification)
	assert.Assert(t, xerrors.Is(err, model.ErrStructural))
}

func Test_DropBreaksWidths(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := model.MustSequential(
		randomLinear(t, rng, 2, 3),
		randomLinear(t, rng, 3, 4),
		randomLinear(t, rng, 4, 5),
		randomLinear(t, rng, 5, 6),
	)
	_, err := transform.DropLayers(env(), net, nil, model.Classification)
	assert.Assert(t, xerrors.Is(err, model.ErrShape))
}

func Test_Fuse(t *testing.T) {
	data := irisData(4, 6)
	net := irisNet(t, 4)
	out, err := transform.Fuse(env(), net, data, model.Classification)
	assert.NilError(t, err)
	tr := out.(*model.Traced)
	assert.Equal(t, tr.Len(), 4)
	assert.Equal(t, tr.InWidth(), 4)
	a, err := net.Forward(data.X)
	assert.NilError(t, err)
	b, err := tr.Forward(data.X)
	assert.NilError(t, err)
	assert.DeepEqual(t, a.Shape, b.Shape)
	for i := range a.Data {
		assert.Assert(t, math.Abs(a.Data[i]-b.Data[i]) < 1e-9)
	}
	_, err = transform.Fuse(env(), net, model.NewDataset(0, 4, []float64{}, []float64{}), model.Classification)
	assert.Assert(t, xerrors.Is(err, model.ErrShape))
}

func Test_FusedPruneIsCopy(t *testing.T) {
	data := irisData(4, 6)
	traced, err := transform.Fuse(env(), irisNet(t, 4), data, model.Classification)
	assert.NilError(t, err)
	out, err := transform.Prune(env(), traced, data, model.Classification)
	assert.NilError(t, err)
	assert.Equal(t, out.Kind(), model.KindTraced)
	a, _ := traced.Forward(data.X)
	b, _ := out.Forward(data.X)
	assert.DeepEqual(t, a, b)
}
