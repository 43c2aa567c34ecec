package transform

import (
	"go-ml.dev/pkg/camp/model"
	"go.uber.org/zap"
)

/*
Quantize converts weights of every linear layer to int8 with a computed scale.
The result always lives on host, integer kernels do not run on accelerator.
*/
func Quantize(env Env, net model.Network, data *model.Dataset, criterion model.Criterion) (model.Network, error) {
	log := env.logger()
	switch n := net.(type) {
	case *model.Sequential:
		layers := n.Layers()
		count := 0
		for i, l := range layers {
			if q, ok := l.(*model.Linear); ok {
				layers[i] = model.QuantizeLinear(q)
				count++
			}
		}
		m, err := model.NewSequential(layers...)
		if err != nil {
			return nil, err
		}
		log.Info("[Dynamic Quantization]", zap.Int("layers", count))
		return m, nil
	}
	log.Info("[Dynamic Quantization] no linear layers exposed", zap.Stringer("kind", net.Kind()))
	return model.Place(net, model.Host), nil
}
