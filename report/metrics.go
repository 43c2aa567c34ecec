package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"go-ml.dev/pkg/zorros"
)

/*
WriteMetrics writes the run gauges in the prometheus text format,
the reduction gauge is omitted when it's undefined
*/
func WriteMetrics(path string, r Run) error {
	reg := prometheus.NewRegistry()
	gauge := func(name, help string, v float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"kind": r.Kind},
		})
		g.Set(v)
		reg.MustRegister(g)
	}
	gauge("camp_loss", "Loss of the compressed model on the evaluation data.", r.Loss)
	gauge("camp_strategy", "Compression strategy chosen by the policy network.", float64(r.Strategy))
	gauge("camp_original_bytes", "Size of the original model artifact.", float64(r.Original))
	gauge("camp_compressed_bytes", "Size of the compressed model artifact.", float64(r.Compressed))
	if p, ok := r.Reduction(); ok {
		gauge("camp_reduction_percent", "Size reduction of the compressed model artifact.", p)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return zorros.Wrapf(err, "failed to write metrics %v: %v", path, err.Error())
	}
	return nil
}
