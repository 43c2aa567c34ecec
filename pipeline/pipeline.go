/*
Package pipeline runs one compression of a target model: classify the
deployment context, apply the chosen strategy, evaluate and persist
*/
package pipeline

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"go-ml.dev/pkg/camp/config"
	"go-ml.dev/pkg/camp/eval"
	"go-ml.dev/pkg/camp/fu"
	"go-ml.dev/pkg/camp/model"
	"go-ml.dev/pkg/camp/model/transform"
	"go-ml.dev/pkg/camp/policy"
	"go-ml.dev/pkg/camp/report"
	"go-ml.dev/pkg/camp/strategy"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Output artifact names by representation kind
const (
	StandardOutput = "compressed_model" + model.StandardExt
	TracedOutput   = "compressed_model" + model.TracedExt
)

/*
Env is the run context threaded through every step
*/
type Env struct {
	Logger      *zap.Logger
	Device      model.Device // where the target and policy models are placed
	PolicyPath  string       // overrides policy_model of the config
	OutDir      string       // directory of the compressed artifact, working directory by default
	HistoryPath string       // sqlite run history, skipped when empty
	MetricsPath string       // prometheus textfile, skipped when empty
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

/*
OutputPath returns the artifact path for the network representation
*/
func (e Env) OutputPath(net model.Network) string {
	name := StandardOutput
	if net.Kind() == model.KindTraced {
		name = TracedOutput
	}
	return filepath.Join(e.OutDir, name)
}

/*
Run executes the compression described by the configuration artifact
and records the output path back into it
*/
func Run(ctx context.Context, env Env, configPath string) (*report.Run, error) {
	log := env.logger()
	started := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	policyPath := fu.ModelPath(cfg.PolicyModel)
	if env.PolicyPath != "" {
		policyPath = env.PolicyPath
	}
	pnet, err := model.LoadFile(policyPath)
	if err != nil {
		return nil, err
	}
	classifier, err := policy.New(model.Place(pnet, env.Device))
	if err != nil {
		return nil, err
	}
	target, err := model.LoadFile(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	target = model.Place(target, env.Device)
	data, err := model.LoadCSV(cfg.DatasetPath, model.DefaultLabel)
	if err != nil {
		return nil, err
	}
	data.Device = env.Device
	log.Info("loaded",
		zap.String("model", cfg.ModelPath),
		zap.Int("params", target.ParamCount()),
		zap.String("dataset", cfg.DatasetPath),
		zap.Int("examples", data.Len()))

	pctx := cfg.Context()
	index, err := classifier.Classify(pctx)
	if err != nil {
		return nil, err
	}
	seq, _ := strategy.Sequence(index)
	log.Info("Chosen strategy", zap.Int("strategy", int(index)), zap.Stringers("transforms", seq))

	compressed, err := strategy.Dispatch(transform.Env{Logger: log, Params: cfg.Params()}, index, target, data, cfg.Criterion)
	if err != nil {
		return nil, err
	}

	loss, err := eval.Evaluate(compressed, data, cfg.Criterion)
	if err != nil {
		return nil, xerrors.Errorf("final evaluation: %w", err)
	}
	log.Info("Final compressed model performance", zap.Stringer("criterion", cfg.Criterion), zap.Float64("loss", loss))

	var h *report.History
	if env.HistoryPath != "" {
		if h, err = report.OpenHistory(env.HistoryPath); err != nil {
			return nil, err
		}
		defer h.Close()
	}

	names := make([]string, len(seq))
	for i, id := range seq {
		names[i] = id.String()
	}
	r := &report.Run{
		StartedAt:  started,
		ModelPath:  cfg.ModelPath,
		OutputPath: env.OutputPath(compressed),
		Platform:   int(pctx.Platform),
		Constraint: int(pctx.Constraint),
		Strategy:   int(index),
		Transforms: names,
		Kind:       compressed.Kind().String(),
		Loss:       loss,
	}
	if err = persist(ctx, log, env, h, configPath, compressed, r); err != nil {
		return nil, err
	}
	return r, nil
}

/*
persist writes the artifact, the config write-back, metrics and history.
Either all of them are written or, on the first failure, the ones already
written are rolled back.
*/
func persist(ctx context.Context, log *zap.Logger, env Env, h *report.History, configPath string, net model.Network, r *report.Run) (err error) {
	var undo []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			if e := undo[i](); e != nil {
				log.Warn("rollback of aborted run failed", zap.Error(e))
			}
		}
	}()

	staging := r.OutputPath + ".partial"
	undo = append(undo, func() error { return removeFile(staging) })
	if err = model.Save(net, iokit.File(staging)); err != nil {
		return err
	}
	if r.Sizes, err = report.Stat(r.ModelPath, staging); err != nil {
		return err
	}
	logSizes(log, r.Sizes)
	if err = os.Rename(staging, r.OutputPath); err != nil {
		return zorros.Wrapf(err, "failed to move artifact to %v: %v", r.OutputPath, err.Error())
	}
	undo = append(undo, func() error { return removeFile(r.OutputPath) })

	prev, err := ioutil.ReadFile(configPath)
	if err != nil {
		return zorros.Trace(err)
	}
	if err = config.SaveCompressed(configPath, r.OutputPath); err != nil {
		return err
	}
	undo = append(undo, func() error { return ioutil.WriteFile(configPath, prev, 0644) })

	if env.MetricsPath != "" {
		if err = report.WriteMetrics(env.MetricsPath, *r); err != nil {
			return err
		}
		undo = append(undo, func() error { return removeFile(env.MetricsPath) })
	}
	if h != nil {
		if err = h.Record(ctx, *r); err != nil {
			return err
		}
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func logSizes(log *zap.Logger, s report.Sizes) {
	log.Info("Compressed model size", zap.String("MB", fmtMB(s.Compressed)), zap.Int64("bytes", s.Compressed))
	log.Info("Original model size", zap.String("MB", fmtMB(s.Original)), zap.Int64("bytes", s.Original))
	if p, ok := s.Reduction(); ok {
		log.Info("Reduction", zap.String("percent", fmtPercent(p)))
	} else {
		log.Warn("Reduction is undefined, original model size is zero")
	}
}

func fmtMB(b int64) string {
	return fmt.Sprintf("%.4f", report.MB(b))
}

func fmtPercent(p float64) string {
	return fmt.Sprintf("%.8f%%", p)
}
