package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go-ml.dev/pkg/camp/model"
	"go-ml.dev/pkg/camp/pipeline"
	"go.uber.org/zap"
)

func main() {
	cfgPath := pflag.String("config", "config.json", "Path to the JSON configuration artifact")
	policyPath := pflag.String("policy", "", "Policy network artifact, overrides policy_model of the config")
	outDir := pflag.String("out-dir", ".", "Directory to write the compressed model into")
	history := pflag.String("history", "", "Sqlite database to record the run into")
	metrics := pflag.String("metrics", "", "Prometheus textfile to write run gauges into")
	device := pflag.String("device", "host", "Where models and data are placed: host or accelerator")
	verbose := pflag.BoolP("verbose", "v", false, "Log at debug level")
	pflag.Parse()

	zc := zap.NewDevelopmentConfig()
	if !*verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dev, err := model.ParseDevice(*device)
	if err != nil {
		logger.Fatal("invalid device", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := pipeline.Run(ctx, pipeline.Env{
		Logger:      logger,
		Device:      dev,
		PolicyPath:  *policyPath,
		OutDir:      *outDir,
		HistoryPath: *history,
		MetricsPath: *metrics,
	}, *cfgPath)
	if err != nil {
		logger.Fatal("compression failed", zap.Error(err))
	}
	logger.Info("done", zap.String("output", r.OutputPath), zap.Int("strategy", r.Strategy))
}
