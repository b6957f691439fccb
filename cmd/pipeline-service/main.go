package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/riskwise-ai/platform/pkg/common/config"
	"github.com/riskwise-ai/platform/pkg/common/kafka"
	"github.com/riskwise-ai/platform/pkg/common/logger"
	"github.com/riskwise-ai/platform/pkg/pipeline"
	"github.com/riskwise-ai/platform/pkg/standardize"
)

func main() {
	logger.Init()
	cfg := config.Load()

	mapping, err := standardize.LoadMapping(cfg.TableMapPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load table mapping")
	}

	reader := pipeline.NewCSVReader(filepath.Join(cfg.RawDataDir, cfg.SurveyCycle))
	outDir := filepath.Join(cfg.ProcessedDir, cfg.SurveyCycle)

	producer := kafka.NewProducer(cfg.PipelineEventsTopic)
	defer producer.Close()

	runner := pipeline.NewRunner(reader, mapping, outDir, producer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Log.Info("Interrupt received, cancelling pipeline run")
		cancel()
	}()

	logger.Log.WithFields(map[string]interface{}{
		"cycle":   cfg.SurveyCycle,
		"raw_dir": cfg.RawDataDir,
		"out_dir": outDir,
	}).Info("Pipeline run started")

	result, err := runner.Run(ctx)
	if err != nil {
		logger.Log.WithError(err).Fatal("Pipeline run failed")
	}

	logger.Log.WithFields(map[string]interface{}{
		"rows":     len(result.Cohort.Rows),
		"dropped":  result.DroppedRows,
		"features": len(result.FeatureList),
		"dataset":  result.DatasetPath,
	}).Info("Pipeline run complete")
}
