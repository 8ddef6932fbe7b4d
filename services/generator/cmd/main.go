package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/sales-pipeline/pkg/config"
	"github.com/sakashimaa/sales-pipeline/pkg/utils"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/app"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using system envs")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitUsage
	}

	mode, err := parseArgs(args, cfg, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return exitUsage
	}

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:   cfg.Log.Level,
		Env:     cfg.Env,
		Service: cfg.Tracing.ServiceName,
	})
	if err != nil {
		log.Printf("Error creating logger: %v", err)
		return exitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := utils.InitTracer(ctx, utils.TracerConfig{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			Env:         cfg.Env,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			logger.Error("Error init tracer", zap.Error(err))
			return exitFailure
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Error stopping telemetry", zap.Error(err))
			}
		}()
	}

	a := app.New(cfg, logger)

	switch mode {
	case modeBatch:
		written, err := a.RunBatch(ctx)
		if err != nil {
			logger.Error("Batch export failed", zap.Int("rows_written", written), zap.Error(err))
			return exitFailure
		}

		logger.Info("Successfully created batch file",
			zap.String("filename", cfg.Batch.Filename),
			zap.Int("records", written),
		)
	case modeStream:
		logger.Info("Press Ctrl+C to stop.")

		if err := a.RunStream(ctx); err != nil {
			logger.Error("Stream failed", zap.Error(err))
			return exitFailure
		}
	}

	return exitOK
}
