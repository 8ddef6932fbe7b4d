package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/sales-pipeline/pkg/config"
	"github.com/sakashimaa/sales-pipeline/pkg/db"
	"github.com/sakashimaa/sales-pipeline/pkg/utils"
	"github.com/sakashimaa/sales-pipeline/services/transform/internal/repository"
	"github.com/sakashimaa/sales-pipeline/services/transform/internal/service"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// parseArgs applies --landing and --output on top of cfg.
func parseArgs(args []string, cfg *config.Config, stderr io.Writer) error {
	fs := flag.NewFlagSet("transform", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.Transform.LandingDir, "landing", cfg.Transform.LandingDir, "Directory with landed CSV files")
	fs.StringVar(&cfg.Transform.OutputDir, "output", cfg.Transform.OutputDir, "Directory for Parquet output")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return cfg.Validate()
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

	if err := parseArgs(args, cfg, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitUsage
	}

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:   cfg.Log.Level,
		Env:     cfg.Env,
		Service: "sales-transform",
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
			ServiceName: "sales-transform",
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

	var repo repository.BookmarkRepository
	if cfg.Postgres.URL != "" {
		if err := db.MigrateUp(cfg.Transform.Migrations, cfg.Postgres.URL); err != nil {
			logger.Error("Error migrating bookmarks schema", zap.Error(err))
			return exitFailure
		}

		pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL)
		if err != nil {
			logger.Error("Error connecting to database", zap.Error(err))
			return exitFailure
		}
		defer pool.Close()

		repo = repository.NewBookmarkRepository(pool, logger)
	} else {
		logger.Warn("DB_URL is not set, bookmarks last for this run only")
		repo = repository.NewMemoryBookmarks()
	}

	svc := service.NewTransformService(repo, service.Options{
		LandingDir: cfg.Transform.LandingDir,
		OutputDir:  cfg.Transform.OutputDir,
	}, logger)

	summary, err := svc.Run(ctx)
	logger.Info("Transform finished",
		zap.Int("files", summary.Files),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("rows", summary.Rows),
		zap.Int("rejected", summary.Rejected),
	)
	if err != nil {
		logger.Error("Transform failed", zap.Error(err))
		return exitFailure
	}

	return exitOK
}
