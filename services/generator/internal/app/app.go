// Package app wires configuration into the batch exporter and the stream
// delivery loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/sales-pipeline/pkg/config"
	"github.com/sakashimaa/sales-pipeline/pkg/mylogger"
	"github.com/sakashimaa/sales-pipeline/pkg/utils"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/batch"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination/kafka"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination/kinesis"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination/memory"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination/rabbitmq"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/generator"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/metrics"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/stream"
	transport "github.com/sakashimaa/sales-pipeline/services/generator/internal/transport/http"
	"go.uber.org/zap"
)

type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	source   *generator.Generator
}

func New(cfg *config.Config, logger *zap.Logger) *App {
	reg := metrics.NewRegistry()

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
		source:   generator.NewDefault(),
	}
}

// RunBatch writes cfg.Batch.Records events to cfg.Batch.Filename.
func (a *App) RunBatch(ctx context.Context) (int, error) {
	exporter := batch.NewExporter(a.source, a.cfg.Batch.ProgressEvery, a.metrics, a.logger)

	return exporter.Export(ctx, a.cfg.Batch.Filename, a.cfg.Batch.Records)
}

// RunStream validates the destination and streams until ctx is cancelled or
// a fatal error occurs.
func (a *App) RunStream(ctx context.Context) error {
	dest, err := OpenDestination(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dest.Close(); err != nil {
			mylogger.Warn(ctx, a.logger, "Error closing destination", zap.Error(err))
		}
	}()

	pacer, err := NewPacer(a.cfg.Stream)
	if err != nil {
		return err
	}

	loop := stream.NewLoop(dest, a.source, stream.Options{
		Pacer:     pacer,
		Cooldown:  a.cfg.Stream.Cooldown,
		MaxEvents: a.cfg.Stream.MaxEvents,
		Breaker: utils.BreakerSettings{
			Name:        dest.Name(),
			MaxRequests: a.cfg.Stream.Breaker.MaxRequests,
			Interval:    a.cfg.Stream.Breaker.Interval,
			Timeout:     a.cfg.Stream.Breaker.Timeout,
		},
	}, a.logger, a.metrics)

	if a.cfg.HTTP.Enabled {
		stop, err := a.serveStatus(ctx, loop)
		if err != nil {
			return err
		}
		defer stop()
	}

	return loop.Run(ctx)
}

// serveStatus binds the status port before returning, so stop always finds a
// running server to shut down. stop returns once the server goroutine exits.
func (a *App) serveStatus(ctx context.Context, loop *stream.Loop) (func(), error) {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Port)
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", a.cfg.HTTP.Port, err)
	}

	server := transport.NewApp(loop, a.registry)
	served := make(chan struct{})

	go func() {
		defer close(served)

		mylogger.Info(ctx, a.logger, "Status server listening", zap.String("addr", ln.Addr().String()))
		if err := server.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			mylogger.Error(ctx, a.logger, "Status server failed", zap.Error(err))
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.Timeout)
		defer cancel()

		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			mylogger.Warn(ctx, a.logger, "Error shutting down status server", zap.Error(err))
		}
		// unblocks a Listener that had not started serving before shutdown
		_ = ln.Close()

		<-served
	}

	return stop, nil
}

// OpenDestination builds the configured driver. No driver contacts the
// remote side here.
func OpenDestination(ctx context.Context, cfg *config.Config) (destination.Destination, error) {
	switch cfg.Stream.Driver {
	case config.DriverKinesis:
		s, err := kinesis.New(ctx, cfg.Stream.Name, cfg.Stream.Region)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverKafka:
		return kafka.New(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Stream.Name), nil
	case config.DriverRabbitMQ:
		return rabbitmq.New(cfg.RabbitMQ.URL, cfg.Stream.Name), nil
	case config.DriverMemory:
		return memory.New(cfg.Stream.Name), nil
	default:
		return nil, fmt.Errorf("%w: unknown stream driver %q", config.ErrInvalidConfig, cfg.Stream.Driver)
	}
}

func NewPacer(cfg config.Stream) (stream.Pacer, error) {
	switch cfg.Pacing {
	case config.PacingFixed:
		return stream.FixedPacer{Interval: cfg.Interval}, nil
	case config.PacingRandom:
		seed := uint64(time.Now().UnixNano())
		p, err := stream.NewJitterPacer(cfg.MinInterval, cfg.MaxInterval, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown pacing %q", config.ErrInvalidConfig, cfg.Pacing)
	}
}
