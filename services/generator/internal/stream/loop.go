// Package stream runs the real-time delivery loop: validate the destination,
// then generate, publish and pause until stopped or a fatal error occurs.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sakashimaa/sales-pipeline/pkg/domain"
	"github.com/sakashimaa/sales-pipeline/pkg/mylogger"
	"github.com/sakashimaa/sales-pipeline/pkg/utils"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/generator"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrAlreadyStarted   = errors.New("stream loop already started")
	ErrValidationFailed = errors.New("destination validation failed")
)

type EventSource interface {
	Generate(mode generator.Mode) domain.SalesEvent
}

type Recorder interface {
	EventPublished()
	PublishFailed(kind string)
	LoopState(state int)
}

type Options struct {
	Pacer Pacer
	// Cooldown is the pause after a transient failure. It should exceed
	// Pacer.Max().
	Cooldown time.Duration
	// MaxEvents stops the loop cleanly after that many successful
	// publishes. Zero means unbounded.
	MaxEvents int
	Breaker   utils.BreakerSettings
	// OnTransition runs synchronously on every state change.
	OnTransition func(from, to State)
}

type Stats struct {
	Published int64
	Failed    int64
}

type Loop struct {
	dest     destination.Destination
	source   EventSource
	opts     Options
	logger   *zap.Logger
	recorder Recorder
	cb       *gobreaker.CircuitBreaker
	tracer   trace.Tracer
	sleep    func(ctx context.Context, d time.Duration) bool

	started   atomic.Bool
	state     atomic.Int32
	published atomic.Int64
	failed    atomic.Int64
}

func NewLoop(dest destination.Destination, source EventSource, opts Options, logger *zap.Logger, recorder Recorder) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if opts.Pacer == nil {
		opts.Pacer = FixedPacer{Interval: time.Second}
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = dest.Name()
	}
	opts.Breaker.IsSuccessful = func(err error) bool {
		return err == nil || destination.IsFatal(err)
	}

	return &Loop{
		dest:     dest,
		source:   source,
		opts:     opts,
		logger:   logger,
		recorder: recorder,
		cb:       utils.NewCircuitBreaker(opts.Breaker, logger),
		tracer:   otel.Tracer("generator/stream"),
		sleep:    sleepContext,
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) Stats() Stats {
	return Stats{
		Published: l.published.Load(),
		Failed:    l.failed.Load(),
	}
}

func (l *Loop) DestinationName() string {
	return l.dest.Name()
}

// Run blocks until the loop stops. It returns nil when ctx is cancelled or
// MaxEvents is reached and the fatal error otherwise. Cancellation is only
// observed between iterations and during pauses; a publish in flight always
// completes.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	l.recorder.LoopState(int(StateConnecting))

	mylogger.Info(
		ctx,
		l.logger,
		"Starting real-time data stream",
		zap.String("destination", l.dest.Name()),
	)

	l.transition(ctx, StateValidating)
	if err := l.dest.Validate(ctx); err != nil {
		if ctx.Err() != nil {
			l.transition(ctx, StateStopped)
			return nil
		}

		return l.fail(ctx, l.validationError(err))
	}

	mylogger.Info(ctx, l.logger, "Connected to destination", zap.String("destination", l.dest.Name()))
	l.transition(ctx, StateRunning)

	for ctx.Err() == nil {
		pause, err := l.iterate(ctx)
		if err != nil {
			return l.fail(ctx, err)
		}

		if l.opts.MaxEvents > 0 && l.published.Load() >= int64(l.opts.MaxEvents) {
			break
		}

		if !l.sleep(ctx, pause) {
			break
		}
	}

	l.transition(ctx, StateStopped)

	stats := l.Stats()
	mylogger.Info(
		ctx,
		l.logger,
		"Stream stopped",
		zap.Int64("published", stats.Published),
		zap.Int64("failed", stats.Failed),
	)

	return nil
}

// iterate generates and publishes one event and returns the pause before the
// next one. Only fatal errors are returned.
func (l *Loop) iterate(ctx context.Context) (time.Duration, error) {
	ctx, span := l.tracer.Start(ctx, "StreamLoop.publish")
	defer span.End()

	event := l.source.Generate(generator.ModeStreaming)
	span.SetAttributes(attribute.String("order_id", event.OrderID))

	payload, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error encoding event %s: %w", event.OrderID, err)
	}

	sendCtx := context.WithoutCancel(ctx)
	receipt, err := utils.ExecuteWithBreaker(l.cb, func() (destination.Receipt, error) {
		return l.dest.Publish(sendCtx, event.OrderID, payload)
	})
	if err != nil {
		span.RecordError(err)
		l.failed.Add(1)

		kind := destination.Classify(err)
		l.recorder.PublishFailed(kind.String())

		if kind != destination.KindTransient {
			return 0, l.deliveryError(kind, err)
		}

		mylogger.Warn(
			ctx,
			l.logger,
			"An error occurred while sending data, cooling down",
			zap.String("order_id", event.OrderID),
			zap.Duration("cooldown", l.opts.Cooldown),
			zap.Error(err),
		)

		return l.opts.Cooldown, nil
	}

	l.published.Add(1)
	l.recorder.EventPublished()

	span.SetAttributes(
		attribute.String("partition", receipt.Partition),
		attribute.String("sequence", receipt.Sequence),
	)

	mylogger.Info(
		ctx,
		l.logger,
		"Sent record",
		zap.String("order_id", event.OrderID),
		zap.String("product", event.ProductName),
		zap.String("partition", receipt.Partition),
	)

	return l.opts.Pacer.Next(), nil
}

func (l *Loop) transition(ctx context.Context, to State) {
	from := State(l.state.Swap(int32(to)))
	l.recorder.LoopState(int(to))

	mylogger.Debug(
		ctx,
		l.logger,
		"Stream loop state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)

	if l.opts.OnTransition != nil {
		l.opts.OnTransition(from, to)
	}
}

func (l *Loop) fail(ctx context.Context, err error) error {
	l.transition(ctx, StateFailed)

	mylogger.Error(
		ctx,
		l.logger,
		"Stream loop failed",
		zap.String("destination", l.dest.Name()),
		zap.Error(err),
	)

	return err
}

func (l *Loop) validationError(err error) error {
	switch destination.Classify(err) {
	case destination.KindNotFound:
		return fmt.Errorf("destination %s not found, create it or check the name and region: %w", l.dest.Name(), err)
	case destination.KindUnauthorized:
		return fmt.Errorf("not authorized to use %s, check that credentials are configured for this region: %w", l.dest.Name(), err)
	default:
		return fmt.Errorf("%w: could not reach %s: %w", ErrValidationFailed, l.dest.Name(), err)
	}
}

func (l *Loop) deliveryError(kind destination.Kind, err error) error {
	if kind == destination.KindNotFound {
		return fmt.Errorf("destination %s disappeared while streaming: %w", l.dest.Name(), err)
	}

	return fmt.Errorf("not authorized to publish to %s: %w", l.dest.Name(), err)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type noopRecorder struct{}

func (noopRecorder) EventPublished() {}

func (noopRecorder) PublishFailed(string) {}

func (noopRecorder) LoopState(int) {}
