// Package rabbitmq publishes to a RabbitMQ topic exchange using the order
// id as routing key.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
)

const (
	dialTimeout = 30 * time.Second
	heartbeat   = 10 * time.Second
)

type Exchange struct {
	mu       sync.Mutex
	url      string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	closed   chan *amqp.Error
}

func New(url, exchange string) *Exchange {
	return &Exchange{
		url:      url,
		exchange: exchange,
	}
}

func (e *Exchange) Name() string {
	return "rabbitmq:" + e.exchange
}

func (e *Exchange) Validate(ctx context.Context) error {
	return destination.Await(ctx, func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		return e.connect(ctx)
	})
}

func (e *Exchange) Publish(ctx context.Context, key string, payload []byte) (destination.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkChannel(ctx); err != nil {
		return destination.Receipt{}, err
	}

	confirm, err := e.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		e.exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    key,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		e.reset()
		return destination.Receipt{}, e.mapError(err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return destination.Receipt{}, fmt.Errorf("%w: %w", destination.ErrTransient, err)
	}
	if !acked {
		// a nack caused by the channel closing carries the real reason
		if err := e.checkChannel(ctx); err != nil {
			return destination.Receipt{}, err
		}

		return destination.Receipt{}, fmt.Errorf("%w: broker nacked message %s", destination.ErrTransient, key)
	}

	return destination.Receipt{
		Partition: e.exchange,
		Sequence:  strconv.FormatUint(confirm.DeliveryTag, 10),
	}, nil
}

func (e *Exchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.reset()
}

// connect dials, opens a confirm-mode channel and passively declares the
// exchange so a missing exchange surfaces as not found.
func (e *Exchange) connect(ctx context.Context) error {
	if e.channel != nil && !e.channel.IsClosed() {
		return nil
	}
	e.reset()

	conn, err := amqp.DialConfig(e.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      dialContext(ctx),
	})
	if err != nil {
		return e.mapError(err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return e.mapError(err)
	}

	if err := channel.ExchangeDeclarePassive(e.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return e.mapError(err)
	}

	if err := channel.Confirm(false); err != nil {
		_ = conn.Close()
		return e.mapError(err)
	}

	e.conn = conn
	e.channel = channel
	e.closed = channel.NotifyClose(make(chan *amqp.Error, 1))

	return nil
}

// checkChannel reconnects after the broker closed the channel, which also
// re-checks that the exchange still exists.
func (e *Exchange) checkChannel(ctx context.Context) error {
	if e.channel == nil {
		return e.connect(ctx)
	}

	select {
	case amqpErr, ok := <-e.closed:
		e.reset()
		if ok && amqpErr != nil {
			if mapped := e.mapError(amqpErr); destination.IsFatal(mapped) {
				return mapped
			}
		}

		return e.connect(ctx)
	default:
		return nil
	}
}

// dialContext aborts the TCP dial with ctx and bounds the AMQP handshake;
// the client clears the deadline once the connection is open.
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		dialer := net.Dialer{Timeout: dialTimeout}

		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}

		return conn, nil
	}
}

func (e *Exchange) reset() error {
	var err error
	if e.conn != nil && !e.conn.IsClosed() {
		err = e.conn.Close()
	}

	e.conn = nil
	e.channel = nil
	e.closed = nil

	return err
}

func (e *Exchange) mapError(err error) error {
	if errors.Is(err, amqp.ErrSASL) || errors.Is(err, amqp.ErrCredentials) {
		return fmt.Errorf("%w: rabbitmq login refused", destination.ErrUnauthorized)
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.NotFound:
			return fmt.Errorf("%w: rabbitmq exchange %q", destination.ErrDestinationNotFound, e.exchange)
		case amqp.AccessRefused:
			return fmt.Errorf("%w: rabbitmq exchange %q: %s", destination.ErrUnauthorized, e.exchange, amqpErr.Reason)
		}
	}

	return fmt.Errorf("%w: %w", destination.ErrTransient, err)
}
