// Package memory is an in-process destination. It backs the "memory"
// driver for dry runs and lets tests script failures.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
)

type Message struct {
	Key     string
	Payload []byte
}

type Destination struct {
	mu        sync.Mutex
	name      string
	exists    bool
	validated int
	attempts  int
	failures  []error
	published []Message
	onPublish func(Message)
	closed    bool
}

func New(name string) *Destination {
	return &Destination{name: name, exists: true}
}

func (d *Destination) Name() string {
	return d.name
}

// SetExists toggles whether the destination is visible to Validate and
// Publish. A missing destination fails both with ErrDestinationNotFound.
func (d *Destination) SetExists(exists bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.exists = exists
}

// FailNext queues errors returned by the next Publish calls, in order. A nil
// entry lets that call succeed.
func (d *Destination) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failures = append(d.failures, errs...)
}

// OnPublish registers fn to run after every successful publish.
func (d *Destination) OnPublish(fn func(Message)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onPublish = fn
}

func (d *Destination) Validate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.validated++
	if !d.exists {
		return fmt.Errorf("%w: %q", destination.ErrDestinationNotFound, d.name)
	}

	return ctx.Err()
}

func (d *Destination) Publish(_ context.Context, key string, payload []byte) (destination.Receipt, error) {
	d.mu.Lock()

	d.attempts++
	if !d.exists {
		d.mu.Unlock()
		return destination.Receipt{}, fmt.Errorf("%w: %q", destination.ErrDestinationNotFound, d.name)
	}

	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			d.mu.Unlock()
			return destination.Receipt{}, err
		}
	}

	msg := Message{Key: key, Payload: append([]byte(nil), payload...)}
	d.published = append(d.published, msg)
	seq := len(d.published)
	hook := d.onPublish
	d.mu.Unlock()

	if hook != nil {
		hook(msg)
	}

	return destination.Receipt{Partition: "0", Sequence: strconv.Itoa(seq)}, nil
}

func (d *Destination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

func (d *Destination) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]Message(nil), d.published...)
}

func (d *Destination) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.attempts
}

func (d *Destination) ValidateCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.validated
}

func (d *Destination) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}
