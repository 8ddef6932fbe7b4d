// Package destination defines the event-stream endpoint the delivery loop
// publishes to and the error taxonomy every driver maps its failures onto.
package destination

import (
	"context"
	"errors"
)

var (
	// ErrDestinationNotFound means the named stream, topic or exchange does
	// not exist. Never retried.
	ErrDestinationNotFound = errors.New("destination not found")
	// ErrUnauthorized covers missing, expired or rejected credentials and
	// permission failures. Never retried.
	ErrUnauthorized = errors.New("destination authorization failed")
	// ErrTransient marks a delivery failure expected to clear on retry.
	ErrTransient = errors.New("transient delivery failure")
)

type Kind int

const (
	KindTransient Kind = iota
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "transient"
	}
}

// Receipt identifies where the destination stored a published message.
type Receipt struct {
	Partition string
	Sequence  string
}

// Destination is constructed without contacting the remote side; Validate
// is the first network call.
type Destination interface {
	Name() string
	Validate(ctx context.Context) error
	Publish(ctx context.Context, key string, payload []byte) (Receipt, error)
	Close() error
}

// Classify maps err onto the taxonomy. Anything that is not explicitly
// not-found or unauthorized is treated as transient.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrDestinationNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindTransient
	}
}

// IsFatal reports whether err must stop delivery.
func IsFatal(err error) bool {
	return err != nil && Classify(err) != KindTransient
}

// Await runs connect in the background and returns ctx's error as soon as
// ctx is done. connect still runs to completion; drivers guard their state
// with a mutex so Close waits for it.
func Await(ctx context.Context, connect func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- connect()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
