package stream

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Pacer decides how long the loop waits after a successful publish.
type Pacer interface {
	Next() time.Duration
	Max() time.Duration
}

type FixedPacer struct {
	Interval time.Duration
}

func (p FixedPacer) Next() time.Duration {
	return p.Interval
}

func (p FixedPacer) Max() time.Duration {
	return p.Interval
}

// JitterPacer draws uniformly from [min, max].
type JitterPacer struct {
	min time.Duration
	max time.Duration
	rnd *rand.Rand
}

func NewJitterPacer(min, max time.Duration, rnd *rand.Rand) (*JitterPacer, error) {
	if min < 0 || max < min {
		return nil, fmt.Errorf("invalid pacing range [%s, %s]", min, max)
	}

	return &JitterPacer{min: min, max: max, rnd: rnd}, nil
}

func (p *JitterPacer) Next() time.Duration {
	return p.min + time.Duration(p.rnd.Int64N(int64(p.max-p.min)+1))
}

func (p *JitterPacer) Max() time.Duration {
	return p.max
}
