package stream

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedPacer(t *testing.T) {
	p := FixedPacer{Interval: time.Second}

	require.Equal(t, time.Second, p.Next())
	require.Equal(t, time.Second, p.Max())
}

func TestJitterPacer_StaysInRange(t *testing.T) {
	minPause, maxPause := 500*time.Millisecond, 2*time.Second

	p, err := NewJitterPacer(minPause, maxPause, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	require.Equal(t, maxPause, p.Max())

	var varied bool
	first := p.Next()
	for range 1000 {
		d := p.Next()
		require.GreaterOrEqual(t, d, minPause)
		require.LessOrEqual(t, d, maxPause)
		if d != first {
			varied = true
		}
	}
	require.True(t, varied)
}

func TestJitterPacer_RejectsInvertedRange(t *testing.T) {
	_, err := NewJitterPacer(2*time.Second, time.Second, rand.New(rand.NewPCG(1, 1)))
	require.Error(t, err)

	p, err := NewJitterPacer(time.Second, time.Second, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	require.Equal(t, time.Second, p.Next())
}

func TestState_Terminal(t *testing.T) {
	require.True(t, StateStopped.Terminal())
	require.True(t, StateFailed.Terminal())
	require.False(t, StateRunning.Terminal())
	require.Equal(t, "VALIDATING", StateValidating.String())
}
