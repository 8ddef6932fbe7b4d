package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampler(t *testing.T) {
	require.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
