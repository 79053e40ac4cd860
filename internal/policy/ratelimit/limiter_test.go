package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowPerActor(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 2})

	// Each actor starts with its own full bucket.
	require.True(t, l.Allow("alice"))
	require.True(t, l.Allow("alice"))
	require.False(t, l.Allow("alice"))

	require.True(t, l.Allow("bob"))
	require.True(t, l.Allow("bob"))
	require.False(t, l.Allow("bob"))
}

func TestLimiterAnonymousSharesOneBucket(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})

	require.True(t, l.Allow(""))
	require.False(t, l.Allow(""))
	require.False(t, l.Allow("anonymous"))
}

func TestLimiterDisabledRate(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0, Burst: 0})
	for range 100 {
		require.True(t, l.Allow("alice"))
	}
}
