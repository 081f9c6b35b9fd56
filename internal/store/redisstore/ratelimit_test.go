package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterLive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	c := NewClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer c.Close()
	require.NoError(t, Ping(context.Background(), c))

	l := NewRateLimiter(c, "test:chat", 2, time.Minute)
	key := uuid.NewString()
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(context.Background(), key)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Allow(context.Background(), key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(nil, "test", 0, time.Minute)
	ok, err := l.Allow(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, ok)
}
