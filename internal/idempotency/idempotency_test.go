package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreClaimOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, "evt_1", time.Hour)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestMemoryStoreReleaseAndExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	ok, err := s.Claim(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, "evt_1"))
	ok, err = s.Claim(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Equal(t, 1, s.Sweep())
	ok, err = s.Claim(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("://nope")
	assert.Error(t, err)

	s, err := NewRedisStore("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestRedisStoreReportsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	s := NewRedisStoreWithClient(client)
	defer s.Close()

	_, err := s.Claim(context.Background(), "evt_1", time.Minute)
	assert.Error(t, err)
}
