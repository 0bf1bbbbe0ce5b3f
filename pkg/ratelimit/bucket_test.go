package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(0.001, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := bucket.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := bucket.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter.Seconds(), 0.0)

	d, err = bucket.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "other addresses have their own bucket")
}

func TestTokenBucket_Sweep(t *testing.T) {
	bucket := NewTokenBucket(1, 1)
	_, _ = bucket.Allow(context.Background(), "a")
	assert.Equal(t, 0, bucket.Sweep())

	bucket.idle = -1
	assert.Equal(t, 1, bucket.Sweep())
}
