package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := Key{"_fedify", "remoteDocument", "https://example.com/actor"}

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, []byte("hello"), SetOptions{}))
	value, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), value)

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemStore_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := Key{"_fedify", "activityIdempotence", "urn:uuid:1"}

	claimed, err := s.SetIfAbsent(ctx, key, []byte("1"), SetOptions{})
	require.NoError(t, err)
	assert.True(t, claimed, "first claim should succeed")

	claimed, err = s.SetIfAbsent(ctx, key, []byte("1"), SetOptions{})
	require.NoError(t, err)
	assert.False(t, claimed, "second claim on the same key must be rejected")
}

func TestMemStore_SetIfAbsent_ExpiredIsReclaimable(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := Key{"_fedify", "activityIdempotence", "urn:uuid:2"}

	claimed, err := s.SetIfAbsent(ctx, key, []byte("1"), SetOptions{TTL: time.Millisecond})
	require.NoError(t, err)
	require.True(t, claimed)

	time.Sleep(10 * time.Millisecond)

	claimed, err = s.SetIfAbsent(ctx, key, []byte("1"), SetOptions{})
	require.NoError(t, err)
	assert.True(t, claimed, "an expired claim must be reclaimable")
}

func TestMemStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := Key{"_fedify", "remoteDocument", "https://example.com/short-lived"}

	require.NoError(t, s.Set(ctx, key, []byte("v"), SetOptions{TTL: time.Millisecond}))
	time.Sleep(10 * time.Millisecond)

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "expired entries must not be returned")
}
