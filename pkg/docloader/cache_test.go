package docloader

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/morezero/federation-core/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingLoader_CachesSuccessfulFetch(t *testing.T) {
	var calls int64
	inner := LoaderFunc(func(_ context.Context, url string) (*Document, error) {
		atomic.AddInt64(&calls, 1)
		return &Document{DocumentURL: url, Document: map[string]interface{}{"type": "Person"}}, nil
	})

	loader := NewCachingLoader(inner, kv.NewMemStore(), kv.DefaultRemoteDocumentPrefix)
	ctx := context.Background()

	first, err := loader.Load(ctx, "https://example.com/actor")
	require.NoError(t, err)
	second, err := loader.Load(ctx, "https://example.com/actor")
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "second load should be served from cache")
	assert.Equal(t, first.DocumentURL, second.DocumentURL)
}

func TestCachingLoader_DistinctURLsAreNotConflated(t *testing.T) {
	inner := LoaderFunc(func(_ context.Context, url string) (*Document, error) {
		return &Document{DocumentURL: url}, nil
	})

	loader := NewCachingLoader(inner, kv.NewMemStore(), kv.DefaultRemoteDocumentPrefix)
	ctx := context.Background()

	a, err := loader.Load(ctx, "https://example.com/a")
	require.NoError(t, err)
	b, err := loader.Load(ctx, "https://example.com/b")
	require.NoError(t, err)

	assert.NotEqual(t, a.DocumentURL, b.DocumentURL)
}

func TestCachingLoader_PropagatesInnerError(t *testing.T) {
	inner := LoaderFunc(func(context.Context, string) (*Document, error) {
		return nil, assert.AnError
	})

	loader := NewCachingLoader(inner, kv.NewMemStore(), kv.DefaultRemoteDocumentPrefix)
	_, err := loader.Load(context.Background(), "https://example.com/broken")
	assert.Error(t, err)
}
