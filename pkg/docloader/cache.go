package docloader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/morezero/federation-core/pkg/kv"
)

const cacheLogPrefix = "docloader:cache"

// cachedDocumentTTL bounds how long a fetched document is trusted before
// the loader re-fetches it, independent of any HTTP cache-control the
// remote server sends (the core does not parse those).
const cachedDocumentTTL = time.Hour

// CachingLoader wraps another Loader, storing successful fetches under
// the remoteDocument KV prefix, using the same persisted shape:
// {document, contextUrl, documentUrl, expiresAt}.
type CachingLoader struct {
	inner  Loader
	store  kv.Store
	prefix kv.Key
}

// NewCachingLoader wraps inner with a KV cache under prefix (typically
// kv.DefaultRemoteDocumentPrefix).
func NewCachingLoader(inner Loader, store kv.Store, prefix kv.Key) *CachingLoader {
	return &CachingLoader{inner: inner, store: store, prefix: prefix}
}

type cacheEntry struct {
	Document    interface{} `json:"document"`
	ContextURL  string      `json:"contextUrl"`
	DocumentURL string      `json:"documentUrl"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

func (c *CachingLoader) Load(ctx context.Context, url string) (*Document, error) {
	key := append(append(kv.Key{}, c.prefix...), url)

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		return nil, fmt.Errorf("%s - get: %w", cacheLogPrefix, err)
	} else if ok {
		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err == nil && time.Now().Before(entry.ExpiresAt) {
			return &Document{ContextURL: entry.ContextURL, DocumentURL: entry.DocumentURL, Document: entry.Document}, nil
		}
	}

	doc, err := c.inner.Load(ctx, url)
	if err != nil {
		return nil, err
	}

	entry := cacheEntry{Document: doc.Document, ContextURL: doc.ContextURL, DocumentURL: doc.DocumentURL, ExpiresAt: time.Now().Add(cachedDocumentTTL)}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("%s - marshal: %w", cacheLogPrefix, err)
	}
	if err := c.store.Set(ctx, key, data, kv.SetOptions{TTL: cachedDocumentTTL}); err != nil {
		return nil, fmt.Errorf("%s - set: %w", cacheLogPrefix, err)
	}
	return doc, nil
}
