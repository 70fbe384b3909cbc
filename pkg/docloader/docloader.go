// Package docloader is the JSON-LD document loader boundary the
// federation core treats as an external collaborator: it fetches remote
// actor, object and key documents over HTTP and, optionally, caches them.
// This package also ships the default fetch loader and its KV-cache
// wrapper so the module runs end to end without a separate loader
// service.
package docloader

import (
	"context"
)

// Document is a fetched JSON-LD document, matching the persisted shape
// the persisted shape used under the remoteDocument KV prefix.
type Document struct {
	ContextURL  string      `json:"contextUrl"`
	DocumentURL string      `json:"documentUrl"`
	Document    interface{} `json:"document"`
}

// Loader fetches a JSON-LD document by URL. Both the registry's default
// loader and an actor's authenticated loader (bound to a signing key)
// implement this same interface.
type Loader interface {
	Load(ctx context.Context, url string) (*Document, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(ctx context.Context, url string) (*Document, error)

func (f LoaderFunc) Load(ctx context.Context, url string) (*Document, error) {
	return f(ctx, url)
}
