// Package kv provides the namespaced key-value abstraction the federation
// core uses for two purposes: recording which inbound activity ids have
// already been processed (the "activityIdempotence" prefix) and caching
// fetched remote documents (the "remoteDocument" prefix). Both purposes
// are expressed through the same Store interface so either can be backed
// by Postgres in production or by an in-process cache in tests.
package kv

import (
	"context"
	"strings"
	"time"
)

// Key is an ordered key path, e.g. {"_fedify", "activityIdempotence", "urn:uuid:..."}.
type Key []string

// join renders a Key as a single string for storage backends that only
// understand flat keys.
func (k Key) join() string {
	return strings.Join(k, "\x1f")
}

// SetOptions configures a Set or SetIfAbsent call.
type SetOptions struct {
	// TTL is the entry's time to live. Zero means no expiration.
	TTL time.Duration
}

// Store is the KV contract the registry depends on: Get, Set, Delete, plus
// SetIfAbsent, which pkg/federation uses to atomically claim the
// idempotence key for an inbound activity.
type Store interface {
	// Get returns the stored value and true, or nil and false if the key
	// is absent or has expired.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// Set stores value under key, replacing any existing entry.
	Set(ctx context.Context, key Key, value []byte, opts SetOptions) error
	// SetIfAbsent stores value under key only if it is not already
	// present (or has expired). It reports whether the value was stored.
	SetIfAbsent(ctx context.Context, key Key, value []byte, opts SetOptions) (bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error
}

// Default prefixes: a config-supplied but centrally-defaulted set of
// key path roots.
var (
	DefaultActivityIdempotencePrefix = Key{"_fedify", "activityIdempotence"}
	DefaultRemoteDocumentPrefix      = Key{"_fedify", "remoteDocument"}
)

// ActivityIdempotenceTTL is how long an inbox idempotence claim is kept,
// long enough to outlast any sender's own retry window (see SPEC_FULL.md's
// "Idempotence TTL" resolution of an implementation-defined constant).
const ActivityIdempotenceTTL = 14 * 24 * time.Hour
