// Package federation ties every other package in this module together
// into a registry: dispatcher registration, reverse-URL context
// building, per-surface HTTP handlers, and the outbound retry loop. It
// is the module's composition root for the federation domain.
package federation

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"

	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/nodeinfo"
)

// FederationError reports a registration-time or dispatch-time failure
// that is not a RouterError (those come straight from pkg/router).
type FederationError struct {
	Code    string
	Message string
}

func (e *FederationError) Error() string {
	return e.Code + ": " + e.Message
}

func newFederationError(code, format string, args ...interface{}) *FederationError {
	return &FederationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Optional is a value that may be absent. Dispatchers return
// NotFound[T]() (Found false) with a nil error to mean "not found" (404).
type Optional[T any] struct {
	Value T
	Found bool
}

func Found[T any](v T) Optional[T] { return Optional[T]{Value: v, Found: true} }
func NotFound[T any]() Optional[T] { var zero T; return Optional[T]{Value: zero, Found: false} }

// ActorDispatcher looks up an actor's JSON-LD document by handle.
type ActorDispatcher func(ctx *RequestContext, handle string) (Optional[interface{}], error)

// KeyPairDispatcher returns the actor's signing key pair.
type KeyPairDispatcher func(ctx context.Context, handle string) (*rsa.PrivateKey, error)

// AuthorizePredicate gates an actor, object, or collection request.
// handleOrValues is the handle string for actor/collection requests, or
// the template values map for object requests. signedKey is nil when the
// request carried no valid HTTP Signature.
type AuthorizePredicate func(ctx *RequestContext, handleOrValues interface{}, signedKey *rsa.PublicKey, signedKeyOwner string) (bool, error)

// ObjectDispatcher looks up an object of a registered class by its
// template variable values.
type ObjectDispatcher func(ctx *RequestContext, values map[string]string) (Optional[interface{}], error)

// CollectionDispatcher returns one page of a collection. cursor is empty
// for the first page.
type CollectionDispatcher func(ctx *RequestContext, handle, cursor string) (items []interface{}, nextCursor string, err error)

// CollectionCounter returns a collection's totalItems, if known.
type CollectionCounter func(ctx context.Context, handle string) (int, bool, error)

// CollectionCursor returns a collection's first or last page cursor.
type CollectionCursor func(ctx context.Context, handle string) (string, bool, error)

// InboxListener handles one activity delivered to an inbox. handle is
// empty for the shared inbox.
type InboxListener func(ctx *RequestContext, handle string, activity activitystreams.Activity) error

// InboxErrorHandler is invoked when a listener returns an error; its own
// panics/errors are swallowed and logged.
type InboxErrorHandler func(ctx context.Context, activity *activitystreams.Activity, err error)

// NodeInfoDispatcher returns request-time usage counters for the
// registered NodeInfo document.
type NodeInfoDispatcher func(ctx context.Context) (nodeinfo.Usage, error)

// OutboxErrorHandler is invoked on every failed outbound delivery
// attempt, once per failure.
type OutboxErrorHandler func(err error, activity *activitystreams.Activity)

// FetchOptions configures a single Fetch call.
type FetchOptions struct {
	ContextData     interface{}
	OnNotFound      http.HandlerFunc
	OnNotAcceptable http.HandlerFunc
	OnUnauthorized  http.HandlerFunc
}
