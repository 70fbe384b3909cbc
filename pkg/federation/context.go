package federation

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/docloader"
	"github.com/morezero/federation-core/pkg/router"
	"github.com/morezero/federation-core/pkg/send"
	"github.com/morezero/federation-core/pkg/sign"
	"github.com/morezero/federation-core/pkg/webkey"
)

const contextLogPrefix = "federation:context"

// signedKeyState is a three-state memoization cell: unresolved (zero
// value), none (resolved, absent), or a value.
// Using a struct instead of a nullable pointer keeps "resolved but
// none" distinguishable from "not yet resolved".
type signedKeyState struct {
	resolved  bool
	publicKey *rsa.PublicKey
	owner     string
}

// Context bundles reverse-URL builders, the
// default document loader, and sendActivity, closed over a base origin
// and opaque user data.
type Context struct {
	fed            *Federation
	origin         string // scheme://host, no trailing slash
	data           interface{}
	documentLoader docloader.Loader
}

func newContext(fed *Federation, origin string, data interface{}) *Context {
	return &Context{fed: fed, origin: origin, data: data, documentLoader: fed.documentLoader}
}

// Data returns the opaque user data this context was built with.
func (c *Context) Data() interface{} { return c.data }

// DocumentLoader returns the loader this context currently uses for
// fetching remote documents (the registry default, unless swapped for an
// actor's authenticated loader).
func (c *Context) DocumentLoader() docloader.Loader { return c.documentLoader }

func (c *Context) buildURL(routeName string, values map[string]string) (string, error) {
	path, ok := c.fed.router.Build(routeName, values)
	if !ok {
		return "", &router.RouterError{Message: fmt.Sprintf("No %s dispatcher registered.", routeName)}
	}
	return c.origin + path, nil
}

// NodeInfoURI builds the registered NodeInfo document's absolute URL.
func (c *Context) NodeInfoURI() (string, error) {
	return c.buildURL("nodeinfo", nil)
}

// ActorURI builds an actor's absolute URL.
func (c *Context) ActorURI(handle string) (string, error) {
	return c.buildURL("actor", map[string]string{"handle": handle})
}

// ObjectURI builds an object's absolute URL for the given class and
// template values.
func (c *Context) ObjectURI(typeID string, values map[string]string) (string, error) {
	return c.buildURL("object:"+typeID, values)
}

// OutboxURI builds an actor's outbox absolute URL.
func (c *Context) OutboxURI(handle string) (string, error) {
	return c.buildURL("outbox", map[string]string{"handle": handle})
}

// FollowingURI builds an actor's following collection absolute URL.
func (c *Context) FollowingURI(handle string) (string, error) {
	return c.buildURL("following", map[string]string{"handle": handle})
}

// FollowersURI builds an actor's followers collection absolute URL.
func (c *Context) FollowersURI(handle string) (string, error) {
	return c.buildURL("followers", map[string]string{"handle": handle})
}

// InboxURI builds an actor's personal inbox absolute URL, or the shared
// inbox's when handle is empty.
func (c *Context) InboxURI(handle string) (string, error) {
	if handle == "" {
		return c.buildURL("sharedInbox", nil)
	}
	return c.buildURL("inbox", map[string]string{"handle": handle})
}

// HandleFromActorURI extracts the handle from an actor URI minted by
// this same registry, or reports ok=false for any URL with a different
// origin or non-actor path.
func (c *Context) HandleFromActorURI(actorURI string) (handle string, ok bool) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", false
	}
	if parsed.Scheme+"://"+parsed.Host != c.origin {
		return "", false
	}
	match, matched := c.fed.router.Route(parsed.Path)
	if !matched || match.Name != "actor" {
		return "", false
	}
	return match.Values["handle"], true
}

// ActorKey returns the public key of the given actor's main key, or
// ok=false if no key-pair dispatcher is registered or the actor has no
// key.
func (c *Context) ActorKey(ctx context.Context, handle string) (*webkey.CryptographicKey, bool, error) {
	c.fed.mu.Lock()
	entry := c.fed.actor
	c.fed.mu.Unlock()
	if entry == nil || entry.keyPairDispatcher == nil {
		return nil, false, nil
	}
	private, err := entry.keyPairDispatcher(ctx, handle)
	if err != nil {
		return nil, false, err
	}
	if private == nil {
		return nil, false, nil
	}
	actorURI, err := c.ActorURI(handle)
	if err != nil {
		return nil, false, err
	}
	key, err := webkey.NewCryptographicKey(actorURI+"#main-key", actorURI, private)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// DocumentLoaderFor returns an authenticated loader bound to handle's
// main key, requiring a key-pair dispatcher to be registered.
func (c *Context) DocumentLoaderFor(ctx context.Context, handle string) (docloader.Loader, error) {
	c.fed.mu.Lock()
	entry := c.fed.actor
	c.fed.mu.Unlock()
	if entry == nil || entry.keyPairDispatcher == nil {
		return nil, newFederationError("NO_KEY_PAIR_DISPATCHER", "actor %q has no key-pair dispatcher registered", handle)
	}
	private, err := entry.keyPairDispatcher(ctx, handle)
	if err != nil {
		return nil, err
	}
	actorURI, err := c.ActorURI(handle)
	if err != nil {
		return nil, err
	}
	return c.DocumentLoaderForKey(actorURI+"#main-key", private), nil
}

// DocumentLoaderForKey returns an authenticated loader bound directly to
// a keyId/privateKey pair, built by the registry's authenticated document
// loader factory. When no factory is configured it returns the registry's
// default loader, which does not sign its requests.
func (c *Context) DocumentLoaderForKey(keyID string, privateKey *rsa.PrivateKey) docloader.Loader {
	if c.fed.authenticatedDocumentLoaderFactory != nil {
		return c.fed.authenticatedDocumentLoaderFactory(keyID, privateKey)
	}
	return c.fed.documentLoader
}

// SendActivity delegates to the registry's send pipeline, resolving a
// {handle} sender (a bare string) or an already-resolved send.Sender to
// its signing key first.
func (c *Context) SendActivity(ctx context.Context, sender interface{}, recipients []send.Recipient, activity activitystreams.Activity, opts send.Options) error {
	resolved, err := c.resolveSender(ctx, sender)
	if err != nil {
		return err
	}
	if opts.Mode == send.ModeQueued {
		if err := c.fed.StartOutboundQueue(); err != nil {
			return fmt.Errorf("%s - start outbound queue: %w", contextLogPrefix, err)
		}
	}
	return c.fed.sendPipeline.Send(ctx, resolved, recipients, activity, opts)
}

// resolveSender turns either a Sender or a bare handle string into a
// concrete send.Sender bound to that actor's registered key pair.
func (c *Context) resolveSender(ctx context.Context, sender interface{}) (send.Sender, error) {
	switch s := sender.(type) {
	case send.Sender:
		return s, nil
	case string:
		c.fed.mu.Lock()
		entry := c.fed.actor
		c.fed.mu.Unlock()
		if entry == nil || entry.keyPairDispatcher == nil {
			return send.Sender{}, newFederationError("NO_KEY_PAIR_DISPATCHER", "actor %q has no key-pair dispatcher registered", s)
		}
		private, err := entry.keyPairDispatcher(ctx, s)
		if err != nil {
			return send.Sender{}, err
		}
		actorURI, err := c.ActorURI(s)
		if err != nil {
			return send.Sender{}, err
		}
		return send.Sender{KeyID: actorURI + "#main-key", PrivateKey: private}, nil
	default:
		return send.Sender{}, newFederationError("BAD_SENDER", "sender must be a send.Sender or a handle string")
	}
}

// RequestContext extends Context with the inbound request and memoized
// signature verification, resolved lazily and memoized.
type RequestContext struct {
	*Context
	Request *http.Request
	URL     *url.URL
	Writer  http.ResponseWriter

	onNotAcceptable http.HandlerFunc
	onUnauthorized  http.HandlerFunc

	signed *signedKeyCell
	depth  int
}

// respondNotAcceptable answers a content-negotiation failure using the
// Fetch caller's onNotAcceptable callback if one was supplied, else the
// default plain-text 406 with Vary: Accept, Signature.
func (rc *RequestContext) respondNotAcceptable() {
	if rc.onNotAcceptable != nil {
		rc.onNotAcceptable(rc.Writer, rc.Request)
		return
	}
	writeNotAcceptable(rc.Writer)
}

// respondUnauthorized answers an authorization failure using the Fetch
// caller's onUnauthorized callback if one was supplied, else the default
// plain-text 401 with Vary: Accept, Signature.
func (rc *RequestContext) respondUnauthorized() {
	if rc.onUnauthorized != nil {
		rc.onUnauthorized(rc.Writer, rc.Request)
		return
	}
	writeUnauthorized(rc.Writer)
}

// signedKeyCell holds the memoized signature-verification outcome behind
// a pointer, so RequestContext.withRecursionGuard's shallow copy shares
// one memoization cell across every guarded re-entry of the same
// request.
type signedKeyCell struct {
	mu    sync.Mutex
	state signedKeyState
}

func newRequestContext(base *Context, w http.ResponseWriter, req *http.Request) *RequestContext {
	return &RequestContext{Context: base, Request: req, URL: req.URL, Writer: w, signed: &signedKeyCell{}}
}

// keyOwnerResolver is the narrow interface RequestContext needs to
// verify a request's signature; pkg/federation's own resolver (backed by
// the document loader) satisfies it, matching sign.KeyOwnerResolver's
// shape.
type keyOwnerResolver interface {
	GetKeyOwner(ctx context.Context, keyID string) (ownerURI string, publicKey *rsa.PublicKey, err error)
}

// ensureSignedKeyResolved runs HTTP-signature verification at most once
// per request, memoizing the outcome so repeated calls return the same
// value.
func (rc *RequestContext) ensureSignedKeyResolved(ctx context.Context, resolver keyOwnerResolver) {
	rc.signed.mu.Lock()
	defer rc.signed.mu.Unlock()

	if rc.signed.state.resolved {
		return
	}

	keyID, err := sign.KeyIDFromRequest(rc.Request)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - no signature present: %v", contextLogPrefix, err))
		rc.signed.state = signedKeyState{resolved: true}
		return
	}

	ownerURI, err := rc.fed.signer.Verify(ctx, rc.Request, resolverAdapter{resolver})
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - signature verification failed: %v", contextLogPrefix, err))
		rc.signed.state = signedKeyState{resolved: true}
		return
	}

	_, publicKey, _ := resolver.GetKeyOwner(ctx, keyID)
	rc.signed.state = signedKeyState{resolved: true, owner: ownerURI, publicKey: publicKey}
}

// GetSignedKey returns the public key used to sign this request, or nil
// if the request is unsigned or the signature failed to verify.
func (rc *RequestContext) GetSignedKey(ctx context.Context, resolver keyOwnerResolver) *rsa.PublicKey {
	rc.ensureSignedKeyResolved(ctx, resolver)
	rc.signed.mu.Lock()
	defer rc.signed.mu.Unlock()
	return rc.signed.state.publicKey
}

// GetSignedKeyOwner returns the actor URI that owns the request's signing
// key, depending only on GetSignedKey's memoized result.
func (rc *RequestContext) GetSignedKeyOwner(ctx context.Context, resolver keyOwnerResolver) string {
	rc.ensureSignedKeyResolved(ctx, resolver)
	rc.signed.mu.Lock()
	defer rc.signed.mu.Unlock()
	return rc.signed.state.owner
}

// resolverAdapter wraps a keyOwnerResolver to pass it to Signer.Verify
// as a sign.KeyOwnerResolver; the two interfaces are structurally
// identical.
type resolverAdapter struct {
	inner keyOwnerResolver
}

func (a resolverAdapter) GetKeyOwner(ctx context.Context, keyID string) (string, *rsa.PublicKey, error) {
	return a.inner.GetKeyOwner(ctx, keyID)
}

// withRecursionGuard returns a shallow copy of rc whose depth is
// incremented, logging a warning if this is a re-entrant call.
func (rc *RequestContext) withRecursionGuard(what string) *RequestContext {
	if rc.depth > 0 {
		slog.Warn(fmt.Sprintf("%s - re-entrant %s call detected", contextLogPrefix, what))
	}
	clone := *rc
	clone.depth = rc.depth + 1
	return &clone
}
