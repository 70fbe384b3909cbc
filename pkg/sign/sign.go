// Package sign is the HTTP-signature boundary the federation core treats
// as an external collaborator: it only calls Sign, Verify and
// GetKeyOwner, never the cryptographic primitives directly. This package
// also ships the default implementation so the module runs end to end
// without wiring in a separate signing service.
package sign

import (
	"context"
	"crypto/rsa"
	"net/http"
)

// KeyOwnerResolver looks up the actor URI that owns a keyId (an actor's
// "#main-key" fragment URL), fetching and caching the remote actor
// document as needed. pkg/federation supplies an implementation backed by
// its document loader.
type KeyOwnerResolver interface {
	GetKeyOwner(ctx context.Context, keyID string) (ownerURI string, publicKey *rsa.PublicKey, err error)
}

// Signer is the HTTP-signature contract the federation core treats as
// pluggable and out of scope for the core itself: it is consumed through
// this interface, not implemented inline in the send pipeline or the
// inbox handlers.
type Signer interface {
	// Sign adds Date, Digest and Signature headers to req, which must
	// already have its body set so Digest can be computed over it.
	Sign(ctx context.Context, req *http.Request, keyID string, privateKey *rsa.PrivateKey) error
	// Verify checks req's Signature header against the key that
	// GetKeyOwner resolves the header's keyId to, returning the owning
	// actor URI on success.
	Verify(ctx context.Context, req *http.Request, resolver KeyOwnerResolver) (ownerURI string, err error)
}
