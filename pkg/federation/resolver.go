package federation

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/morezero/federation-core/pkg/docloader"
	"github.com/morezero/federation-core/pkg/webkey"
)

const resolverLogPrefix = "federation:resolver"

// documentKeyOwnerResolver resolves an HTTP Signature's keyId (an
// actor's "#main-key" fragment URL) by fetching the owning document
// through the registry's document loader and reading its publicKey
// property, satisfying sign.KeyOwnerResolver.
type documentKeyOwnerResolver struct {
	loader docloader.Loader
}

func newDocumentKeyOwnerResolver(loader docloader.Loader) *documentKeyOwnerResolver {
	return &documentKeyOwnerResolver{loader: loader}
}

// remoteActorPublicKey is the sliver of an actor document's publicKey
// property this resolver needs.
type remoteActorPublicKey struct {
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	PublicKeyPem json.RawMessage `json:"publicKeyPem"`
	PublicKeyJwk json.RawMessage `json:"publicKeyJwk"`
}

type remoteActorDocument struct {
	ID        string               `json:"id"`
	PublicKey remoteActorPublicKey `json:"publicKey"`
}

func (r *documentKeyOwnerResolver) GetKeyOwner(ctx context.Context, keyID string) (string, *rsa.PublicKey, error) {
	doc, err := r.loader.Load(ctx, keyID)
	if err != nil {
		return "", nil, fmt.Errorf("%s - fetch key document %s: %w", resolverLogPrefix, keyID, err)
	}

	raw, err := json.Marshal(doc.Document)
	if err != nil {
		return "", nil, fmt.Errorf("%s - re-marshal fetched document: %w", resolverLogPrefix, err)
	}

	var actor remoteActorDocument
	if err := json.Unmarshal(raw, &actor); err != nil {
		return "", nil, fmt.Errorf("%s - parse actor document: %w", resolverLogPrefix, err)
	}

	if len(actor.PublicKey.PublicKeyJwk) == 0 {
		return "", nil, fmt.Errorf("%s - actor document has no publicKeyJwk", resolverLogPrefix)
	}

	key, err := webkey.ParseKey(actor.PublicKey.PublicKeyJwk)
	if err != nil {
		return "", nil, fmt.Errorf("%s - parse public key: %w", resolverLogPrefix, err)
	}
	publicKey, err := webkey.ImportPublic(key)
	if err != nil {
		return "", nil, fmt.Errorf("%s - import public key: %w", resolverLogPrefix, err)
	}

	owner := actor.PublicKey.Owner
	if owner == "" {
		owner = actor.ID
	}
	return owner, publicKey, nil
}
