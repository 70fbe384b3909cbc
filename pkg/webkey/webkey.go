// Package webkey provides the JWK import/export boundary the federation
// core treats as an external collaborator: actor key pairs travel as
// crypto/rsa keys inside the process and as JWK JSON on the wire (in
// CryptographicKey.publicKey and OutboxMessage.privateKey).
package webkey

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

const logPrefix = "webkey"

// CryptographicKey is the return shape of Context.ActorKey:
// the `{ id: actorUri#main-key, owner: actorUri, publicKey }` shape.
type CryptographicKey struct {
	ID        string   `json:"id"`
	Owner     string   `json:"owner"`
	PublicKey jwk.Key  `json:"publicKey"`
	private   *rsa.PrivateKey
}

// NewCryptographicKey wraps a keypair's public half for a given actor,
// keeping the private half unexported so only the sending path (which
// receives it explicitly through ExportPrivate) can use it.
func NewCryptographicKey(id, owner string, private *rsa.PrivateKey) (*CryptographicKey, error) {
	pub, err := ExportPublic(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s - export public key: %w", logPrefix, err)
	}
	if err := pub.Set(jwk.KeyIDKey, id); err != nil {
		return nil, fmt.Errorf("%s - set key id: %w", logPrefix, err)
	}
	return &CryptographicKey{ID: id, Owner: owner, PublicKey: pub, private: private}, nil
}

// Private returns the wrapped private key, or nil if this CryptographicKey
// was built from a public JWK only.
func (k *CryptographicKey) Private() *rsa.PrivateKey {
	return k.private
}

// ExportPublic converts an rsa.PublicKey into a JWK.
func ExportPublic(pub *rsa.PublicKey) (jwk.Key, error) {
	key, err := jwk.Import(pub)
	if err != nil {
		return nil, fmt.Errorf("%s - import public key: %w", logPrefix, err)
	}
	if err := key.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		return nil, fmt.Errorf("%s - set algorithm: %w", logPrefix, err)
	}
	return key, nil
}

// ExportPrivate converts an rsa.PrivateKey into a JWK, the wire shape
// OutboxMessage.privateKey uses when the send pipeline enqueues a message
// (see send.OutboxMessage).
func ExportPrivate(id string, priv *rsa.PrivateKey) (jwk.Key, error) {
	key, err := jwk.Import(priv)
	if err != nil {
		return nil, fmt.Errorf("%s - import private key: %w", logPrefix, err)
	}
	if err := key.Set(jwk.KeyIDKey, id); err != nil {
		return nil, fmt.Errorf("%s - set key id: %w", logPrefix, err)
	}
	return key, nil
}

// ImportPrivate parses a JWK and extracts its RSA private key, undoing
// ExportPrivate. The outbound retry loop calls this once per delivery
// attempt to rehydrate the signer from a queued OutboxMessage.
func ImportPrivate(key jwk.Key) (*rsa.PrivateKey, error) {
	var raw rsa.PrivateKey
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("%s - export raw private key: %w", logPrefix, err)
	}
	return &raw, nil
}

// ImportPublic parses a JWK and extracts its RSA public key. Used by
// pkg/federation's key-owner resolver once it has fetched a remote actor's
// publicKey document.
func ImportPublic(key jwk.Key) (*rsa.PublicKey, error) {
	var raw rsa.PublicKey
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("%s - export raw public key: %w", logPrefix, err)
	}
	return &raw, nil
}

// ParseKey parses a single JWK from JSON, e.g. a fetched actor's
// publicKey.publicKeyPem-equivalent JWK field, or a queued
// OutboxMessage.privateKey.
func ParseKey(data []byte) (jwk.Key, error) {
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s - parse key: %w", logPrefix, err)
	}
	return key, nil
}

// MarshalKey serializes a JWK back to JSON for embedding in an
// OutboxMessage or a publicKey document.
func MarshalKey(key jwk.Key) ([]byte, error) {
	data, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("%s - marshal key: %w", logPrefix, err)
	}
	return data, nil
}
