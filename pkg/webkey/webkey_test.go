package webkey

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv
}

func TestExportImportPrivate_RoundTrip(t *testing.T) {
	priv := generateTestKey(t)

	key, err := ExportPrivate("https://example.com/users/alice#main-key", priv)
	require.NoError(t, err)

	data, err := MarshalKey(key)
	require.NoError(t, err)

	parsed, err := ParseKey(data)
	require.NoError(t, err)

	got, err := ImportPrivate(parsed)
	require.NoError(t, err)
	assert.Equal(t, priv.D, got.D)
	assert.Equal(t, priv.N, got.N)
}

func TestExportImportPublic_RoundTrip(t *testing.T) {
	priv := generateTestKey(t)

	key, err := ExportPublic(&priv.PublicKey)
	require.NoError(t, err)

	data, err := MarshalKey(key)
	require.NoError(t, err)

	parsed, err := ParseKey(data)
	require.NoError(t, err)

	got, err := ImportPublic(parsed)
	require.NoError(t, err)
	assert.Equal(t, priv.PublicKey.N, got.N)
	assert.Equal(t, priv.PublicKey.E, got.E)
}

func TestNewCryptographicKey_SetsIDAndOwner(t *testing.T) {
	priv := generateTestKey(t)

	ck, err := NewCryptographicKey("https://example.com/users/alice#main-key", "https://example.com/users/alice", priv)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/users/alice#main-key", ck.ID)
	assert.Equal(t, "https://example.com/users/alice", ck.Owner)
	assert.Same(t, priv, ck.Private())

	data, err := MarshalKey(ck.PublicKey)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, ck.ID, fields["kid"])
}
