package nodeinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWebFingerResource_AcctForm(t *testing.T) {
	handle, ok := ParseWebFingerResource("acct:alice@example.com", "example.com")
	assert.True(t, ok)
	assert.Equal(t, "alice", handle)
}

func TestParseWebFingerResource_URIForm(t *testing.T) {
	handle, ok := ParseWebFingerResource("https://example.com/users/alice", "example.com")
	assert.True(t, ok)
	assert.Equal(t, "alice", handle)
}

func TestParseWebFingerResource_WrongHostRejected(t *testing.T) {
	_, ok := ParseWebFingerResource("acct:alice@other.example", "example.com")
	assert.False(t, ok)
}

func TestParseWebFingerResource_Malformed(t *testing.T) {
	cases := []string{"", "not-a-resource", "acct:no-host", "https://example.com/users/"}
	for _, c := range cases {
		_, ok := ParseWebFingerResource(c, "example.com")
		assert.False(t, ok, "expected %q to be rejected", c)
	}
}

func TestBuildActorJRD_WithProfilePage(t *testing.T) {
	jrd := BuildActorJRD("alice", "example.com", "https://example.com/users/alice", "https://example.com/@alice")

	assert.Equal(t, "acct:alice@example.com", jrd.Subject)
	assert.Len(t, jrd.Links, 2)
	assert.Equal(t, "self", jrd.Links[0].Rel)
	assert.Equal(t, "https://example.com/users/alice", jrd.Links[0].Href)
}

func TestBuildActorJRD_WithoutProfilePage(t *testing.T) {
	jrd := BuildActorJRD("alice", "example.com", "https://example.com/users/alice", "")
	assert.Len(t, jrd.Links, 1)
}

func TestBuildNodeInfoDiscoveryJRD(t *testing.T) {
	jrd := BuildNodeInfoDiscoveryJRD("https://example.com/nodeinfo/2.1")
	assert.Len(t, jrd.Links, 1)
	assert.Equal(t, "https://example.com/nodeinfo/2.1", jrd.Links[0].Href)
}
