package activitystreams

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivity_MarshalUnmarshalRoundTrip(t *testing.T) {
	original := Activity{
		ID:    "https://example.com/activities/1",
		Type:  "Create",
		Actor: "https://example.com/users/alice",
		To:    []string{"https://www.w3.org/ns/activitystreams#Public"},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Activity
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.Actor, decoded.Actor)
	assert.Equal(t, original.To, decoded.To)
}

func TestActivity_UnmarshalPreservesUnknownFields(t *testing.T) {
	data := []byte(`{"type":"Create","actor":"https://example.com/users/alice","summary":"a note"}`)

	var decoded Activity
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "a note", decoded.RawFields["summary"])
}

func TestActivity_MarshalRoundTripsUnknownFields(t *testing.T) {
	data := []byte(`{"type":"Like","object":"https://example.com/notes/1","context":"https://example.com/ctx/1"}`)

	var decoded Activity
	require.NoError(t, json.Unmarshal(data, &decoded))

	reencoded, err := json.Marshal(decoded)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(reencoded, &fields))
	assert.Equal(t, "https://example.com/ctx/1", fields["context"])
	assert.Equal(t, "Like", fields["type"])
}

func TestActivity_WithID(t *testing.T) {
	base := Activity{Type: "Create"}
	withID := base.WithID("urn:uuid:1234")

	assert.Equal(t, "", base.ID, "WithID must not mutate the receiver")
	assert.Equal(t, "urn:uuid:1234", withID.ID)
}
