package federation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptsActivityStreams(t *testing.T) {
	cases := []struct {
		accept string
		want   bool
	}{
		{"", true},
		{"*/*", true},
		{"application/activity+json", true},
		{"application/ld+json; profile=\"https://www.w3.org/ns/activitystreams\"", true},
		{"application/json", true},
		{"text/html", false},
		{"application/xml", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, acceptsActivityStreams(c.accept), "Accept: %q", c.accept)
	}
}

func TestHandleActor_ContentNegotiation(t *testing.T) {
	fed := newTestFederation(t)
	_, err := fed.SetActorDispatcher("/users/{handle}", func(_ *RequestContext, handle string) (Optional[interface{}], error) {
		return Found[interface{}](map[string]interface{}{"id": handle, "type": "Person"}), nil
	})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fed.Fetch(w, r, FetchOptions{})
	}))
	t.Cleanup(server.Close)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/users/alice", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, server.URL+"/users/alice", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/activity+json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/activity+json", resp.Header.Get("Content-Type"))
}
