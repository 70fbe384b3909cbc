package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/morezero/federation-core/internal/config"
	"github.com/morezero/federation-core/pkg/docloader"
	"github.com/morezero/federation-core/pkg/federation"
	"github.com/morezero/federation-core/pkg/kv"
	"github.com/morezero/federation-core/pkg/queue"
	"github.com/morezero/federation-core/pkg/sign"
	"github.com/morezero/federation-core/pkg/webkey"
)

// demoActorFixture builds a Federation with a registered demo actor
// fronted by an httptest.Server, mirroring what internal/server.Run does
// for a single ACTOR_HANDLE deployment.
func demoActorFixture(t *testing.T, handle string, preferSharedInbox bool) (*httptest.Server, *config.Config) {
	t.Helper()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwkKey, err := webkey.ExportPrivate("main-key", private)
	require.NoError(t, err)
	jwkJSON, err := webkey.MarshalKey(jwkKey)
	require.NoError(t, err)

	cfg := &config.Config{
		ActorHandle:        handle,
		ActorName:          "Demo Actor",
		ActorSummary:       "A test fixture actor.",
		ActorPrivateKeyJWK: string(jwkJSON),
		PreferSharedInbox:  preferSharedInbox,
	}

	fed, err := federation.New(federation.Options{
		KV:             kv.NewMemStore(),
		Queue:          queue.NewMemQueue(),
		DocumentLoader: docloader.NewDefaultLoader(nil),
	})
	require.NoError(t, err)
	require.NoError(t, registerDemoActor(fed, cfg))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fed.Fetch(w, r, federation.FetchOptions{})
	}))
	t.Cleanup(server.Close)

	return server, cfg
}

func TestActorDispatcher_ServesConfiguredHandleOnly(t *testing.T) {
	server, cfg := demoActorFixture(t, "alice", false)

	resp, err := http.Get(server.URL + "/users/" + cfg.ActorHandle)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "Person", doc["type"])
	require.Equal(t, cfg.ActorHandle, doc["preferredUsername"])
	require.Equal(t, cfg.ActorName, doc["name"])
	require.NotEmpty(t, doc["publicKey"])

	resp, err = http.Get(server.URL + "/users/someone-else")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEmptyCollections_ReturnEmptyPages(t *testing.T) {
	server, cfg := demoActorFixture(t, "alice", false)

	for _, surface := range []string{"outbox", "following", "followers"} {
		resp, err := http.Get(server.URL + "/users/" + cfg.ActorHandle + "/" + surface + "?cursor=")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var page map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
		require.Equal(t, "OrderedCollectionPage", page["type"])
		require.Nil(t, page["orderedItems"])
	}
}

// remoteFollower simulates a peer server: it serves its own actor
// document (with a signing key) and records whatever gets POSTed to its
// inbox, so a Follow sent to the demo actor can be answered with an
// Accept the test can observe.
type remoteFollower struct {
	server     *httptest.Server
	actorURI   string
	privateKey *rsa.PrivateKey
	accepted   chan map[string]interface{}
}

func newRemoteFollower(t *testing.T) *remoteFollower {
	t.Helper()
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &remoteFollower{privateKey: private, accepted: make(chan map[string]interface{}, 4)}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/bob", func(w http.ResponseWriter, r *http.Request) {
		pub, err := webkey.ExportPublic(&private.PublicKey)
		require.NoError(t, err)
		pubJSON, err := webkey.MarshalKey(pub)
		require.NoError(t, err)
		doc := map[string]interface{}{
			"id":    f.actorURI,
			"inbox": f.actorURI + "/inbox",
			"publicKey": map[string]interface{}{
				"id":           f.actorURI + "#main-key",
				"owner":        f.actorURI,
				"publicKeyJwk": json.RawMessage(pubJSON),
			},
		}
		w.Header().Set("Content-Type", "application/activity+json")
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/users/bob/inbox", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.accepted <- body
		w.WriteHeader(http.StatusAccepted)
	})

	f.server = httptest.NewServer(mux)
	f.actorURI = f.server.URL + "/users/bob"
	t.Cleanup(f.server.Close)
	return f
}

// signedFollow builds a Follow activity from bob targeting
// targetActorURI and signs it as a POST to destinationURL.
func (f *remoteFollower) signedFollow(t *testing.T, destinationURL, targetActorURI string) *http.Request {
	t.Helper()
	activity := map[string]interface{}{
		"id":     "urn:uuid:follow-1",
		"type":   "Follow",
		"actor":  f.actorURI,
		"object": targetActorURI,
	}
	body, err := json.Marshal(activity)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, destinationURL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")
	require.NoError(t, sign.NewDefaultSigner().Sign(context.Background(), req, f.actorURI+"#main-key", f.privateKey))
	return req
}

func TestHandleFollow_RepliesWithAcceptThroughQueuedSend(t *testing.T) {
	demoServer, cfg := demoActorFixture(t, "alice", false)
	bob := newRemoteFollower(t)

	aliceActorURI := demoServer.URL + "/users/" + cfg.ActorHandle
	aliceInboxURL := aliceActorURI + "/inbox"
	req := bob.signedFollow(t, aliceInboxURL, aliceActorURI)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case accept := <-bob.accepted:
		require.Equal(t, "Accept", accept["type"])
		require.Equal(t, aliceActorURI, accept["actor"])
	case <-time.After(2 * time.Second):
		t.Fatal("bob's inbox never received the Accept")
	}
}
