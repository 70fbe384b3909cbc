package federation

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/docloader"
	"github.com/morezero/federation-core/pkg/kv"
	"github.com/morezero/federation-core/pkg/queue"
	"github.com/morezero/federation-core/pkg/sign"
	"github.com/morezero/federation-core/pkg/webkey"
)

// remoteSigner is a keypair standing in for a peer server signing
// requests into the registry under test, along with the actor document
// its keyId resolves to.
type remoteSigner struct {
	actorURI   string
	keyID      string
	privateKey *rsa.PrivateKey
}

func newRemoteSigner(t *testing.T, actorURI string) remoteSigner {
	t.Helper()
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return remoteSigner{actorURI: actorURI, keyID: actorURI + "#main-key", privateKey: private}
}

func (r remoteSigner) documentLoader() docloader.LoaderFunc {
	return func(_ context.Context, url string) (*docloader.Document, error) {
		if url != r.keyID {
			return nil, &FederationError{Code: "NOT_FOUND", Message: "no such document: " + url}
		}
		pub, err := webkey.ExportPublic(&r.privateKey.PublicKey)
		if err != nil {
			return nil, err
		}
		pubJSON, err := webkey.MarshalKey(pub)
		if err != nil {
			return nil, err
		}
		doc := map[string]interface{}{
			"id": r.actorURI,
			"publicKey": map[string]interface{}{
				"id":           r.keyID,
				"owner":        r.actorURI,
				"publicKeyJwk": json.RawMessage(pubJSON),
			},
		}
		return &docloader.Document{DocumentURL: url, Document: doc}, nil
	}
}

func (r remoteSigner) sign(t *testing.T, req *http.Request) {
	t.Helper()
	require.NoError(t, sign.NewDefaultSigner().Sign(context.Background(), req, r.keyID, r.privateKey))
}

// newInboxTestServer builds a Federation with a personal and shared
// inbox, an inbox listener that records every activity it is handed, and
// returns an httptest.Server fronting Federation.Fetch.
func newInboxTestServer(t *testing.T, loader docloader.Loader) (*httptest.Server, *int32, chan activitystreams.Activity) {
	t.Helper()

	fed, err := New(Options{
		KV:             kv.NewMemStore(),
		Queue:          queue.NewMemQueue(),
		DocumentLoader: loader,
	})
	require.NoError(t, err)

	var calls int32
	received := make(chan activitystreams.Activity, 8)

	setters, err := fed.SetInboxListeners("/users/{handle}/inbox", "/inbox")
	require.NoError(t, err)
	setters.On("Follow", func(_ *RequestContext, _ string, activity activitystreams.Activity) error {
		atomic.AddInt32(&calls, 1)
		received <- activity
		return nil
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fed.Fetch(w, req, FetchOptions{})
	}))
	t.Cleanup(server.Close)

	return server, &calls, received
}

func postSignedActivity(t *testing.T, server *httptest.Server, path string, signer remoteSigner, activity activitystreams.Activity) *http.Response {
	t.Helper()
	body, err := json.Marshal(activity)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")
	signer.sign(t, req)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHandleInbox_UnsignedRequestUnauthorized(t *testing.T) {
	server, calls, _ := newInboxTestServer(t, docloader.LoaderFunc(func(_ context.Context, url string) (*docloader.Document, error) {
		return nil, &FederationError{Code: "NOT_FOUND", Message: "no documents in this test"}
	}))

	body, err := json.Marshal(activitystreams.Activity{ID: "urn:uuid:1", Type: "Follow", Actor: "https://remote.example/users/bob"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, server.URL+"/users/alice/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, atomic.LoadInt32(calls))
}

func TestHandleInbox_SignedActivityDispatchedExactlyOnce(t *testing.T) {
	signer := newRemoteSigner(t, "https://remote.example/users/bob")
	server, calls, received := newInboxTestServer(t, signer.documentLoader())

	activity := activitystreams.Activity{ID: "urn:uuid:dup-1", Type: "Follow", Actor: signer.actorURI}

	resp1 := postSignedActivity(t, server, "/users/alice/inbox", signer, activity)
	require.Equal(t, http.StatusAccepted, resp1.StatusCode)

	select {
	case got := <-received:
		require.Equal(t, activity.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("listener was never invoked")
	}

	// A duplicate POST of the same activity id must be accepted (so the
	// sender does not retry) but must not invoke the listener again.
	resp2 := postSignedActivity(t, server, "/users/alice/inbox", signer, activity)
	require.Equal(t, http.StatusAccepted, resp2.StatusCode)

	select {
	case <-received:
		t.Fatal("listener was invoked twice for the same activity id")
	case <-time.After(100 * time.Millisecond):
	}

	require.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestHandleInbox_SharedInboxFallback(t *testing.T) {
	signer := newRemoteSigner(t, "https://remote.example/users/carol")
	server, calls, received := newInboxTestServer(t, signer.documentLoader())

	activity := activitystreams.Activity{ID: "urn:uuid:shared-1", Type: "Follow", Actor: signer.actorURI}
	resp := postSignedActivity(t, server, "/inbox", signer, activity)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case got := <-received:
		require.Equal(t, activity.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("listener was never invoked for the shared inbox")
	}
	require.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestHandleInbox_UnknownActivityClassStillAccepted(t *testing.T) {
	signer := newRemoteSigner(t, "https://remote.example/users/dora")
	server, calls, _ := newInboxTestServer(t, signer.documentLoader())

	activity := activitystreams.Activity{ID: "urn:uuid:unknown-1", Type: "Arrive", Actor: signer.actorURI}
	resp := postSignedActivity(t, server, "/users/alice/inbox", signer, activity)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.EqualValues(t, 0, atomic.LoadInt32(calls))
}
