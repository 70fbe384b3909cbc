package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/kv"
	"github.com/morezero/federation-core/pkg/queue"
	"github.com/morezero/federation-core/pkg/send"
)

// failingRemote always answers 500, so every delivery attempt the retry
// loop makes against it fails deterministically.
func failingRemote(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOutboundRetry_GivesUpAfterExhaustingSchedule(t *testing.T) {
	remote := failingRemote(t)

	var failureCount int
	var mu sync.Mutex
	notify := make(chan struct{}, 64)

	fed, err := New(Options{
		KV:              kv.NewMemStore(),
		Queue:           queue.NewMemQueue(),
		BackoffSchedule: []time.Duration{2 * time.Millisecond, 2 * time.Millisecond},
		OnOutboxError: func(err error, activity *activitystreams.Activity) {
			mu.Lock()
			failureCount++
			mu.Unlock()
			notify <- struct{}{}
		},
	})
	require.NoError(t, err)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sender := send.Sender{KeyID: "https://origin.example/users/alice#main-key", PrivateKey: privateKey}

	ctx := newContext(fed, "https://origin.example", nil)
	err = ctx.SendActivity(context.Background(), sender,
		[]send.Recipient{{InboxID: remote.URL + "/inbox"}},
		activitystreams.Activity{ID: "urn:uuid:retry-1", Type: "Create", Actor: "https://origin.example/users/alice"},
		send.Options{Mode: send.ModeQueued},
	)
	require.NoError(t, err)

	// Three total attempts: trial 0 and 1 each schedule a retry from a
	// 2-entry backoff schedule, trial 2 exhausts it and gives up.
	for i := 0; i < 3; i++ {
		select {
		case <-notify:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for delivery failure %d/3", i+1)
		}
	}

	select {
	case <-notify:
		t.Fatal("delivery was retried past the exhausted backoff schedule")
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, failureCount)
}

func TestOutboundRetry_SuccessStopsRetries(t *testing.T) {
	var posts int32
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	notify := make(chan struct{}, 1)
	fed, err := New(Options{
		KV:              kv.NewMemStore(),
		Queue:           queue.NewMemQueue(),
		BackoffSchedule: []time.Duration{time.Millisecond},
		OnOutboxError: func(err error, activity *activitystreams.Activity) {
			t.Errorf("unexpected delivery failure: %v", err)
		},
	})
	require.NoError(t, err)
	fed.sendPipeline.Client = server.Client()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sender := send.Sender{KeyID: "https://origin.example/users/alice#main-key", PrivateKey: privateKey}

	go func() {
		// handleOutboxMessage logs success but has no hook the test can
		// block on directly; polling the fake server's request count is
		// simplest here.
		for i := 0; i < 20; i++ {
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			done := posts > 0
			mu.Unlock()
			if done {
				notify <- struct{}{}
				return
			}
		}
	}()

	ctx := newContext(fed, "https://origin.example", nil)
	require.NoError(t, ctx.SendActivity(context.Background(), sender,
		[]send.Recipient{{InboxID: server.URL + "/inbox"}},
		activitystreams.Activity{ID: "urn:uuid:ok-1", Type: "Create", Actor: "https://origin.example/users/alice"},
		send.Options{Mode: send.ModeQueued},
	))

	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("delivery never reached the fake server")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(1), posts)
}
