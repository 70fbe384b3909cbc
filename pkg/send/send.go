package send

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/commsutil"
	"github.com/morezero/federation-core/pkg/queue"
	"github.com/morezero/federation-core/pkg/sign"
	"github.com/morezero/federation-core/pkg/webkey"
)

const logPrefix = "send"

// Mode selects how Send dispatches to the resolved inboxes.
type Mode int

const (
	// ModeImmediate performs all deliveries in parallel and awaits
	// completion (the immediate-delivery branch).
	ModeImmediate Mode = iota
	// ModeQueued enqueues one OutboxMessage per inbox at trial=0 instead
	// of delivering inline (the queued-delivery branch).
	ModeQueued
)

// Options configures a single Send call.
type Options struct {
	Mode              Mode
	PreferSharedInbox bool
}

// Pipeline is the outbound send pipeline, holding the
// collaborators it needs to sign requests and, in queued mode, persist
// pending deliveries.
type Pipeline struct {
	Signer  sign.Signer
	Queue   queue.Queue
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewPipeline creates a Pipeline. limiter may be nil to disable
// rate limiting of immediate-mode fan-out.
func NewPipeline(signer sign.Signer, q queue.Queue, client *http.Client, limiter *rate.Limiter) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	return &Pipeline{Signer: signer, Queue: q, Client: client, Limiter: limiter}
}

// Send resolves recipients, signs, and delivers or enqueues an activity
// in seven steps. It mutates neither
// activity nor recipients; the id-minting step (1) operates on a local
// copy.
func (p *Pipeline) Send(ctx context.Context, sender Sender, recipients []Recipient, activity activitystreams.Activity, opts Options) error {
	if activity.ID == "" {
		activity = activity.WithID("urn:uuid:" + uuid.NewString())
	}

	if activity.Actor == "" {
		return NewSendError("INVALID_ACTIVITY", "activity.actor must be set before sending")
	}

	inboxes := ExtractInboxes(recipients, ExtractInboxesOptions{PreferSharedInbox: opts.PreferSharedInbox})
	if len(inboxes) == 0 {
		return nil
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return NewSendError("SERIALIZATION_FAILED", fmt.Sprintf("failed to serialize activity: %v", err))
	}

	if opts.Mode == ModeQueued {
		return p.enqueueAll(ctx, sender, activity, inboxes)
	}
	return p.deliverAllImmediate(ctx, sender, body, inboxes)
}

func (p *Pipeline) deliverAllImmediate(ctx context.Context, sender Sender, body []byte, inboxes []string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(inboxes))

	for i, inbox := range inboxes {
		wg.Add(1)
		go func(i int, inbox string) {
			defer wg.Done()
			if p.Limiter != nil {
				if err := p.Limiter.Wait(ctx); err != nil {
					errs[i] = err
					return
				}
			}
			errs[i] = p.deliverOne(ctx, sender, body, inbox)
		}(i, inbox)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("%s - delivery to %s failed: %w", logPrefix, inboxes[i], err)
		}
	}
	return nil
}

func (p *Pipeline) deliverOne(ctx context.Context, sender Sender, body []byte, inbox string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s - build request: %w", logPrefix, err)
	}
	req.Header.Set("Content-Type", "application/ld+json")

	if err := p.Signer.Sign(ctx, req, sender.KeyID, sender.PrivateKey); err != nil {
		return fmt.Errorf("%s - sign: %w", logPrefix, err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s - post: %w", logPrefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s - post to %s: unexpected status %d", logPrefix, inbox, resp.StatusCode)
	}
	return nil
}

func (p *Pipeline) enqueueAll(ctx context.Context, sender Sender, activity activitystreams.Activity, inboxes []string) error {
	privateKeyJWK, err := exportSenderKey(sender)
	if err != nil {
		return err
	}

	for _, inbox := range inboxes {
		msg := OutboxMessage{
			Type:       "outbox",
			KeyID:      sender.KeyID,
			PrivateKey: privateKeyJWK,
			Activity:   activity,
			Inbox:      inbox,
			Trial:      0,
		}
		data, err := commsutil.EncodePayload(msg)
		if err != nil {
			return NewSendError("SERIALIZATION_FAILED", fmt.Sprintf("failed to serialize outbox message: %v", err))
		}
		if err := p.Queue.Enqueue(ctx, data, queue.EnqueueOptions{}); err != nil {
			return fmt.Errorf("%s - enqueue for %s: %w", logPrefix, inbox, err)
		}
	}
	return nil
}

func exportSenderKey(sender Sender) (jwk.Key, error) {
	key, err := webkey.ExportPrivate(sender.KeyID, sender.PrivateKey)
	if err != nil {
		return nil, NewSendError("KEY_EXPORT_FAILED", fmt.Sprintf("failed to export sender key: %v", err))
	}
	return key, nil
}
