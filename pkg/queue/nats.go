package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/federation-core/pkg/commsutil"
)

const natsLogPrefix = "queue:nats"

// NatsQueue is a Queue backed by NATS: a *comms.Conn plus a base subject.
// Messages that decode with a top-level "inbox" field - the shape
// send.OutboxMessage is marshaled in - publish on a per-destination-host
// subject under the base subject (the base subject plus the host token
// commsutil.BuildOutboxSubject derives) instead of the base subject, so
// a slow or down host cannot head-of-line block deliveries to every other
// host sharing the queue. Anything else (including the opaque payloads
// this package's own tests enqueue) publishes on the base subject
// unchanged. Listen subscribes on both, so the one registered consumer
// still receives every message regardless of which subject it landed on.
// Delay is applied client-side with a timer before publish, since core
// NATS subjects carry no native delay primitive; the publish itself is
// what gives the listener side its at-least-once delivery.
type NatsQueue struct {
	nc      *comms.Conn
	subject string

	mu      sync.Mutex
	subs    []*comms.Subscription
	pending sync.WaitGroup
}

// NewNatsQueue creates a NatsQueue whose base subject is subject.
func NewNatsQueue(nc *comms.Conn, subject string) *NatsQueue {
	return &NatsQueue{nc: nc, subject: subject}
}

// outboxInboxPeek extracts just enough of a queued message to compute its
// per-host subject without importing pkg/send and risking an import cycle
// (pkg/send already imports pkg/queue).
type outboxInboxPeek struct {
	Inbox string `json:"inbox"`
}

func (q *NatsQueue) publishSubject(message []byte) string {
	var peek outboxInboxPeek
	if err := commsutil.DecodePayload(message, &peek); err != nil || peek.Inbox == "" {
		return q.subject
	}
	hostToken := strings.TrimPrefix(commsutil.BuildOutboxSubject(peek.Inbox), commsutil.SubjectOutboxPrefix)
	return q.subject + hostToken
}

func (q *NatsQueue) Enqueue(ctx context.Context, message []byte, opts EnqueueOptions) error {
	if opts.Delay <= 0 {
		return q.publish(message)
	}

	q.pending.Add(1)
	timer := time.AfterFunc(opts.Delay, func() {
		defer q.pending.Done()
		if err := q.publish(message); err != nil {
			slog.Error(fmt.Sprintf("%s - delayed publish failed: %v", natsLogPrefix, err))
		}
	})
	go func() {
		<-ctx.Done()
		timer.Stop()
	}()
	return nil
}

func (q *NatsQueue) publish(message []byte) error {
	subject := q.publishSubject(message)
	if err := q.nc.Publish(subject, message); err != nil {
		return fmt.Errorf("%s - publish to %s: %w", natsLogPrefix, subject, err)
	}
	return nil
}

func (q *NatsQueue) Listen(listener Listener) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.subs != nil {
		panic(natsLogPrefix + " - Listen called more than once")
	}

	handler := func(msg *comms.Msg) {
		listener(context.Background(), msg.Data)
	}

	sub, err := q.nc.Subscribe(q.subject, handler)
	if err != nil {
		return fmt.Errorf("%s - subscribe to %s: %w", natsLogPrefix, q.subject, err)
	}
	partitionPattern := q.subject + ".>"
	partitionSub, err := q.nc.Subscribe(partitionPattern, handler)
	if err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("%s - subscribe to %s: %w", natsLogPrefix, partitionPattern, err)
	}
	q.subs = []*comms.Subscription{sub, partitionSub}
	return nil
}

func (q *NatsQueue) Close() error {
	q.mu.Lock()
	subs := q.subs
	q.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("%s - unsubscribe: %w", natsLogPrefix, err)
		}
	}
	q.pending.Wait()
	return nil
}
