package federation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/commsutil"
	"github.com/morezero/federation-core/pkg/queue"
	"github.com/morezero/federation-core/pkg/send"
	"github.com/morezero/federation-core/pkg/webkey"
)

const outboxLogPrefix = "federation:outbox"

// StartOutboundQueue starts the queue listener that drives the
// outbound retry loop. It is idempotent: only the first call
// registers a listener. Callers normally do not need to call this directly;
// Context.SendActivity's queued mode starts it lazily on first use.
func (f *Federation) StartOutboundQueue() error {
	if f.queue == nil {
		return nil
	}
	var err error
	f.queueOnce.Do(func() {
		err = f.queue.Listen(f.handleOutboxMessage)
	})
	return err
}

// handleOutboxMessage is the queue Listener callback: decode the message
// (which rehydrates the activity), import the JWK as a private key, call
// the send pipeline, and on failure schedule a retry or give up. No
// authenticated document loader is rebuilt for the delivery.
func (f *Federation) handleOutboxMessage(ctx context.Context, raw []byte) {
	var msg send.OutboxMessage
	if err := commsutil.DecodePayload(raw, &msg); err != nil {
		f.invokeOutboxError(fmt.Errorf("%s - deserialize outbox message: %w", outboxLogPrefix, err), nil)
		return
	}

	privateKey, err := webkey.ImportPrivate(msg.PrivateKey)
	if err != nil {
		f.invokeOutboxError(fmt.Errorf("%s - import private key: %w", outboxLogPrefix, err), &msg.Activity)
		f.retryOrGiveUp(ctx, msg)
		return
	}

	// The pipeline only needs the signer, which is keyed by
	// KeyID/PrivateKey directly.
	sender := send.Sender{KeyID: msg.KeyID, PrivateKey: privateKey}
	deliverErr := f.sendPipeline.Send(ctx, sender, []send.Recipient{{InboxID: msg.Inbox}}, msg.Activity, send.Options{Mode: send.ModeImmediate})
	if deliverErr == nil {
		slog.Info(fmt.Sprintf("%s - delivered activity %s to %s on trial %d", outboxLogPrefix, msg.Activity.ID, msg.Inbox, msg.Trial))
		outboundDeliveriesTotal.WithLabelValues("success").Inc()
		return
	}

	outboundDeliveriesTotal.WithLabelValues("failure").Inc()
	f.invokeOutboxError(fmt.Errorf("%s - deliver to %s: %w", outboxLogPrefix, msg.Inbox, deliverErr), &msg.Activity)
	f.retryOrGiveUp(ctx, msg)
}

// retryOrGiveUp re-enqueues msg with trial+1 and the next backoff delay,
// or logs "giving up" once trial has exhausted the schedule: the k-th
// retry uses backoff[k-1], and no retry is scheduled past
// len(backoff)+1 total attempts.
func (f *Federation) retryOrGiveUp(ctx context.Context, msg send.OutboxMessage) {
	if msg.Trial >= len(f.backoffSchedule) {
		slog.Warn(fmt.Sprintf("%s - giving up on activity %s to %s after %d trials", outboxLogPrefix, msg.Activity.ID, msg.Inbox, msg.Trial+1))
		outboundGiveUpsTotal.Inc()
		return
	}

	delay := f.backoffSchedule[msg.Trial]
	msg.Trial++

	data, err := commsutil.EncodePayload(msg)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - re-serialize outbox message for retry: %v", outboxLogPrefix, err))
		return
	}
	if err := f.queue.Enqueue(ctx, data, queue.EnqueueOptions{Delay: delay}); err != nil {
		slog.Error(fmt.Sprintf("%s - re-enqueue for retry: %v", outboxLogPrefix, err))
	}
}

// invokeOutboxError calls the registry's onOutboxError callback, if any,
// swallowing and logging its own panics. activity is nil
// on deserialization failure.
func (f *Federation) invokeOutboxError(err error, activity *activitystreams.Activity) {
	if f.onOutboxError == nil {
		slog.Error(fmt.Sprintf("%s - %v", outboxLogPrefix, err))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - onOutboxError panicked: %v", outboxLogPrefix, r))
		}
	}()
	f.onOutboxError(err, activity)
}
