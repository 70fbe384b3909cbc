// Package queue provides the durable outbound-delivery queue the
// federation registry drives its retry loop from: enqueue a message with
// an optional delay, and register exactly one listener that receives each
// enqueued message at least once. Durability is left to the queue
// implementation, which need only honor a delay hint within
// reasonable tolerance; NatsQueue satisfies that against a real broker,
// MemQueue in process (goroutines and timers) for tests and single-node runs.
package queue

import (
	"context"
	"time"
)

// Listener is invoked once per enqueued message. It returns nothing, and
// the queue never requeues a message; callers that need retry semantics implement it
// themselves (see pkg/federation's outbound retry loop, which re-enqueues
// with an incremented trial count and the next backoff delay).
type Listener func(ctx context.Context, message []byte)

// EnqueueOptions configures a single Enqueue call.
type EnqueueOptions struct {
	// Delay defers delivery to the listener by roughly this duration.
	// Zero means deliver as soon as possible.
	Delay time.Duration
}

// Queue is the message queue contract the outbound retry loop depends on.
type Queue interface {
	// Enqueue submits message for delivery to the registered Listener.
	Enqueue(ctx context.Context, message []byte, opts EnqueueOptions) error
	// Listen registers the single consumer callback. Calling Listen more
	// than once is a programming error; implementations may panic.
	Listen(listener Listener) error
	// Close releases any resources the queue holds (subscriptions,
	// background timers). Both implementations wait for delayed messages
	// already enqueued to be handed off before returning; MemQueue also
	// waits for in-flight listener calls to finish.
	Close() error
}
