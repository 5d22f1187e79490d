// Package transport provides the per-connection outbound queue (the
// "outbound mux" that merges world-originated messages and heartbeats
// into the socket writer).
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/halvorsen/speedd/internal/wire"
)

// ErrClosed is returned by Send once the Outbox has been closed.
var ErrClosed = errors.New("transport: outbox closed")

// Outbox is a multi-producer/single-consumer queue of outbound protocol
// messages, owned by one session. The world's route_ticket and a
// connection's heartbeat task both act as producers; the session's writer
// goroutine is the sole consumer.
//
// Unlike a bounded channel, Send never blocks and never drops: the queue
// grows without bound, matching the protocol's accepted resource
// trade-off (spec section 5) of a slow dispatcher causing unbounded
// growth rather than lost tickets.
type Outbox struct {
	mu     sync.Mutex
	queue  []wire.Message
	notify chan struct{}
	doneCh chan struct{}
	closed bool
}

// New returns an empty, open Outbox.
func New() *Outbox {
	return &Outbox{
		notify: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

// Send enqueues m for delivery. It returns ErrClosed if the Outbox has
// already been closed; the caller (typically the world, routing a ticket)
// should treat that as a routing failure and fall back to its pending
// queue.
func (o *Outbox) Send(m wire.Message) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.queue = append(o.queue, m)
	o.mu.Unlock()
	o.wake()
	return nil
}

// Recv blocks until a message is available, the Outbox is closed and
// drained, or ctx is done. The boolean result is false once the queue is
// empty and the Outbox is closed (it will never yield another message), or
// when ctx is done before a message arrives.
func (o *Outbox) Recv(ctx context.Context) (wire.Message, bool) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			m := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return m, true
		}
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return nil, false
		}
		select {
		case <-o.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Close marks the Outbox closed; idempotent. Already-queued messages are
// still drainable via Recv, but no further Send will succeed.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	close(o.doneCh)
	o.wake()
}

// Done returns a channel closed once Close has been called. Producers
// (chiefly the heartbeat scheduler) use this to observe connection
// teardown without any explicit cancellation signal.
func (o *Outbox) Done() <-chan struct{} { return o.doneCh }

func (o *Outbox) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}
