// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"errors"
	"sync"
)

// ErrBroadcasterClosed is returned by Send once Close has been called, and
// by Recv once every buffered message has been drained from a closed
// Broadcaster.
var ErrBroadcasterClosed = errors.New("actor: broadcaster closed")

// Broadcaster is a multi-producer multi-subscriber fan-out channel with a
// bounded backlog (§4.1). It is the Go reshaping of the "newer"
// channels/broadcaster.rs — a bare wrapper around a single send primitive,
// no outer SharedState/RwLock guard, per spec.md's actor-revision open
// question. Unlike tokio::sync::broadcast, Go channels have no native
// broadcast primitive, so subscribers share a sequence-numbered ring
// buffer guarded by one mutex+condition-variable instead of N independent
// channels.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	capacity int
	buf      []seqValue[T] // ring window, ascending by seq
	nextSeq  uint64

	subscribers int
	closed      bool
}

type seqValue[T any] struct {
	seq   uint64
	value T
}

// NewBroadcaster creates a Broadcaster retaining at most capacity of the
// most recently sent messages for lagging subscribers to catch up from.
func NewBroadcaster[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Broadcaster[T]{capacity: capacity}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send publishes value to every current and future-catching-up subscriber
// and returns the number of subscribers registered at send time (tokio's
// send returns the receiver count; callers here use it only for metrics).
func (b *Broadcaster[T]) Send(value T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBroadcasterClosed
	}
	seq := b.nextSeq
	b.nextSeq++
	b.buf = append(b.buf, seqValue[T]{seq: seq, value: value})
	if len(b.buf) > b.capacity {
		b.buf = b.buf[len(b.buf)-b.capacity:]
	}
	n := b.subscribers
	b.cond.Broadcast()
	return n, nil
}

// Close marks the broadcaster closed and wakes every blocked receiver;
// buffered messages already sent remain readable until drained.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

func (b *Broadcaster[T]) oldestSeq() uint64 {
	if len(b.buf) == 0 {
		return b.nextSeq
	}
	return b.buf[0].seq
}

// Subscribe returns a Receiver that observes only messages sent after this
// call (§3: "new subscribers see only messages arriving after subscription").
func (b *Broadcaster[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers++
	return &Receiver[T]{b: b, cursor: b.nextSeq}
}

// Receiver is one subscription to a Broadcaster.
type Receiver[T any] struct {
	b      *Broadcaster[T]
	cursor uint64
	closed bool
}

// Recv returns the next message in send order. If this subscriber fell
// behind the retained backlog, Recv first returns (zero, missed>0, nil) —
// a lag report, no value — then subsequent calls resume in order from the
// oldest still-retained message, matching tokio::sync::broadcast's
// Lagged(n) signal (§4.1, P5, scenario 4).
func (r *Receiver[T]) Recv(ctx context.Context) (T, int, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	var zero T
	if r.closed {
		return zero, 0, ErrBroadcasterClosed
	}

	stop := context.AfterFunc(ctx, func() {
		r.b.mu.Lock()
		r.b.cond.Broadcast()
		r.b.mu.Unlock()
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return zero, 0, err
		}

		oldest := r.b.oldestSeq()
		if r.cursor < oldest {
			missed := oldest - r.cursor
			r.cursor = oldest
			return zero, int(missed), nil
		}

		if r.cursor < r.b.nextSeq {
			idx := r.cursor - r.b.oldestSeq()
			v := r.b.buf[idx].value
			r.cursor++
			return v, 0, nil
		}

		if r.b.closed {
			return zero, 0, ErrBroadcasterClosed
		}

		r.b.cond.Wait()
	}
}

// Close releases this subscription. It does not affect other subscribers
// or the broadcaster itself.
func (r *Receiver[T]) Close() {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.b.subscribers--
}
