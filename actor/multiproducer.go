// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import "context"

// MultiProducer is a bounded mpmc queue (§4.1), the Go counterpart of
// channels/multiproducer.rs's Arc<Mutex<mpsc::Receiver<T>>> + mpsc::Sender
// pair. A buffered Go channel already gives multi-producer/multi-consumer
// semantics directly, so MultiProducer is a thin wrapper whose only job is
// to make Send/Recv cancellable via ctx the same way every other channel
// boundary in the runtime is (§5).
type MultiProducer[T any] struct {
	ch chan T
}

// NewMultiProducer creates a queue with the given bounded capacity.
func NewMultiProducer[T any](capacity int) *MultiProducer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &MultiProducer[T]{ch: make(chan T, capacity)}
}

// Send enqueues value, blocking if the queue is full until space frees up
// or ctx is cancelled.
func (p *MultiProducer[T]) Send(ctx context.Context, value T) error {
	select {
	case p.ch <- value:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv dequeues the next value, blocking until one is available or ctx is
// cancelled. ok is false once the queue has been closed and drained.
func (p *MultiProducer[T]) Recv(ctx context.Context) (value T, ok bool, err error) {
	select {
	case v, open := <-p.ch:
		return v, open, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Close signals no more values will be sent; consumers drain remaining
// buffered values before Recv reports ok=false.
func (p *MultiProducer[T]) Close() {
	close(p.ch)
}
