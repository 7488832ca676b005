// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package actor implements the cooperative-task runtime C1-11 run on top
// of: a minimal Actor/Supervisor pair, and the three channel primitives
// (Broadcaster, MultiProducer, SharedState) every other component uses to
// talk to its neighbours.
package actor

import "context"

// Actor is anything the Supervisor can run. Start spawns the actor's
// worker goroutines and returns immediately; the returned TaskFunc values
// are run by the supervisor's errgroup so a single failure anywhere
// surfaces through Supervisor.Wait.
type Actor interface {
	Name() string
	Start(ctx context.Context) ([]TaskFunc, error)
}

// StartAndWaiter is an optional capability for actors that need one-shot
// blocking initialisation (e.g. a protocol-sweep loader) before the
// supervisor considers them started.
type StartAndWaiter interface {
	StartAndWait(ctx context.Context) error
}

// TaskFunc is one spawned unit of work. It must return promptly once ctx
// is cancelled; a non-nil error is treated as a worker failure and
// surfaces through the supervisor's aggregate result.
type TaskFunc func(ctx context.Context) error
