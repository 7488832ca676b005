// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/backrun/log"
)

var logger = log.New("component", "actor")

// Supervisor records every task spawned by Start/StartAndWait and, on
// Wait, joins them all and surfaces the first non-nil result — mirroring
// ActorsManager's start/start_and_wait/wait triad, reworked around
// errgroup instead of select_all over a growing Vec<JoinHandle>.
type Supervisor struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	names  []string
}

// NewSupervisor builds a Supervisor whose tasks observe ctx's cancellation
// as the cooperative shutdown signal (§5).
func NewSupervisor(ctx context.Context) *Supervisor {
	gctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(gctx)
	return &Supervisor{group: group, ctx: gctx, cancel: cancel}
}

// Start runs a.Start, logs success or failure, and registers every
// returned task with the supervisor's errgroup.
func (s *Supervisor) Start(a Actor) error {
	tasks, err := a.Start(s.ctx)
	if err != nil {
		logger.Error("actor failed to start", "actor", a.Name(), "err", err)
		return fmt.Errorf("actor %s: start: %w", a.Name(), err)
	}
	logger.Info("actor started", "actor", a.Name(), "tasks", len(tasks))

	s.mu.Lock()
	s.names = append(s.names, a.Name())
	s.mu.Unlock()

	for i, t := range tasks {
		task := t
		idx := i
		name := a.Name()
		s.group.Go(func() error {
			err := task(s.ctx)
			if err != nil {
				logger.Error("actor task exited with error", "actor", name, "task", idx, "err", err)
				return fmt.Errorf("actor %s task %d: %w", name, idx, err)
			}
			logger.Debug("actor task exited", "actor", name, "task", idx)
			return nil
		})
	}
	return nil
}

// StartAndWait runs a's blocking one-shot initialisation (if it implements
// StartAndWaiter) before starting it normally. Used by loaders that must
// finish a protocol sweep before the rest of the pipeline sees any pools.
func (s *Supervisor) StartAndWait(a Actor) error {
	if w, ok := a.(StartAndWaiter); ok {
		if err := w.StartAndWait(s.ctx); err != nil {
			logger.Error("actor start_and_wait failed", "actor", a.Name(), "err", err)
			return fmt.Errorf("actor %s: start_and_wait: %w", a.Name(), err)
		}
	}
	return s.Start(a)
}

// Shutdown cancels the shared context, asking every running task to
// observe cancellation at its next channel boundary.
func (s *Supervisor) Shutdown() {
	s.cancel()
}

// Wait blocks until every registered task has returned, then returns the
// first non-nil error encountered (errgroup already does this join/first-
// error bookkeeping; Wait exists to give the supervisor's own log line and
// keep the Rust-shaped "join everything, surface first failure" contract
// explicit at the call site).
func (s *Supervisor) Wait() error {
	err := s.group.Wait()
	if err != nil {
		logger.Error("supervisor shutting down on task failure", "err", err)
	} else {
		logger.Info("supervisor: all actors exited cleanly")
	}
	return err
}
