// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package health is C11 (§4.11): three independent monitors that turn
// searcher/broadcaster observations into quarantine decisions and
// structured HealthEvents for offline analysis, without ever aborting the
// pipeline they watch.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-bexpr"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/backrun/market"
	"github.com/luxfi/backrun/types"
	"github.com/luxfi/backrun/utils"
)

var logger = log.New("component", "health")

// defaultQuarantineExpression is the bexpr predicate evaluated after
// every pool swap error: K consecutive errors within window W marks the
// direction inert, per §4.11 ("after K consecutive errors in a window W").
const defaultQuarantineExpression = "ConsecutiveErrors >= 5 and WindowSeconds <= 60"

// quarantineSnapshot is the struct the quarantine predicate evaluates
// against on each recorded error.
type quarantineSnapshot struct {
	ConsecutiveErrors int     `bexpr:"ConsecutiveErrors"`
	WindowSeconds     float64 `bexpr:"WindowSeconds"`
}

type errorWindow struct {
	mu      sync.Mutex
	count   int
	firstAt time.Time
}

// PoolHealthMonitor tracks per-(pool, direction) consecutive swap-error
// counts and quarantines a direction in Market once the configured
// predicate matches.
type PoolHealthMonitor struct {
	market *market.Market
	clock  utils.MockableTimer
	eval   *bexpr.Evaluator

	mu      sync.Mutex
	windows map[types.PoolID]map[types.SwapDirection]*errorWindow

	quarantines metric.Counter
}

// NewPoolHealthMonitor compiles expression (defaultQuarantineExpression
// if empty) and returns a monitor bound to m. clock lets tests control
// the error window deterministically instead of relying on wall time.
func NewPoolHealthMonitor(m *market.Market, clock utils.MockableTimer, expression string) (*PoolHealthMonitor, error) {
	if expression == "" {
		expression = defaultQuarantineExpression
	}
	eval, err := bexpr.CreateEvaluator(expression)
	if err != nil {
		return nil, fmt.Errorf("health: compiling quarantine predicate %q: %w", expression, err)
	}
	if clock == nil {
		clock = utils.NewMockableClock()
	}
	return &PoolHealthMonitor{
		market:  m,
		clock:   clock,
		eval:    eval,
		windows: make(map[types.PoolID]map[types.SwapDirection]*errorWindow),
		quarantines: metric.NewCounter(metric.CounterOpts{
			Name: "health/pool_quarantines",
			Help: "pool directions quarantined after repeated swap errors",
		}),
	}, nil
}

// RecordSwapError processes one SwapError from the searcher (C8),
// incrementing the (pool, direction) error window. Once the quarantine
// predicate matches, it marks the direction inert in Market and returns
// a HealthPoolQuarantined event for the caller to publish; otherwise it
// returns nil.
func (h *PoolHealthMonitor) RecordSwapError(swapErr *types.SwapError) *types.HealthEvent {
	dir := types.SwapDirection{From: swapErr.From, To: swapErr.To}
	now := h.clock.Time()

	w := h.windowFor(swapErr.Pool, dir)

	w.mu.Lock()
	if w.count == 0 {
		w.firstAt = now
	}
	w.count++
	snapshot := quarantineSnapshot{
		ConsecutiveErrors: w.count,
		WindowSeconds:     now.Sub(w.firstAt).Seconds(),
	}
	w.mu.Unlock()

	matched, err := h.eval.Evaluate(snapshot)
	if err != nil {
		logger.Warn("health: evaluating quarantine predicate", "err", err)
		return nil
	}
	if !matched {
		return nil
	}

	h.market.SetDirectionInert(swapErr.Pool, dir)
	h.quarantines.Add(1)
	logger.Info("health: quarantined pool direction", "pool", swapErr.Pool, "direction", dir, "errors", snapshot.ConsecutiveErrors)
	return &types.HealthEvent{
		Kind:      types.HealthPoolQuarantined,
		Pool:      swapErr.Pool,
		Direction: dir,
		Detail:    fmt.Sprintf("%d consecutive errors within %.0fs", snapshot.ConsecutiveErrors, snapshot.WindowSeconds),
	}
}

// RecordSwapSuccess resets the (pool, direction) error window and lifts
// any active quarantine, so a pool that recovers rejoins the candidate
// set the next search pass considers.
func (h *PoolHealthMonitor) RecordSwapSuccess(pool types.PoolID, dir types.SwapDirection) {
	h.mu.Lock()
	byPool, ok := h.windows[pool]
	h.mu.Unlock()
	if ok {
		if w, ok := byPool[dir]; ok {
			w.mu.Lock()
			w.count = 0
			w.mu.Unlock()
		}
	}
	h.market.ClearDirectionInert(pool, dir)
}

func (h *PoolHealthMonitor) windowFor(pool types.PoolID, dir types.SwapDirection) *errorWindow {
	h.mu.Lock()
	defer h.mu.Unlock()
	byPool, ok := h.windows[pool]
	if !ok {
		byPool = make(map[types.SwapDirection]*errorWindow)
		h.windows[pool] = byPool
	}
	w, ok := byPool[dir]
	if !ok {
		w = &errorWindow{}
		byPool[dir] = w
	}
	return w
}
