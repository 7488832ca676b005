// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/backrun/types"
)

var loaderLogger = log.New("component", "pool/loader")

// PoolRegistry is the subset of market.Market a loader needs: idempotent
// pool registration (re-adding an already-known PoolID is a no-op, per
// the fetch contract) without pulling in the market package and risking
// an import cycle.
type PoolRegistry interface {
	AddPool(p types.Pool) error
	GetPool(id types.PoolID) (types.PoolWrapper, bool)
}

// ViewCaller is the on-chain read surface a protocol-sweep loader needs
// to walk a factory's pool_list/pool_count, and a log-driven loader needs
// to read a newly sighted pair's immutable token0/token1. Declared here
// rather than imported from chainio to keep the dependency pointed one
// way.
type ViewCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Builder constructs a concrete Pool from its on-chain address, issuing
// whatever view calls it needs (token0/token1, fee tier, and so on) via
// caller.
type Builder func(ctx context.Context, caller ViewCaller, address common.Address) (types.Pool, error)

// LogSignature pairs the keccak256 topic0 of a protocol's pair/pool
// creation event with the Builder that turns a sighted address into a
// simulatable Pool.
type LogSignature struct {
	Topic0  common.Hash
	Builder Builder
}

// LogDrivenLoader classifies each new log against a table of known
// creation-event signatures; on first sighting of a pool it has not seen,
// it builds and registers it. Mirrors the "classify via per-protocol
// event signatures, enqueue FetchAndAddPools on first sighting" loader
// strategy.
type LogDrivenLoader struct {
	registry   PoolRegistry
	caller     ViewCaller
	signatures map[common.Hash]Builder
}

func NewLogDrivenLoader(registry PoolRegistry, caller ViewCaller, signatures []LogSignature) *LogDrivenLoader {
	table := make(map[common.Hash]Builder, len(signatures))
	for _, s := range signatures {
		table[s.Topic0] = s.Builder
	}
	return &LogDrivenLoader{registry: registry, caller: caller, signatures: table}
}

// HandleLogs classifies every log in a block's log set, building and
// registering any newly created pool it recognizes. Logs whose topic0
// isn't in the signature table are ignored; a log naming a pool address
// already registered is skipped by a registry GetPool check before the
// builder runs, so no separate "seen" set is kept here.
func (l *LogDrivenLoader) HandleLogs(ctx context.Context, logs types.BlockLogs) (registered int, err error) {
	for _, entry := range logs.Logs {
		if len(entry.Topics) == 0 {
			continue
		}
		builder, ok := l.signatures[entry.Topics[0]]
		if !ok {
			continue
		}
		poolAddr, ok := poolAddressFromCreationLog(entry)
		if !ok {
			continue
		}
		if _, exists := l.registry.GetPool(types.NewPoolIDFromAddress(poolAddr)); exists {
			continue
		}
		p, err := builder(ctx, l.caller, poolAddr)
		if err != nil {
			loaderLogger.Warn("log-driven loader: build failed", "address", poolAddr, "err", err)
			continue
		}
		if err := l.registry.AddPool(p); err != nil {
			return registered, fmt.Errorf("pool/loader: registering %s: %w", poolAddr, err)
		}
		registered++
	}
	return registered, nil
}

// poolAddressFromCreationLog extracts the deployed pool/pair address from
// a factory creation event. Every well-known factory (UniswapV2's
// PairCreated, UniswapV3's PoolCreated) emits the new address as the
// non-indexed tail word of the log data, so this reads the last 32-byte
// word rather than a fixed offset tied to one specific event's full
// argument list.
func poolAddressFromCreationLog(entry types.Log) (common.Address, bool) {
	if len(entry.Data) < 32 {
		return common.Address{}, false
	}
	word := entry.Data[len(entry.Data)-32:]
	var addr common.Address
	copy(addr[:], word[12:])
	return addr, true
}

// ProtocolSweepSource is the minimal factory read surface a protocol
// sweep needs: a pool count and indexed accessor, the shape Curve's
// registry and similar factories expose.
type ProtocolSweepSource interface {
	PoolCount(ctx context.Context) (uint64, error)
	PoolAt(ctx context.Context, index uint64) (common.Address, error)
}

// ProtocolSweepLoader performs the one-shot startup walk of a factory's
// full pool list (e.g. Curve's registry), building and registering every
// pool it has not already seen.
type ProtocolSweepLoader struct {
	registry PoolRegistry
	caller   ViewCaller
	source   ProtocolSweepSource
	builder  Builder
	threads  int
}

// NewProtocolSweepLoader builds a loader that walks the source serially.
// Use WithThreads to fan the per-index view calls out across a bounded
// worker pool instead, the way pools_loading.threads configures startup.
func NewProtocolSweepLoader(registry PoolRegistry, caller ViewCaller, source ProtocolSweepSource, builder Builder) *ProtocolSweepLoader {
	return &ProtocolSweepLoader{registry: registry, caller: caller, source: source, builder: builder, threads: 1}
}

// WithThreads sets the number of pool indexes built concurrently during
// Sweep. threads<=1 keeps the serial walk.
func (l *ProtocolSweepLoader) WithThreads(threads int) *ProtocolSweepLoader {
	if threads > 1 {
		l.threads = threads
	}
	return l
}

// Sweep walks index 0..count-1, registering every pool the builder can
// construct. A single pool's build failure is logged and skipped rather
// than aborting the whole sweep. When threads>1, view calls and pool
// construction for distinct indexes run on a bounded worker pool (each
// worker still registers through the same PoolRegistry, whose AddPool is
// safe for concurrent callers); registration order is not preserved, only
// the index space covered.
func (l *ProtocolSweepLoader) Sweep(ctx context.Context) (registered int, err error) {
	count, err := l.source.PoolCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("pool/loader: reading pool_count: %w", err)
	}

	if l.threads <= 1 {
		for i := uint64(0); i < count; i++ {
			ok, err := l.sweepOne(ctx, i)
			if err != nil {
				return registered, err
			}
			if ok {
				registered++
			}
		}
		return registered, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, l.threads)
	for i := uint64(0); i < count; i++ {
		i := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			ok, err := l.sweepOne(gctx, i)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				registered++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return registered, err
	}
	return registered, nil
}

// sweepOne builds and registers the pool at index i, if any; a read or
// build failure is logged and treated as "nothing to register" rather
// than an error, matching the serial path's behavior.
func (l *ProtocolSweepLoader) sweepOne(ctx context.Context, i uint64) (bool, error) {
	addr, err := l.source.PoolAt(ctx, i)
	if err != nil {
		loaderLogger.Warn("protocol sweep: pool_list read failed", "index", i, "err", err)
		return false, nil
	}
	if _, exists := l.registry.GetPool(types.NewPoolIDFromAddress(addr)); exists {
		return false, nil
	}
	p, err := l.builder(ctx, l.caller, addr)
	if err != nil {
		loaderLogger.Warn("protocol sweep: build failed", "address", addr, "err", err)
		return false, nil
	}
	if err := l.registry.AddPool(p); err != nil {
		return false, fmt.Errorf("pool/loader: registering %s: %w", addr, err)
	}
	return true, nil
}

// HistoryLogSource supplies the logs of one historical block by hash, the
// surface chainio.RPCClient already exposes (LogsAtBlockHash).
type HistoryLogSource interface {
	LogsAtBlockHash(ctx context.Context, hash common.Hash) ([]types.Log, error)
}

// historySweepWindow is the fixed backfill window size named by the
// loader strategy.
const historySweepWindow = 5

// HistorySweepLoader backfills pool discovery by walking a caller-supplied
// list of recent block headers in fixed-size windows, reusing
// LogDrivenLoader's classification table so a pool sighted in history is
// registered exactly the way a live one would be.
type HistorySweepLoader struct {
	logs   HistoryLogSource
	loader *LogDrivenLoader
}

func NewHistorySweepLoader(logs HistoryLogSource, loader *LogDrivenLoader) *HistorySweepLoader {
	return &HistorySweepLoader{logs: logs, loader: loader}
}

// Backfill walks headers in the order given, fetching logs in windows of
// historySweepWindow and feeding each window through the same log
// classification the live path uses.
func (h *HistorySweepLoader) Backfill(ctx context.Context, headers []types.BlockHeader) (registered int, err error) {
	for start := 0; start < len(headers); start += historySweepWindow {
		end := start + historySweepWindow
		if end > len(headers) {
			end = len(headers)
		}
		for _, hdr := range headers[start:end] {
			logs, err := h.logs.LogsAtBlockHash(ctx, hdr.Hash)
			if err != nil {
				return registered, fmt.Errorf("pool/loader: history sweep fetching logs at %s: %w", hdr.Hash, err)
			}
			n, err := h.loader.HandleLogs(ctx, types.BlockLogs{Hash: hdr.Hash, Logs: logs})
			if err != nil {
				return registered, err
			}
			registered += n
		}
	}
	return registered, nil
}
