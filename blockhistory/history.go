// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blockhistory maintains a reorg-tolerant ring of recent blocks and
// their per-block snapshot databases (§4.3). It is the home of the single
// canonical tip: C2 adaptors feed it headers/blocks/logs/state diffs, and
// C7/C8 read the canonical chain's snapshot DB through it.
package blockhistory

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/backrun/types"
)

var logger = log.New("component", "blockhistory")

// DefaultDepth is how many recent blocks are retained before eviction.
const DefaultDepth = 10

// SnapshotDB is the capability BlockHistory needs from a MarketState
// snapshot: a cheap copy-on-write clone and the ability to apply a
// block's post-state diff on top of it. Declared here (rather than
// imported from marketstate) so blockhistory has no dependency on the
// state-database package; marketstate.State implements this interface.
type SnapshotDB interface {
	Clone() SnapshotDB
	ApplyStateUpdate(diff types.GethStateUpdate) error
}

// Entry is one block's accumulated view (§3 BlockHistoryEntry): header is
// mandatory once added, the rest arrive as their respective C2 messages
// land and may still be nil.
type Entry struct {
	Header      types.BlockHeader
	Block       *types.BlockUpdate
	Logs        *types.BlockLogs
	StateUpdate *types.GethStateUpdate
	SnapshotDB  SnapshotDB
}

// History is the bounded, reorg-aware block ring described in §4.3.
type History struct {
	mu      sync.RWMutex
	depth   uint64
	entries map[common.Hash]*Entry
	tip     common.Hash
	tipNum  uint64
}

// New builds a History retaining at most depth entries below the tip.
func New(depth uint64) *History {
	if depth == 0 {
		depth = DefaultDepth
	}
	return &History{
		depth:   depth,
		entries: make(map[common.Hash]*Entry),
	}
}

// Get returns the entry for hash, if still retained.
func (h *History) Get(hash common.Hash) (*Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[hash]
	return e, ok
}

// Tip returns the current canonical tip hash and number.
func (h *History) Tip() (common.Hash, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tip, h.tipNum
}

func (h *History) entryLocked(hash common.Hash) *Entry {
	e, ok := h.entries[hash]
	if !ok {
		e = &Entry{}
		h.entries[hash] = e
	}
	return e
}

// AddBlockHeader inserts or updates a header and advances the canonical tip
// when the new header extends it or has a strictly greater number (§4.3).
// It returns prevTip (the tip before this call, for ReorgTo's ancestor
// walk) and reorged=true if the new header does not chain directly from
// prevTip — i.e. a reorg occurred and the caller should follow up with
// ReorgTo(prevTip, header.Hash) once the new branch's entries all carry
// their state updates.
func (h *History) AddBlockHeader(header types.BlockHeader) (reorged bool, prevTip common.Hash, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entryLocked(header.Hash)
	e.Header = header

	prevTip = h.tip
	extendsTip := header.ParentHash == h.tip
	becomesTip := h.tip == (common.Hash{}) || header.Number > h.tipNum || extendsTip
	if !becomesTip {
		h.evictLocked()
		return false, prevTip, nil
	}

	reorged = prevTip != (common.Hash{}) && !extendsTip && prevTip != header.Hash
	h.tip = header.Hash
	h.tipNum = header.Number
	h.evictLocked()
	return reorged, prevTip, nil
}

// AddBlock merges a fetched block body into the entry for hash.
func (h *History) AddBlock(block types.BlockUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(block.Hash)
	b := block
	e.Block = &b
}

// AddLogs merges fetched logs into the entry for hash.
func (h *History) AddLogs(hash common.Hash, logs types.BlockLogs) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(hash)
	l := logs
	e.Logs = &l
}

// AddStateUpdate merges a post-state diff into the entry for hash.
func (h *History) AddStateUpdate(hash common.Hash, diff types.GethStateUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(hash)
	d := diff
	e.StateUpdate = &d
}

// ApplyNextBlock clones prevDB, applies the entry's state_update on top of
// it, stores the resulting snapshot inside the entry, and returns it
// (§4.3). entry must already carry a state_update.
func ApplyNextBlock(prevDB SnapshotDB, entry *Entry) (SnapshotDB, error) {
	if entry.StateUpdate == nil {
		return nil, fmt.Errorf("blockhistory: entry %s has no state update to apply", entry.Header.Hash)
	}
	next := prevDB.Clone()
	if err := next.ApplyStateUpdate(*entry.StateUpdate); err != nil {
		return nil, fmt.Errorf("blockhistory: apply state update for %s: %w", entry.Header.Hash, err)
	}
	entry.SnapshotDB = next
	return next, nil
}

// ReorgTo locates the common ancestor of newTip and the chain that was
// canonical up to oldTip (the prevTip AddBlockHeader reported alongside
// reorged=true), then reapplies the new chain forward from that
// ancestor's snapshot DB, storing a snapshot on every entry along the way.
// It returns the new tip's snapshot DB. Every entry walked must already
// carry a state_update and every entry but the ancestor must be known —
// callers invoke this only after the adaptor has delivered the missing
// headers for the new branch.
func (h *History) ReorgTo(oldTip, newTip common.Hash) (SnapshotDB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	chain, ancestor, err := h.pathToAncestorLocked(oldTip, newTip)
	if err != nil {
		return nil, err
	}

	ancestorEntry, ok := h.entries[ancestor]
	if !ok || ancestorEntry.SnapshotDB == nil {
		return nil, fmt.Errorf("blockhistory: no snapshot db at common ancestor %s", ancestor)
	}

	db := ancestorEntry.SnapshotDB
	for i := len(chain) - 1; i >= 0; i-- {
		entry := h.entries[chain[i]]
		db, err = ApplyNextBlock(db, entry)
		if err != nil {
			return nil, err
		}
	}

	h.tip = newTip
	if e, ok := h.entries[newTip]; ok {
		h.tipNum = e.Header.Number
	}
	logger.Info("blockhistory: reorg applied", "ancestor", ancestor, "newTip", newTip, "depth", len(chain))
	return db, nil
}

// pathToAncestorLocked walks parent pointers from hash back to the first
// entry on the chain that was canonical up to oldTip (reachable by walking
// parent hashes from oldTip). It returns the chain from (but not
// including) the ancestor up to and including hash, in newest-first order.
func (h *History) pathToAncestorLocked(oldTip, hash common.Hash) ([]common.Hash, common.Hash, error) {
	canonical := make(map[common.Hash]bool)
	for cur := oldTip; cur != (common.Hash{}); {
		canonical[cur] = true
		e, ok := h.entries[cur]
		if !ok {
			break
		}
		cur = e.Header.ParentHash
	}

	var chain []common.Hash
	cur := hash
	for {
		if canonical[cur] {
			return chain, cur, nil
		}
		chain = append(chain, cur)
		e, ok := h.entries[cur]
		if !ok {
			return nil, common.Hash{}, fmt.Errorf("blockhistory: chain for %s does not connect to a retained ancestor", hash)
		}
		cur = e.Header.ParentHash
	}
}

// evictLocked drops entries whose number is below tip.number - depth
// (§4.3's eviction invariant). Must be called with h.mu held.
func (h *History) evictLocked() {
	if h.tipNum < h.depth {
		return
	}
	floor := h.tipNum - h.depth
	for hash, e := range h.entries {
		if e.Header.Number != 0 && e.Header.Number < floor {
			delete(h.entries, hash)
		}
	}
}
