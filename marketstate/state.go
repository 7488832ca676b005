// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package marketstate is the layered KV state (C5, §4.5) every pool
// simulation reads and every committed block diff writes into: a base
// layer that fetches through to the node on first read and caches
// thereafter, and copy-on-write overlays simulation clones apply
// candidate transactions to and discard.
package marketstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/backrun/blockhistory"
	"github.com/luxfi/backrun/types"
)

var logger = log.New("component", "marketstate")

const defaultCodeCacheEntries = 4096
const defaultSlotCacheBytes = 32 * 1024 * 1024

// BaseTransport is the on-demand fetch-through surface the root layer
// calls on a tracked-but-unread (addr, slot)/(addr) the overlay chain has
// no entry for. chainio's RPCClient satisfies a superset of this; a small
// adaptor narrows it for marketstate's use.
type BaseTransport interface {
	GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	GetBalance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	GetCode(ctx context.Context, addr common.Address) ([]byte, error)
}

// accountOverlay is the set of overrides one layer holds for one address;
// absent fields fall through to the parent layer or, at the root, to
// BaseTransport.
type accountOverlay struct {
	nonce   *uint64
	balance *uint256.Int
	code    []byte
	hasCode bool
	storage map[common.Hash]common.Hash
}

// trackSet is the tracking-install/force-insert configuration shared by
// every layer descended from one root: "which addresses and slots is the
// commit path allowed to write" (§4.5).
type trackSet struct {
	mu       sync.RWMutex
	account  map[common.Address]bool
	slot     map[common.Address]map[common.Hash]bool
	forceAll map[common.Address]bool
}

func newTrackSet() *trackSet {
	return &trackSet{
		account:  make(map[common.Address]bool),
		slot:     make(map[common.Address]map[common.Hash]bool),
		forceAll: make(map[common.Address]bool),
	}
}

func (t *trackSet) trackAccount(addr common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.account[addr] = true
}

func (t *trackSet) trackSlot(addr common.Address, slot common.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.account[addr] = true
	slots, ok := t.slot[addr]
	if !ok {
		slots = make(map[common.Hash]bool)
		t.slot[addr] = slots
	}
	slots[slot] = true
}

func (t *trackSet) setForceInsert(addr common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceAll[addr] = true
}

func (t *trackSet) isForced(addr common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.forceAll[addr]
}

func (t *trackSet) isAccountTracked(addr common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.forceAll[addr] || t.account[addr]
}

func (t *trackSet) isSlotTracked(addr common.Address, slot common.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.forceAll[addr] {
		return true
	}
	return t.slot[addr][slot]
}

// root holds everything shared across every layer cloned from one base
// State: the transport, the tracking configuration, and the fetch-through
// caches. Caches are keyed on raw address||slot bytes so a miss in one
// simulation clone is satisfied by another clone's earlier fetch.
type root struct {
	ctx       context.Context
	transport BaseTransport
	track     *trackSet

	codeCache *lru.Cache
	slotCache *fastcache.Cache
	group     singleflight.Group
}

// State is one layer of the KV: either the root (backed by BaseTransport)
// or a clone layered on top of a parent. Reads walk from this layer up to
// the root, falling through to BaseTransport only at the root. Writes
// (ApplyStateUpdate, or a simulation's direct overlay mutation) land only
// in this layer.
type State struct {
	r      *root
	parent *State

	mu       sync.RWMutex
	accounts map[common.Address]*accountOverlay
}

// New builds a root State fetching through transport. ctx bounds every
// on-demand fetch issued for the lifetime of this root and its clones.
func New(ctx context.Context, transport BaseTransport) *State {
	codeCache, err := lru.New(defaultCodeCacheEntries)
	if err != nil {
		// lru.New only errors on size <= 0, which defaultCodeCacheEntries never is.
		panic(fmt.Sprintf("marketstate: building code cache: %v", err))
	}
	return &State{
		r: &root{
			ctx:       ctx,
			transport: transport,
			track:     newTrackSet(),
			codeCache: codeCache,
			slotCache: fastcache.New(defaultSlotCacheBytes),
		},
		accounts: make(map[common.Address]*accountOverlay),
	}
}

// TrackAccount announces interest in an address's nonce/balance/code,
// per §4.5's "tracking install" write path.
func (s *State) TrackAccount(addr common.Address) {
	s.r.track.trackAccount(addr)
}

// TrackSlot announces interest in one storage slot of addr.
func (s *State) TrackSlot(addr common.Address, slot common.Hash) {
	s.r.track.trackSlot(addr, slot)
}

// SetForceInsert marks addr as force-insert: the commit path writes its
// diffs unconditionally, bypassing the tracked-slot check (§4.5).
func (s *State) SetForceInsert(addr common.Address) {
	s.r.track.setForceInsert(addr)
}

// Clone returns a copy-on-write layer on top of s: reads fall through to
// s (and beyond) until overwritten here, writes land only in the clone.
// Discarding a clone (letting it go out of scope) never touches s.
func (s *State) Clone() blockhistory.SnapshotDB {
	return &State{
		r:        s.r,
		parent:   s,
		accounts: make(map[common.Address]*accountOverlay),
	}
}

func (s *State) overlayForWrite(addr common.Address) *accountOverlay {
	ov, ok := s.accounts[addr]
	if !ok {
		ov = &accountOverlay{storage: make(map[common.Hash]common.Hash)}
		s.accounts[addr] = ov
	}
	return ov
}

// ApplyStateUpdate commits diff's per-address changes onto this layer,
// honoring §4.5's commit-path rule: force-insert addresses write
// unconditionally, tracked addresses write their tracked slots and any
// nonce/balance/code change, anything else is ignored.
func (s *State) ApplyStateUpdate(diff types.GethStateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, update := range diff {
		if update == nil {
			continue
		}
		forced := s.r.track.isForced(addr)
		tracked := forced || s.r.track.isAccountTracked(addr)
		if !tracked {
			continue
		}

		ov := s.overlayForWrite(addr)
		if update.Nonce != nil {
			ov.nonce = update.Nonce
		}
		if update.Balance != nil {
			ov.balance = update.Balance
		}
		if update.Code != nil {
			ov.code = update.Code
			ov.hasCode = true
		}
		for slot, value := range update.Storage {
			if forced || s.r.track.isSlotTracked(addr, slot) {
				ov.storage[slot] = value
			}
		}
	}
	return nil
}

// GetState implements types.StateReader: §3 invariant requires a tracked
// miss to fetch through and cache, an untracked miss to still resolve
// against the base (pools may read slots the tracking config never
// explicitly declared, e.g. a newly discovered pool's reserves).
func (s *State) GetState(addr common.Address, slot common.Hash) (common.Hash, error) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		ov, ok := cur.accounts[addr]
		if ok {
			if v, ok2 := ov.storage[slot]; ok2 {
				cur.mu.RUnlock()
				return v, nil
			}
		}
		cur.mu.RUnlock()
	}
	return s.r.fetchSlot(addr, slot)
}

// GetBalance implements types.StateReader.
func (s *State) GetBalance(addr common.Address) (*uint256.Int, error) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		ov, ok := cur.accounts[addr]
		if ok && ov.balance != nil {
			bal := new(uint256.Int).Set(ov.balance)
			cur.mu.RUnlock()
			return bal, nil
		}
		cur.mu.RUnlock()
	}
	return s.r.fetchBalance(addr)
}

// GetCode implements types.StateReader.
func (s *State) GetCode(addr common.Address) ([]byte, error) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		ov, ok := cur.accounts[addr]
		if ok && ov.hasCode {
			code := ov.code
			cur.mu.RUnlock()
			return code, nil
		}
		cur.mu.RUnlock()
	}
	return s.r.fetchCode(addr)
}

func slotCacheKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, common.AddressLength+common.HashLength)
	key = append(key, addr[:]...)
	key = append(key, slot[:]...)
	return key
}

func (r *root) fetchSlot(addr common.Address, slot common.Hash) (common.Hash, error) {
	if r.transport == nil {
		return common.Hash{}, types.ErrNoDB
	}
	key := slotCacheKey(addr, slot)
	if cached, ok := r.slotCache.HasGet(nil, key); ok {
		return common.BytesToHash(cached), nil
	}

	v, err, _ := r.group.Do(string(key), func() (interface{}, error) {
		val, err := r.transport.GetStorageAt(r.ctx, addr, slot)
		if err != nil {
			return common.Hash{}, err
		}
		r.slotCache.Set(key, val[:])
		return val, nil
	})
	if err != nil {
		logger.Warn("marketstate: base db storage fetch failed", "addr", addr, "slot", slot, "err", err)
		return common.Hash{}, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	return v.(common.Hash), nil
}

func (r *root) fetchBalance(addr common.Address) (*uint256.Int, error) {
	if r.transport == nil {
		return nil, types.ErrNoDB
	}
	v, err, _ := r.group.Do("balance:"+addr.Hex(), func() (interface{}, error) {
		return r.transport.GetBalance(r.ctx, addr)
	})
	if err != nil {
		logger.Warn("marketstate: base db balance fetch failed", "addr", addr, "err", err)
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	return v.(*uint256.Int), nil
}

func (r *root) fetchCode(addr common.Address) ([]byte, error) {
	if r.transport == nil {
		return nil, types.ErrNoDB
	}
	if cached, ok := r.codeCache.Get(addr); ok {
		return cached.([]byte), nil
	}
	v, err, _ := r.group.Do("code:"+addr.Hex(), func() (interface{}, error) {
		code, err := r.transport.GetCode(r.ctx, addr)
		if err != nil {
			return nil, err
		}
		r.codeCache.Add(addr, code)
		return code, nil
	})
	if err != nil {
		logger.Warn("marketstate: base db code fetch failed", "addr", addr, "err", err)
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	return v.([]byte), nil
}
