// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"hash"
	"hash/fnv"
	"sync"
	"time"

	"github.com/holiman/bloomfilter/v2"
	"github.com/luxfi/geth/common"
)

// dedupWindow default, per §4.2: "dedup window of >=10 minutes by block
// hash".
const defaultDedupWindow = 10 * time.Minute

// hashDedup guarantees per-hash idempotence across however many times an
// adaptor observes the same block hash (e.g. a websocket resubscription
// replaying the last few heads). It layers a bloom filter fast-path in
// front of an exact, time-windowed map — the map alone is
// node_block_hash_worker.rs's own approach (a HashMap<BlockHash, Utc>
// pruned on every insert); the bloom filter skips the map lookup for the
// "definitely new" case. Both are guarded by the same mutex, which every
// Seen call takes.
type hashDedup struct {
	mu     sync.Mutex
	seen   map[common.Hash]time.Time
	window time.Duration
	filter *bloomfilter.Filter
	hasher hash.Hash64
}

// newHashDedup builds a dedup window sized for approxItems expected
// distinct hashes within window (0 uses the §4.2 default).
func newHashDedup(approxItems uint64, window time.Duration) *hashDedup {
	if window <= 0 {
		window = defaultDedupWindow
	}
	if approxItems == 0 {
		approxItems = 4096
	}
	filter, err := bloomfilter.New(approxItems*20, 7)
	if err != nil {
		// Only fails on degenerate (m,k); fall back to a filter sized
		// purely off the exact map, which still provides correctness.
		filter, _ = bloomfilter.New(1<<20, 7)
	}
	return &hashDedup{
		seen:   make(map[common.Hash]time.Time),
		window: window,
		filter: filter,
		hasher: fnv.New64a(),
	}
}

// Seen reports whether hash has already been observed within the
// retention window, and records it as seen if not. Callers use it to skip
// re-emitting header/block/logs/state-diff for a hash already processed.
func (d *hashDedup) Seen(h common.Hash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.hasher.Reset()
	d.hasher.Write(h[:])

	if !d.filter.Contains(d.hasher) {
		d.filter.Add(d.hasher)
		d.seen[h] = time.Now()
		d.evictLocked()
		return false
	}

	if _, ok := d.seen[h]; ok {
		return true
	}
	// Bloom false positive: not actually seen before.
	d.seen[h] = time.Now()
	d.evictLocked()
	return false
}

func (d *hashDedup) evictLocked() {
	cutoff := time.Now().Add(-d.window)
	for h, t := range d.seen {
		if t.Before(cutoff) {
			delete(d.seen, h)
		}
	}
}
