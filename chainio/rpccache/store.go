// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpccache is the optional persisted-state layer spec.md §6
// describes: "an optional cache folder for node RPC responses uses files
// named `<method>_<index_hex>.json`". Two interchangeable backings
// implement the same Store contract: BillyStore, an append-only
// disk-blob store for a standalone cache folder, and KVStore, a thin
// mirror onto a process's own database.Database when it already has one
// open and would rather not keep a second file tree.
package rpccache

import (
	"encoding/binary"
	"fmt"
)

// Store is the cache contract both backings satisfy: look up a cached
// response for (method, index) and, on a miss, record one.
type Store interface {
	Get(method string, index uint64) ([]byte, bool, error)
	Put(method string, index uint64, data []byte) error
	Close() error
}

// cacheKey reproduces spec.md §6's naming scheme (`<method>_<index_hex>.json`)
// as the lookup key both backings index by — BillyStore in its in-memory
// key->id map, KVStore as the literal key bytes written to the database.
func cacheKey(method string, index uint64) string {
	return fmt.Sprintf("%s_%x.json", method, index)
}

// splitKey/joinKey frame a cache key alongside its payload inside a single
// stored record: a 2-byte big-endian key length, the key itself, then the
// response bytes. BillyStore needs this framing since billy's blob store
// has no native key lookup of its own (see BillyStore's doc comment).
// KVStore does not use them: it writes the bare response bytes under the
// cache key as the database key.
func joinKey(key string, data []byte) []byte {
	buf := make([]byte, 0, 2+len(key)+len(data))
	var klen [2]byte
	binary.BigEndian.PutUint16(klen[:], uint16(len(key)))
	buf = append(buf, klen[:]...)
	buf = append(buf, key...)
	buf = append(buf, data...)
	return buf
}

func splitKey(record []byte) (string, []byte, bool) {
	if len(record) < 2 {
		return "", nil, false
	}
	klen := int(binary.BigEndian.Uint16(record[:2]))
	if len(record) < 2+klen {
		return "", nil, false
	}
	return string(record[2 : 2+klen]), record[2+klen:], true
}
