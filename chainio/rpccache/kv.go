// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpccache

import (
	"github.com/luxfi/database"
)

// KVStore is the pluggable alternative backing spec.md §6 allows: mirror
// cached RPC responses into a database.Database a process already has
// open — the same store type the teacher's plugin/evm package threads
// through as its chain database — instead of keeping a second on-disk
// file tree just for this cache.
type KVStore struct {
	db database.Database
}

var _ Store = (*KVStore)(nil)

// NewKVStore wraps an already-open database.Database as an rpccache Store.
func NewKVStore(db database.Database) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) Get(method string, index uint64) ([]byte, bool, error) {
	key := []byte(cacheKey(method, index))
	has, err := s.db.Has(key)
	if err != nil {
		return nil, false, err
	}
	if !has {
		return nil, false, nil
	}
	data, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *KVStore) Put(method string, index uint64, data []byte) error {
	return s.db.Put([]byte(cacheKey(method, index)), data)
}

func (s *KVStore) Close() error {
	return s.db.Close()
}
