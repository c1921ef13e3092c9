package updater

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// lockTable stripes per-entity read/write locks over a fixed set of
// mutexes. Two entities may share a stripe; an entity never maps to two.
type lockTable struct {
	stripes []sync.RWMutex
	mask    uint64
}

func newLockTable(n int) *lockTable {
	size := 1
	for size < n {
		size <<= 1
	}
	return &lockTable{
		stripes: make([]sync.RWMutex, size),
		mask:    uint64(size - 1),
	}
}

// get returns the lock guarding key.
func (t *lockTable) get(key string) *sync.RWMutex {
	return &t.stripes[xxhash.Sum64String(key)&t.mask]
}
