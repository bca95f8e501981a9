package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// lockTable hands out one mutex per pool address. Entries are never removed;
// the number of pools is small and fixed at creation.
type lockTable struct {
	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[common.Address]*sync.Mutex)}
}

func (t *lockTable) lock(pool common.Address) func() {
	t.mu.Lock()
	l, ok := t.locks[pool]
	if !ok {
		l = &sync.Mutex{}
		t.locks[pool] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
