package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammEngine/internal/amm"
)

var (
	ErrPoolExists   = errors.New("pool already exists")
	ErrPoolNotFound = errors.New("pool not found")
)

// Store persists pool configurations keyed by the ordered token pair.
type Store interface {
	// InsertPool must fail with ErrPoolExists when the pair is taken.
	InsertPool(ctx context.Context, pool amm.Pool) error
	GetPool(ctx context.Context, tokenA, tokenB common.Address) (amm.Pool, bool, error)
	ListPools(ctx context.Context) ([]amm.Pool, error)
}

type pairKey struct {
	a common.Address
	b common.Address
}

// MemoryStore keeps pools in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	pools map[pairKey]amm.Pool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: make(map[pairKey]amm.Pool)}
}

func (s *MemoryStore) InsertPool(_ context.Context, pool amm.Pool) error {
	key := pairKey{a: pool.TokenA, b: pool.TokenB}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[key]; ok {
		return ErrPoolExists
	}
	s.pools[key] = pool
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, tokenA, tokenB common.Address) (amm.Pool, bool, error) {
	s.mu.RLock()
	pool, ok := s.pools[pairKey{a: tokenA, b: tokenB}]
	s.mu.RUnlock()
	return pool, ok, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]amm.Pool, error) {
	s.mu.RLock()
	out := make([]amm.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, pool)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out, nil
}
