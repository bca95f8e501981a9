package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammEngine/internal/amm"
)

// Ledger is the balance service consumed by the engine.
type Ledger interface {
	Snapshot(ctx context.Context, pool amm.Pool) (amm.Snapshot, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (uint64, error)
	// Apply commits every movement or none of them.
	Apply(ctx context.Context, movements []Movement) error
	// Update reads the pool's snapshot, hands it to fn and applies the
	// movements fn returns, all in one unit of work. No other Update on the
	// pool can observe the snapshot before those movements land.
	Update(ctx context.Context, pool amm.Pool, fn UpdateFunc) error
}

// UpdateFunc prices an operation. view reads balances in the same unit of
// work as snap. Returning no movements applies nothing.
type UpdateFunc func(snap amm.Snapshot, view Loader) ([]Movement, error)

// Memory is an in-process ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[Account]uint64
	supplies map[common.Address]uint64
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[Account]uint64),
		supplies: make(map[common.Address]uint64),
	}
}

func (m *Memory) Snapshot(ctx context.Context, pool amm.Pool) (amm.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ReadSnapshot(ctx, memoryLoader{m}, pool)
}

func (m *Memory) BalanceOf(_ context.Context, token, owner common.Address) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[Account{Token: token, Owner: owner}], nil
}

// Supply returns the total minted quantity of a token.
func (m *Memory) Supply(token common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supplies[token]
}

func (m *Memory) Apply(ctx context.Context, movements []Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(ctx, movements)
}

func (m *Memory) Update(ctx context.Context, pool amm.Pool, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := ReadSnapshot(ctx, memoryLoader{m}, pool)
	if err != nil {
		return err
	}
	movements, err := fn(snap, memoryLoader{m})
	if err != nil {
		return err
	}
	if len(movements) == 0 {
		return nil
	}
	return m.applyLocked(ctx, movements)
}

func (m *Memory) applyLocked(ctx context.Context, movements []Movement) error {
	plan, err := PlanMovements(ctx, memoryLoader{m}, movements)
	if err != nil {
		return err
	}
	for account, v := range plan.Balances {
		m.balances[account] = v
	}
	for token, v := range plan.Supplies {
		m.supplies[token] = v
	}
	return nil
}

// memoryLoader reads the maps directly; callers hold m.mu.
type memoryLoader struct {
	m *Memory
}

func (l memoryLoader) LoadBalance(_ context.Context, account Account) (uint64, error) {
	return l.m.balances[account], nil
}

func (l memoryLoader) LoadSupply(_ context.Context, token common.Address) (uint64, error) {
	return l.m.supplies[token], nil
}
