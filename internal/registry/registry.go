// Package registry creates pools exactly once per ordered token pair and
// serves their immutable configuration to every later operation.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammEngine/internal/amm"
)

type Registry struct {
	store     Store
	programID common.Address
	logger    *zap.Logger

	// mu serializes creation so the exists-check and insert cannot race
	// within one process; stores enforce uniqueness across processes.
	mu sync.Mutex
}

func New(store Store, programID common.Address, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, programID: programID, logger: logger}
}

// ProgramID is the address every pool identity is derived from.
func (r *Registry) ProgramID() common.Address {
	return r.programID
}

// CreatePool registers a new pool for the ordered pair. The fee rate comes
// from the variant table and is never changed afterwards.
func (r *Registry) CreatePool(ctx context.Context, tokenA, tokenB common.Address, variant amm.Variant) (amm.Pool, error) {
	pool, err := amm.NewPool(tokenA, tokenB, variant)
	if err != nil {
		return amm.Pool{}, err
	}

	addrs, err := DeriveAddresses(r.programID, tokenA, tokenB)
	if err != nil {
		return amm.Pool{}, fmt.Errorf("derive addresses: %w", err)
	}
	pool.Address = addrs.Pool
	pool.ShareToken = addrs.ShareToken
	pool.VaultA = addrs.VaultA
	pool.VaultB = addrs.VaultB
	pool.Authority = addrs.Authority
	pool.Bump = addrs.Bump

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok, err := r.store.GetPool(ctx, tokenA, tokenB); err != nil {
		return amm.Pool{}, fmt.Errorf("load pool: %w", err)
	} else if ok {
		return amm.Pool{}, fmt.Errorf("%w: %s/%s", ErrPoolExists, tokenA.Hex(), tokenB.Hex())
	}

	if err := r.store.InsertPool(ctx, pool); err != nil {
		return amm.Pool{}, fmt.Errorf("insert pool: %w", err)
	}

	r.logger.Info("pool created",
		zap.String("pool", pool.Address.Hex()),
		zap.String("variant", pool.Variant.String()),
		zap.String("token_a", tokenA.Hex()),
		zap.String("token_b", tokenB.Hex()),
		zap.String("share_token", pool.ShareToken.Hex()),
		zap.Uint32("fee_rate", pool.FeeRate),
		zap.Uint8("bump", pool.Bump),
	)
	return pool, nil
}

// Pool loads a pool and checks it against its re-derived identities.
func (r *Registry) Pool(ctx context.Context, tokenA, tokenB common.Address) (amm.Pool, error) {
	pool, ok, err := r.store.GetPool(ctx, tokenA, tokenB)
	if err != nil {
		return amm.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	if !ok {
		return amm.Pool{}, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, tokenA.Hex(), tokenB.Hex())
	}
	if err := r.Verify(pool); err != nil {
		return amm.Pool{}, err
	}
	return pool, nil
}

func (r *Registry) Pools(ctx context.Context) ([]amm.Pool, error) {
	return r.store.ListPools(ctx)
}

// Verify rejects a stored record whose identities no longer match what the
// program derives for its pair.
func (r *Registry) Verify(pool amm.Pool) error {
	if err := pool.Validate(); err != nil {
		return err
	}
	addrs, err := DeriveAddresses(r.programID, pool.TokenA, pool.TokenB)
	if err != nil {
		return fmt.Errorf("derive addresses: %w", err)
	}
	if pool.Address != addrs.Pool || pool.Bump != addrs.Bump {
		return fmt.Errorf("%w: pool address mismatch, derived %s, stored %s", amm.ErrInvalidVaultAuthority, addrs.Pool.Hex(), pool.Address.Hex())
	}
	if pool.ShareToken != addrs.ShareToken {
		return fmt.Errorf("%w: share token mismatch, derived %s, stored %s", amm.ErrInvalidTokenMint, addrs.ShareToken.Hex(), pool.ShareToken.Hex())
	}
	if pool.VaultA != addrs.VaultA || pool.VaultB != addrs.VaultB {
		return fmt.Errorf("%w: vault mismatch for pool %s", amm.ErrInvalidVaultAuthority, pool.Address.Hex())
	}
	if pool.Authority != addrs.Authority {
		return fmt.Errorf("%w: authority mismatch, derived %s, stored %s", amm.ErrInvalidVaultAuthority, addrs.Authority.Hex(), pool.Authority.Hex())
	}
	return nil
}
