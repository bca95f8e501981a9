// Package engine applies quotes to the ledger. Every operation on a pool runs
// under that pool's lock and inside one ledger update: the snapshot is read
// once, the quote is computed from it, and the resulting movements are applied
// before any other process can read the pool.
package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"ammEngine/internal/amm"
	"ammEngine/internal/ledger"
	"ammEngine/internal/model"
	"ammEngine/internal/registry"
	"ammEngine/internal/storage"
)

const spotPriceDecimals = 12

type Engine struct {
	registry *registry.Registry
	ledger   ledger.Ledger
	journal  storage.Journal
	logger   *zap.Logger

	locks *lockTable
	seq   atomic.Uint64
	now   func() time.Time
}

func New(reg *registry.Registry, led ledger.Ledger, journal storage.Journal, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = storage.Discard{}
	}
	return &Engine{
		registry: reg,
		ledger:   led,
		journal:  journal,
		logger:   logger,
		locks:    newLockTable(),
		now:      time.Now,
	}
}

func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// CreatePool registers the pair with the variant's fee rate.
func (e *Engine) CreatePool(ctx context.Context, tokenA, tokenB common.Address, variant amm.Variant) (amm.Pool, error) {
	pool, err := e.registry.CreatePool(ctx, tokenA, tokenB, variant)
	if err != nil {
		return amm.Pool{}, err
	}
	e.record(model.Receipt{
		Kind:    model.KindCreatePool,
		Pool:    pool.Address,
		Variant: pool.Variant.String(),
	})
	return pool, nil
}

// Deposit moves both amounts from owner into the vaults and mints shares.
func (e *Engine) Deposit(ctx context.Context, owner, tokenA, tokenB common.Address, req amm.DepositRequest) (amm.DepositQuote, error) {
	pool, unlock, err := e.lockPool(ctx, tokenA, tokenB)
	if err != nil {
		return amm.DepositQuote{}, err
	}
	defer unlock()

	var (
		snap  amm.Snapshot
		quote amm.DepositQuote
	)
	err = e.ledger.Update(ctx, pool, func(s amm.Snapshot, _ ledger.Loader) ([]ledger.Movement, error) {
		q, err := amm.QuoteDeposit(pool, s, req)
		if err != nil {
			return nil, err
		}
		snap, quote = s, q
		return []ledger.Movement{
			ledger.Transfer(pool.TokenA, owner, pool.VaultA, q.AmountA),
			ledger.Transfer(pool.TokenB, owner, pool.VaultB, q.AmountB),
			ledger.Mint(pool.ShareToken, owner, q.Shares),
		}, nil
	})
	if err != nil {
		return amm.DepositQuote{}, fmt.Errorf("deposit: %w", err)
	}

	e.logger.Debug("deposit applied",
		zap.String("pool", pool.Address.Hex()),
		zap.String("owner", owner.Hex()),
		zap.Uint64("amount_a", quote.AmountA),
		zap.Uint64("amount_b", quote.AmountB),
		zap.Uint64("shares", quote.Shares),
		zap.Bool("bootstrap", quote.Bootstrap),
	)
	e.record(withSnapshot(model.Receipt{
		Kind:    model.KindDeposit,
		Pool:    pool.Address,
		Variant: pool.Variant.String(),
		Owner:   owner,
		AmountA: quote.AmountA,
		AmountB: quote.AmountB,
		Shares:  quote.Shares,
	}, snap))
	return quote, nil
}

// Withdraw burns owner's shares and pays out the proportional reserves.
func (e *Engine) Withdraw(ctx context.Context, owner, tokenA, tokenB common.Address, req amm.WithdrawRequest) (amm.WithdrawQuote, error) {
	pool, unlock, err := e.lockPool(ctx, tokenA, tokenB)
	if err != nil {
		return amm.WithdrawQuote{}, err
	}
	defer unlock()

	var (
		snap  amm.Snapshot
		quote amm.WithdrawQuote
	)
	err = e.ledger.Update(ctx, pool, func(s amm.Snapshot, view ledger.Loader) ([]ledger.Movement, error) {
		held, err := view.LoadBalance(ctx, ledger.Account{Token: pool.ShareToken, Owner: owner})
		if err != nil {
			return nil, fmt.Errorf("share balance: %w", err)
		}
		q, err := amm.QuoteWithdraw(s, req, held)
		if err != nil {
			return nil, err
		}
		snap, quote = s, q

		movements := []ledger.Movement{ledger.Burn(pool.ShareToken, owner, q.Shares)}
		if q.AmountA > 0 {
			movements = append(movements, ledger.Transfer(pool.TokenA, pool.VaultA, owner, q.AmountA))
		}
		if q.AmountB > 0 {
			movements = append(movements, ledger.Transfer(pool.TokenB, pool.VaultB, owner, q.AmountB))
		}
		return movements, nil
	})
	if err != nil {
		return amm.WithdrawQuote{}, fmt.Errorf("withdraw: %w", err)
	}

	e.logger.Debug("withdraw applied",
		zap.String("pool", pool.Address.Hex()),
		zap.String("owner", owner.Hex()),
		zap.Uint64("shares", quote.Shares),
		zap.Uint64("amount_a", quote.AmountA),
		zap.Uint64("amount_b", quote.AmountB),
	)
	e.record(withSnapshot(model.Receipt{
		Kind:    model.KindWithdraw,
		Pool:    pool.Address,
		Variant: pool.Variant.String(),
		Owner:   owner,
		AmountA: quote.AmountA,
		AmountB: quote.AmountB,
		Shares:  quote.Shares,
	}, snap))
	return quote, nil
}

// Swap sells req.AmountIn of the direction's input token. The fee stays in
// the input vault.
func (e *Engine) Swap(ctx context.Context, owner, tokenA, tokenB common.Address, req amm.SwapRequest) (amm.SwapQuote, error) {
	pool, unlock, err := e.lockPool(ctx, tokenA, tokenB)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	defer unlock()

	var (
		snap  amm.Snapshot
		quote amm.SwapQuote
	)
	err = e.ledger.Update(ctx, pool, func(s amm.Snapshot, _ ledger.Loader) ([]ledger.Movement, error) {
		q, err := amm.QuoteSwap(pool, s, req)
		if err != nil {
			return nil, err
		}
		snap, quote = s, q

		tokenIn, tokenOut, vaultIn, vaultOut := pool.Tokens(q.Direction)
		return []ledger.Movement{
			ledger.Transfer(tokenIn, owner, vaultIn, q.AmountIn),
			ledger.Transfer(tokenOut, vaultOut, owner, q.AmountOut),
		}, nil
	})
	if err != nil {
		return amm.SwapQuote{}, fmt.Errorf("swap: %w", err)
	}
	tokenIn, tokenOut, _, _ := pool.Tokens(quote.Direction)

	e.logger.Debug("swap applied",
		zap.String("pool", pool.Address.Hex()),
		zap.String("owner", owner.Hex()),
		zap.Stringer("direction", quote.Direction),
		zap.Uint64("amount_in", quote.AmountIn),
		zap.Uint64("fee", quote.FeeAmount),
		zap.Uint64("amount_out", quote.AmountOut),
		zap.Uint64("price_impact_bps", quote.PriceImpactBps),
	)
	e.record(withSnapshot(model.Receipt{
		Kind:      model.KindSwap,
		Pool:      pool.Address,
		Variant:   pool.Variant.String(),
		Owner:     owner,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		Direction: quote.Direction.String(),
		AmountIn:  quote.AmountIn,
		AmountOut: quote.AmountOut,
		Fee:       quote.FeeAmount,
	}, snap))
	return quote, nil
}

// QuoteSwap prices a swap against the current reserves without applying it.
func (e *Engine) QuoteSwap(ctx context.Context, tokenA, tokenB common.Address, req amm.SwapRequest) (amm.SwapQuote, error) {
	pool, unlock, err := e.lockPool(ctx, tokenA, tokenB)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	defer unlock()

	snap, err := e.ledger.Snapshot(ctx, pool)
	if err != nil {
		return amm.SwapQuote{}, fmt.Errorf("snapshot: %w", err)
	}
	return amm.QuoteSwap(pool, snap, req)
}

// Position reports owner's shares and what they currently redeem for.
func (e *Engine) Position(ctx context.Context, owner, tokenA, tokenB common.Address) (model.Position, error) {
	pool, unlock, err := e.lockPool(ctx, tokenA, tokenB)
	if err != nil {
		return model.Position{}, err
	}
	defer unlock()

	var value amm.PositionValue
	err = e.ledger.Update(ctx, pool, func(snap amm.Snapshot, view ledger.Loader) ([]ledger.Movement, error) {
		held, err := view.LoadBalance(ctx, ledger.Account{Token: pool.ShareToken, Owner: owner})
		if err != nil {
			return nil, fmt.Errorf("share balance: %w", err)
		}
		value, err = amm.Position(snap, held)
		return nil, err
	})
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{Pool: pool, Value: value}, nil
}

// PoolState reports reserves, supply and spot prices. Prices are empty while
// either reserve is zero.
func (e *Engine) PoolState(ctx context.Context, tokenA, tokenB common.Address) (model.PoolState, error) {
	pool, unlock, err := e.lockPool(ctx, tokenA, tokenB)
	if err != nil {
		return model.PoolState{}, err
	}
	defer unlock()

	snap, err := e.ledger.Snapshot(ctx, pool)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("snapshot: %w", err)
	}
	return StateOf(pool, snap), nil
}

// StateOf builds the report for a snapshot obtained elsewhere.
func StateOf(pool amm.Pool, snap amm.Snapshot) model.PoolState {
	state := model.PoolState{
		Pool:     pool,
		ReserveA: snap.ReserveA(),
		ReserveB: snap.ReserveB(),
		Supply:   snap.Supply(),
	}
	if price, err := amm.SpotPrice(snap, amm.AToB); err == nil {
		state.PriceAToB = price.FloatString(spotPriceDecimals)
	}
	if price, err := amm.SpotPrice(snap, amm.BToA); err == nil {
		state.PriceBToA = price.FloatString(spotPriceDecimals)
	}
	return state
}

// Fund mints amount of token to owner. It backs the faucet command and test
// setups. Share tokens are minted only by deposits, and accounts owned by a
// pool only change through pool operations.
func (e *Engine) Fund(ctx context.Context, token, owner common.Address, amount uint64) error {
	if amount == 0 {
		return amm.ErrInvalidAmount
	}
	pools, err := e.registry.Pools(ctx)
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}
	for _, pool := range pools {
		if token == pool.ShareToken {
			return fmt.Errorf("%w: %s is the share token of pool %s", amm.ErrInvalidTokenMint, token.Hex(), pool.Address.Hex())
		}
		switch owner {
		case pool.Address, pool.VaultA, pool.VaultB, pool.Authority:
			return fmt.Errorf("%w: %s belongs to pool %s", amm.ErrInvalidVaultAuthority, owner.Hex(), pool.Address.Hex())
		}
	}
	if err := e.ledger.Apply(ctx, []ledger.Movement{ledger.Mint(token, owner, amount)}); err != nil {
		return fmt.Errorf("apply fund: %w", err)
	}
	e.logger.Debug("funded", zap.String("token", token.Hex()), zap.String("owner", owner.Hex()), zap.Uint64("amount", amount))
	e.record(model.Receipt{
		Kind:     model.KindFund,
		Owner:    owner,
		TokenOut: token,
		AmountIn: amount,
	})
	return nil
}

func (e *Engine) BalanceOf(ctx context.Context, token, owner common.Address) (uint64, error) {
	return e.ledger.BalanceOf(ctx, token, owner)
}

func (e *Engine) lockPool(ctx context.Context, tokenA, tokenB common.Address) (amm.Pool, func(), error) {
	pool, err := e.registry.Pool(ctx, tokenA, tokenB)
	if err != nil {
		return amm.Pool{}, nil, err
	}
	unlock := e.locks.lock(pool.Address)
	if err := ctx.Err(); err != nil {
		unlock()
		return amm.Pool{}, nil, err
	}
	return pool, unlock, nil
}

// record journals a receipt for an operation that already took effect. A
// journal failure cannot undo the ledger, so it is logged and dropped.
func (e *Engine) record(receipt model.Receipt) {
	now := e.now()
	receipt.Sequence = e.seq.Add(1)
	receipt.Timestamp = now.Unix()
	receipt.ID = receiptID(receipt.Pool, receipt.Sequence, now.UnixNano(), receipt.Kind)

	if err := e.journal.PutReceipts([]model.Receipt{receipt}); err != nil {
		e.logger.Error("journal receipt failed",
			zap.String("id", receipt.ID),
			zap.String("kind", receipt.Kind),
			zap.Error(err),
		)
	}
}

func withSnapshot(receipt model.Receipt, snap amm.Snapshot) model.Receipt {
	receipt.ReserveA = snap.ReserveA()
	receipt.ReserveB = snap.ReserveB()
	receipt.Supply = snap.Supply()
	return receipt
}

// receiptID mixes in the clock so sequences restarting with the process do
// not collide in a shared journal.
func receiptID(pool common.Address, seq uint64, nanos int64, kind string) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], seq)
	binary.BigEndian.PutUint64(buf[8:], uint64(nanos))

	h := blake3.New()
	h.Write(pool.Bytes())
	h.Write(buf[:])
	h.Write([]byte(kind))
	return hexutil.Encode(h.Sum(nil))
}
