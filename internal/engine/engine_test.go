package engine

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ammEngine/internal/amm"
	"ammEngine/internal/ledger"
	"ammEngine/internal/model"
	"ammEngine/internal/registry"
	"ammEngine/internal/storage/sqlite"
)

var (
	tokenA    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	programID = common.HexToAddress("0x9999999999999999999999999999999999999999")
	alice     = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob       = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
)

type recordingJournal struct {
	mu       sync.Mutex
	receipts []model.Receipt
	err      error
}

func (j *recordingJournal) PutReceipts(receipts []model.Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.receipts = append(j.receipts, receipts...)
	return nil
}

func (j *recordingJournal) kinds() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.receipts))
	for _, r := range j.receipts {
		out = append(out, r.Kind)
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Memory, *recordingJournal) {
	t.Helper()
	led := ledger.NewMemory()
	journal := &recordingJournal{}
	reg := registry.New(registry.NewMemoryStore(), programID, nil)
	return New(reg, led, journal, nil), led, journal
}

func balance(t *testing.T, led *ledger.Memory, token, owner common.Address) uint64 {
	t.Helper()
	v, err := led.BalanceOf(context.Background(), token, owner)
	require.NoError(t, err)
	return v
}

func TestDepositSwapWithdrawLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, led, journal := newTestEngine(t)

	pool, err := eng.CreatePool(ctx, tokenA, tokenB, amm.Standard)
	require.NoError(t, err)
	require.NoError(t, eng.Fund(ctx, tokenA, alice, 2_000_000))
	require.NoError(t, eng.Fund(ctx, tokenB, alice, 3_000_000))

	dep, err := eng.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 1_000_000, AmountB: 2_000_000})
	require.NoError(t, err)
	require.True(t, dep.Bootstrap)
	require.Equal(t, amm.BootstrapShares, dep.Shares)
	require.Equal(t, amm.BootstrapShares, led.Supply(pool.ShareToken))

	swap, err := eng.Swap(ctx, alice, tokenA, tokenB, amm.SwapRequest{AmountIn: 10_000, Direction: amm.AToB})
	require.NoError(t, err)
	require.Equal(t, uint64(30), swap.FeeAmount)
	require.Equal(t, uint64(19_742), swap.AmountOut)

	require.Equal(t, uint64(1_010_000), balance(t, led, tokenA, pool.VaultA))
	require.Equal(t, uint64(1_980_258), balance(t, led, tokenB, pool.VaultB))
	require.Equal(t, uint64(990_000), balance(t, led, tokenA, alice))
	require.Equal(t, uint64(1_019_742), balance(t, led, tokenB, alice))

	wd, err := eng.Withdraw(ctx, alice, tokenA, tokenB, amm.WithdrawRequest{Shares: amm.BootstrapShares})
	require.NoError(t, err)
	require.Equal(t, uint64(1_010_000), wd.AmountA)
	require.Equal(t, uint64(1_980_258), wd.AmountB)

	require.Zero(t, led.Supply(pool.ShareToken))
	require.Zero(t, balance(t, led, tokenA, pool.VaultA))
	require.Zero(t, balance(t, led, tokenB, pool.VaultB))
	require.Equal(t, uint64(2_000_000), balance(t, led, tokenA, alice))
	require.Equal(t, uint64(3_000_000), balance(t, led, tokenB, alice))

	require.Equal(t, []string{
		model.KindCreatePool,
		model.KindFund,
		model.KindFund,
		model.KindDeposit,
		model.KindSwap,
		model.KindWithdraw,
	}, journal.kinds())

	swapReceipt := journal.receipts[4]
	require.Equal(t, uint64(1_000_000), swapReceipt.ReserveA)
	require.Equal(t, uint64(2_000_000), swapReceipt.ReserveB)
	require.Equal(t, tokenA, swapReceipt.TokenIn)
	require.Equal(t, tokenB, swapReceipt.TokenOut)
	require.Equal(t, uint64(5), swapReceipt.Sequence)
	require.NotEqual(t, journal.receipts[3].ID, swapReceipt.ID)
}

func TestFailedOperationsLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	eng, led, journal := newTestEngine(t)

	pool, err := eng.CreatePool(ctx, tokenA, tokenB, amm.Standard)
	require.NoError(t, err)

	// Nothing funded yet: the vault transfer must fail and no shares appear.
	_, err = eng.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 1_000, AmountB: 1_000})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Zero(t, led.Supply(pool.ShareToken))

	require.NoError(t, eng.Fund(ctx, tokenA, alice, 2_000_000))
	require.NoError(t, eng.Fund(ctx, tokenB, alice, 2_000_000))
	_, err = eng.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 1_000_000, AmountB: 1_000_000})
	require.NoError(t, err)

	before := len(journal.kinds())

	_, err = eng.Swap(ctx, alice, tokenA, tokenB, amm.SwapRequest{AmountIn: 10_000, MinAmountOut: 1_000_000, Direction: amm.AToB})
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	_, err = eng.Withdraw(ctx, bob, tokenA, tokenB, amm.WithdrawRequest{Shares: 1})
	require.ErrorIs(t, err, amm.ErrInsufficientLpBalance)

	_, err = eng.Swap(ctx, alice, tokenA, tokenB, amm.SwapRequest{AmountIn: 0, Direction: amm.AToB})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	require.Equal(t, uint64(1_000_000), balance(t, led, tokenA, pool.VaultA))
	require.Equal(t, uint64(1_000_000), balance(t, led, tokenB, pool.VaultB))
	require.Equal(t, uint64(1_000_000), balance(t, led, tokenA, alice))
	require.Len(t, journal.kinds(), before)
}

func TestUnknownPool(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Swap(context.Background(), alice, tokenA, tokenB, amm.SwapRequest{AmountIn: 1, Direction: amm.AToB})
	require.ErrorIs(t, err, registry.ErrPoolNotFound)
}

func TestPoolStateAndPosition(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t)

	_, err := eng.CreatePool(ctx, tokenA, tokenB, amm.Stable)
	require.NoError(t, err)

	state, err := eng.PoolState(ctx, tokenA, tokenB)
	require.NoError(t, err)
	require.Empty(t, state.PriceAToB)

	for _, owner := range []common.Address{alice, bob} {
		require.NoError(t, eng.Fund(ctx, tokenA, owner, 1_000_000))
		require.NoError(t, eng.Fund(ctx, tokenB, owner, 2_000_000))
	}
	_, err = eng.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 500_000, AmountB: 1_000_000})
	require.NoError(t, err)

	state, err = eng.PoolState(ctx, tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, "2.000000000000", state.PriceAToB)
	require.Equal(t, "0.500000000000", state.PriceBToA)
	require.Equal(t, amm.BootstrapShares, state.Supply)

	pos, err := eng.Position(ctx, alice, tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), pos.Value.ShareBps)
	require.Equal(t, uint64(500_000), pos.Value.AmountA)

	pos, err = eng.Position(ctx, bob, tokenA, tokenB)
	require.NoError(t, err)
	require.Zero(t, pos.Value.Shares)
	require.Zero(t, pos.Value.ShareBps)
}

func TestQuoteSwapDoesNotApply(t *testing.T) {
	ctx := context.Background()
	eng, led, journal := newTestEngine(t)

	pool, err := eng.CreatePool(ctx, tokenA, tokenB, amm.Standard)
	require.NoError(t, err)
	require.NoError(t, eng.Fund(ctx, tokenA, alice, 1_000_000))
	require.NoError(t, eng.Fund(ctx, tokenB, alice, 2_000_000))
	_, err = eng.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 1_000_000, AmountB: 2_000_000})
	require.NoError(t, err)
	receipts := len(journal.kinds())

	quote, err := eng.QuoteSwap(ctx, tokenA, tokenB, amm.SwapRequest{AmountIn: 10_000, Direction: amm.AToB})
	require.NoError(t, err)
	require.Equal(t, uint64(19_742), quote.AmountOut)
	require.Equal(t, uint64(98), quote.PriceImpactBps)

	require.Equal(t, uint64(1_000_000), balance(t, led, tokenA, pool.VaultA))
	require.Len(t, journal.kinds(), receipts)
}

func TestJournalFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	eng, led, journal := newTestEngine(t)
	journal.err = errors.New("disk full")

	_, err := eng.CreatePool(ctx, tokenA, tokenB, amm.Standard)
	require.NoError(t, err)
	require.NoError(t, eng.Fund(ctx, tokenA, alice, 10))
	require.Equal(t, uint64(10), balance(t, led, tokenA, alice))
}

func TestFundRejectsZero(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.ErrorIs(t, eng.Fund(context.Background(), tokenA, alice, 0), amm.ErrInvalidAmount)
}

func TestFundRejectsPoolAccounts(t *testing.T) {
	ctx := context.Background()
	eng, led, _ := newTestEngine(t)
	mallory := common.HexToAddress("0xba5e000000000000000000000000000000000000")

	pool, err := eng.CreatePool(ctx, tokenA, tokenB, amm.Standard)
	require.NoError(t, err)
	require.NoError(t, eng.Fund(ctx, tokenA, alice, 1_000_000))
	require.NoError(t, eng.Fund(ctx, tokenB, alice, 1_000_000))
	_, err = eng.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 1_000_000, AmountB: 1_000_000})
	require.NoError(t, err)
	supply := led.Supply(pool.ShareToken)

	require.ErrorIs(t, eng.Fund(ctx, pool.ShareToken, mallory, 99_000_000), amm.ErrInvalidTokenMint)
	require.ErrorIs(t, eng.Fund(ctx, pool.ShareToken, alice, 1), amm.ErrInvalidTokenMint)
	for _, owner := range []common.Address{pool.VaultA, pool.VaultB, pool.Authority, pool.Address} {
		require.ErrorIs(t, eng.Fund(ctx, tokenA, owner, 1), amm.ErrInvalidVaultAuthority)
	}

	require.Equal(t, supply, led.Supply(pool.ShareToken))
	require.Equal(t, uint64(1_000_000), balance(t, led, tokenA, pool.VaultA))
	_, err = eng.Withdraw(ctx, mallory, tokenA, tokenB, amm.WithdrawRequest{Shares: 1})
	require.ErrorIs(t, err, amm.ErrInsufficientLpBalance)
}

// Two engines over two handles on one SQLite file behave like two ammctl
// processes: their swaps must still price against each other's results.
func TestSwapsAcrossStoreHandlesSerialize(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "amm.db")

	openEngine := func() *Engine {
		store, err := sqlite.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return New(registry.New(store, programID, nil), store, nil, nil)
	}
	first, second := openEngine(), openEngine()

	_, err := first.CreatePool(ctx, tokenA, tokenB, amm.Standard)
	require.NoError(t, err)
	require.NoError(t, first.Fund(ctx, tokenA, alice, 1_000_000))
	require.NoError(t, first.Fund(ctx, tokenB, alice, 1_000_000))
	_, err = first.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 1_000_000, AmountB: 1_000_000})
	require.NoError(t, err)
	require.NoError(t, first.Fund(ctx, tokenA, bob, 10_000_000))

	// The same swaps applied one after another on a fresh pool.
	ref, refLed, _ := newTestEngine(t)
	refPool, err := ref.CreatePool(ctx, tokenA, tokenB, amm.Standard)
	require.NoError(t, err)
	require.NoError(t, ref.Fund(ctx, tokenA, alice, 1_000_000))
	require.NoError(t, ref.Fund(ctx, tokenB, alice, 1_000_000))
	_, err = ref.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 1_000_000, AmountB: 1_000_000})
	require.NoError(t, err)
	require.NoError(t, ref.Fund(ctx, tokenA, bob, 10_000_000))

	const swapsPerEngine = 10
	req := amm.SwapRequest{AmountIn: 50_000, Direction: amm.AToB}
	for i := 0; i < 2*swapsPerEngine; i++ {
		_, err := ref.Swap(ctx, bob, tokenA, tokenB, req)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*swapsPerEngine)
	for _, eng := range []*Engine{first, second} {
		wg.Add(1)
		go func(eng *Engine) {
			defer wg.Done()
			for i := 0; i < swapsPerEngine; i++ {
				_, err := eng.Swap(ctx, bob, tokenA, tokenB, req)
				errs <- err
			}
		}(eng)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := second.PoolState(ctx, tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, balance(t, refLed, tokenA, refPool.VaultA), state.ReserveA)
	require.Equal(t, balance(t, refLed, tokenB, refPool.VaultB), state.ReserveB)

	bobB, err := first.BalanceOf(ctx, tokenB, bob)
	require.NoError(t, err)
	require.Equal(t, balance(t, refLed, tokenB, bob), bobB)
}

func TestConcurrentSwapsKeepReservesConsistent(t *testing.T) {
	ctx := context.Background()
	eng, led, _ := newTestEngine(t)

	pool, err := eng.CreatePool(ctx, tokenA, tokenB, amm.Concentrated)
	require.NoError(t, err)
	require.NoError(t, eng.Fund(ctx, tokenA, alice, 10_000_000))
	require.NoError(t, eng.Fund(ctx, tokenB, alice, 10_000_000))
	_, err = eng.Deposit(ctx, alice, tokenA, tokenB, amm.DepositRequest{AmountA: 10_000_000, AmountB: 10_000_000})
	require.NoError(t, err)

	const workers = 8
	const swapsPerWorker = 25

	traders := make([]common.Address, workers)
	for i := range traders {
		traders[i] = common.BigToAddress(big.NewInt(int64(0x5000 + i)))
		require.NoError(t, eng.Fund(ctx, tokenA, traders[i], 1_000_000))
		require.NoError(t, eng.Fund(ctx, tokenB, traders[i], 1_000_000))
	}

	var (
		mu         sync.Mutex
		inA, inB   uint64
		outA, outB uint64
		wg         sync.WaitGroup
		firstErr   error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(trader common.Address, dir amm.Direction) {
			defer wg.Done()
			for j := 0; j < swapsPerWorker; j++ {
				quote, err := eng.Swap(ctx, trader, tokenA, tokenB, amm.SwapRequest{AmountIn: 1_000, Direction: dir})
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				if dir == amm.AToB {
					inA += quote.AmountIn
					outB += quote.AmountOut
				} else {
					inB += quote.AmountIn
					outA += quote.AmountOut
				}
				mu.Unlock()
			}
		}(traders[i], amm.Direction(i%2))
	}
	wg.Wait()
	require.NoError(t, firstErr)

	require.Equal(t, 10_000_000+inA-outA, balance(t, led, tokenA, pool.VaultA))
	require.Equal(t, 10_000_000+inB-outB, balance(t, led, tokenB, pool.VaultB))
}
