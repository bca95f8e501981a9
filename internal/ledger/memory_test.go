package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ammEngine/internal/amm"
)

var (
	tokenX = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenY = common.HexToAddress("0x2222222222222222222222222222222222222222")
	share  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	alice  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	vaultX = common.HexToAddress("0x5555555555555555555555555555555555555555")
	vaultY = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

func TestMemoryApplyMintTransferBurn(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	require.NoError(t, l.Apply(ctx, []Movement{Mint(tokenX, alice, 1_000)}))
	require.NoError(t, l.Apply(ctx, []Movement{Transfer(tokenX, alice, vaultX, 400)}))

	bal, err := l.BalanceOf(ctx, tokenX, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(600), bal)
	bal, err = l.BalanceOf(ctx, tokenX, vaultX)
	require.NoError(t, err)
	require.Equal(t, uint64(400), bal)
	require.Equal(t, uint64(1_000), l.Supply(tokenX))

	require.NoError(t, l.Apply(ctx, []Movement{Burn(tokenX, alice, 100)}))
	require.Equal(t, uint64(900), l.Supply(tokenX))
}

func TestMemoryApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	require.NoError(t, l.Apply(ctx, []Movement{Mint(tokenX, alice, 100)}))

	err := l.Apply(ctx, []Movement{
		Transfer(tokenX, alice, vaultX, 60),
		Transfer(tokenX, alice, vaultX, 60),
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	bal, _ := l.BalanceOf(ctx, tokenX, alice)
	require.Equal(t, uint64(100), bal)
	bal, _ = l.BalanceOf(ctx, tokenX, vaultX)
	require.Zero(t, bal)
}

func TestMemoryApplyRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	require.ErrorIs(t, l.Apply(ctx, []Movement{Mint(tokenX, alice, 0)}), ErrInvalidMovement)
	require.ErrorIs(t, l.Apply(ctx, []Movement{{Kind: MovementKind(9), Token: tokenX, Amount: 1}}), ErrInvalidMovement)

	require.NoError(t, l.Apply(ctx, []Movement{Mint(tokenX, alice, math.MaxUint64)}))
	require.Error(t, l.Apply(ctx, []Movement{Mint(tokenX, alice, 1)}))
}

func TestMemorySnapshot(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	pool := amm.Pool{TokenA: tokenX, TokenB: tokenY, ShareToken: share, VaultA: vaultX, VaultB: vaultY}

	require.NoError(t, l.Apply(ctx, []Movement{
		Mint(tokenX, vaultX, 1_000),
		Mint(tokenY, vaultY, 2_000),
		Mint(share, alice, 500),
	}))

	snap, err := l.Snapshot(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, amm.NewSnapshot(1_000, 2_000, 500), snap)
}

func TestMemoryUpdate(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	pool := amm.Pool{TokenA: tokenX, TokenB: tokenY, ShareToken: share, VaultA: vaultX, VaultB: vaultY}
	require.NoError(t, l.Apply(ctx, []Movement{
		Mint(tokenX, vaultX, 1_000),
		Mint(tokenY, vaultY, 1_000),
		Mint(tokenX, alice, 100),
	}))

	err := l.Update(ctx, pool, func(snap amm.Snapshot, view Loader) ([]Movement, error) {
		require.Equal(t, uint64(1_000), snap.ReserveA())
		held, err := view.LoadBalance(ctx, Account{Token: tokenX, Owner: alice})
		require.NoError(t, err)
		require.Equal(t, uint64(100), held)
		return []Movement{Transfer(tokenX, alice, vaultX, held)}, nil
	})
	require.NoError(t, err)

	snap, err := l.Snapshot(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, uint64(1_100), snap.ReserveA())

	boom := errors.New("boom")
	err = l.Update(ctx, pool, func(amm.Snapshot, Loader) ([]Movement, error) {
		return []Movement{Mint(tokenX, vaultX, 1)}, boom
	})
	require.ErrorIs(t, err, boom)
	snap, _ = l.Snapshot(ctx, pool)
	require.Equal(t, uint64(1_100), snap.ReserveA())

	require.NoError(t, l.Update(ctx, pool, func(amm.Snapshot, Loader) ([]Movement, error) {
		return nil, nil
	}))
}
