// Package ledger is the balance service the engine instructs once a quote has
// passed every guard. The engine never moves value itself.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"ammEngine/internal/amm"
	"ammEngine/internal/mathx"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidMovement     = errors.New("invalid movement")
)

type MovementKind uint8

const (
	KindTransfer MovementKind = iota
	KindMint
	KindBurn
)

func (k MovementKind) String() string {
	switch k {
	case KindTransfer:
		return "transfer"
	case KindMint:
		return "mint"
	case KindBurn:
		return "burn"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k MovementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Movement is one balance change. Mint has no From, Burn has no To.
type Movement struct {
	Kind   MovementKind   `json:"kind"`
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

func Transfer(token, from, to common.Address, amount uint64) Movement {
	return Movement{Kind: KindTransfer, Token: token, From: from, To: to, Amount: amount}
}

func Mint(token, to common.Address, amount uint64) Movement {
	return Movement{Kind: KindMint, Token: token, To: to, Amount: amount}
}

func Burn(token, from common.Address, amount uint64) Movement {
	return Movement{Kind: KindBurn, Token: token, From: from, Amount: amount}
}

// Account identifies a balance: one owner's holding of one token.
type Account struct {
	Token common.Address
	Owner common.Address
}

// Loader reads committed state for the planner.
type Loader interface {
	LoadBalance(ctx context.Context, account Account) (uint64, error)
	LoadSupply(ctx context.Context, token common.Address) (uint64, error)
}

// Plan is the final state of every account and supply a batch touches.
type Plan struct {
	Balances map[Account]uint64
	Supplies map[common.Address]uint64
}

// PlanMovements replays a batch over an overlay of the loaded state. It fails
// without side effects if any step would underflow or overflow, so stores can
// write the plan knowing the whole batch is valid.
func PlanMovements(ctx context.Context, loader Loader, movements []Movement) (Plan, error) {
	plan := Plan{
		Balances: make(map[Account]uint64),
		Supplies: make(map[common.Address]uint64),
	}

	balance := func(account Account) (uint64, error) {
		if v, ok := plan.Balances[account]; ok {
			return v, nil
		}
		v, err := loader.LoadBalance(ctx, account)
		if err != nil {
			return 0, err
		}
		plan.Balances[account] = v
		return v, nil
	}
	supply := func(token common.Address) (uint64, error) {
		if v, ok := plan.Supplies[token]; ok {
			return v, nil
		}
		v, err := loader.LoadSupply(ctx, token)
		if err != nil {
			return 0, err
		}
		plan.Supplies[token] = v
		return v, nil
	}
	credit := func(account Account, amount uint64) error {
		cur, err := balance(account)
		if err != nil {
			return err
		}
		next, err := mathx.Add(cur, amount)
		if err != nil {
			return fmt.Errorf("credit %s: %w", account.Owner.Hex(), err)
		}
		plan.Balances[account] = next
		return nil
	}
	debit := func(account Account, amount uint64) error {
		cur, err := balance(account)
		if err != nil {
			return err
		}
		if cur < amount {
			return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientBalance, account.Owner.Hex(), cur, account.Token.Hex(), amount)
		}
		plan.Balances[account] = cur - amount
		return nil
	}

	for i, m := range movements {
		if m.Amount == 0 {
			return Plan{}, fmt.Errorf("%w: movement %d has zero amount", ErrInvalidMovement, i)
		}
		switch m.Kind {
		case KindTransfer:
			if err := debit(Account{Token: m.Token, Owner: m.From}, m.Amount); err != nil {
				return Plan{}, err
			}
			if err := credit(Account{Token: m.Token, Owner: m.To}, m.Amount); err != nil {
				return Plan{}, err
			}
		case KindMint:
			cur, err := supply(m.Token)
			if err != nil {
				return Plan{}, err
			}
			next, err := mathx.Add(cur, m.Amount)
			if err != nil {
				return Plan{}, fmt.Errorf("mint %s: %w", m.Token.Hex(), err)
			}
			plan.Supplies[m.Token] = next
			if err := credit(Account{Token: m.Token, Owner: m.To}, m.Amount); err != nil {
				return Plan{}, err
			}
		case KindBurn:
			if err := debit(Account{Token: m.Token, Owner: m.From}, m.Amount); err != nil {
				return Plan{}, err
			}
			cur, err := supply(m.Token)
			if err != nil {
				return Plan{}, err
			}
			if cur < m.Amount {
				return Plan{}, fmt.Errorf("%w: burn %d exceeds supply %d", ErrInvalidMovement, m.Amount, cur)
			}
			plan.Supplies[m.Token] = cur - m.Amount
		default:
			return Plan{}, fmt.Errorf("%w: kind %s", ErrInvalidMovement, m.Kind)
		}
	}
	return plan, nil
}

// ReadSnapshot reads the vault balances and share supply of a pool.
func ReadSnapshot(ctx context.Context, loader Loader, pool amm.Pool) (amm.Snapshot, error) {
	reserveA, err := loader.LoadBalance(ctx, Account{Token: pool.TokenA, Owner: pool.VaultA})
	if err != nil {
		return amm.Snapshot{}, fmt.Errorf("reserve a: %w", err)
	}
	reserveB, err := loader.LoadBalance(ctx, Account{Token: pool.TokenB, Owner: pool.VaultB})
	if err != nil {
		return amm.Snapshot{}, fmt.Errorf("reserve b: %w", err)
	}
	supply, err := loader.LoadSupply(ctx, pool.ShareToken)
	if err != nil {
		return amm.Snapshot{}, fmt.Errorf("share supply: %w", err)
	}
	return amm.NewSnapshot(reserveA, reserveB, supply), nil
}
