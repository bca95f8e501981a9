package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"ammEngine/internal/amm"
)

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit both tokens and receive pool shares",
		RunE:  runDeposit,
	}
	addPairFlags(cmd)
	cmd.Flags().String("owner", "", "depositor address (alias or address)")
	cmd.Flags().Uint64("amount-a", 0, "amount of token a")
	cmd.Flags().Uint64("amount-b", 0, "amount of token b")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn pool shares for the underlying tokens",
		RunE:  runWithdraw,
	}
	addPairFlags(cmd)
	cmd.Flags().String("owner", "", "share holder address")
	cmd.Flags().Uint64("shares", 0, "shares to burn")
	cmd.Flags().Uint64("min-a", 0, "minimum token a out")
	cmd.Flags().Uint64("min-b", 0, "minimum token b out")
	return cmd
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap one pool token for the other",
		RunE:  runSwap,
	}
	addSwapFlags(cmd)
	cmd.Flags().String("owner", "", "trader address")
	return cmd
}

func addSwapFlags(cmd *cobra.Command) {
	addPairFlags(cmd)
	cmd.Flags().String("token-in", "", "token being sold")
	cmd.Flags().Uint64("amount-in", 0, "amount sold")
	cmd.Flags().Uint64("min-out", 0, "minimum amount bought")
}

func newPositionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Show an owner's share of a pool",
		RunE:  runPosition,
	}
	addPairFlags(cmd)
	cmd.Flags().String("owner", "", "share holder address")
	return cmd
}

func newFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Mint test tokens to an address",
		RunE:  runFund,
	}
	cmd.Flags().String("token", "", "token to mint")
	cmd.Flags().String("owner", "", "recipient")
	cmd.Flags().Uint64("amount", 0, "amount to mint")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a token balance",
		RunE:  runBalance,
	}
	cmd.Flags().String("token", "", "token")
	cmd.Flags().String("owner", "", "holder")
	return cmd
}

func runDeposit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		tokenA, tokenB, err := a.pairFlags(cmd)
		if err != nil {
			return err
		}
		owner, err := a.tokenFlag(cmd, "owner")
		if err != nil {
			return err
		}
		amountA, _ := cmd.Flags().GetUint64("amount-a")
		amountB, _ := cmd.Flags().GetUint64("amount-b")

		quote, err := a.engine.Deposit(ctx, owner, tokenA, tokenB, amm.DepositRequest{AmountA: amountA, AmountB: amountB})
		if err != nil {
			return err
		}
		return printJSON(cmd, quote)
	})
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		tokenA, tokenB, err := a.pairFlags(cmd)
		if err != nil {
			return err
		}
		owner, err := a.tokenFlag(cmd, "owner")
		if err != nil {
			return err
		}
		shares, _ := cmd.Flags().GetUint64("shares")
		minA, _ := cmd.Flags().GetUint64("min-a")
		minB, _ := cmd.Flags().GetUint64("min-b")

		quote, err := a.engine.Withdraw(ctx, owner, tokenA, tokenB, amm.WithdrawRequest{Shares: shares, MinAmountA: minA, MinAmountB: minB})
		if err != nil {
			return err
		}
		return printJSON(cmd, quote)
	})
}

func runSwap(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		tokenA, tokenB, err := a.pairFlags(cmd)
		if err != nil {
			return err
		}
		owner, err := a.tokenFlag(cmd, "owner")
		if err != nil {
			return err
		}
		pool, err := a.engine.Registry().Pool(ctx, tokenA, tokenB)
		if err != nil {
			return err
		}
		req, err := a.swapRequest(cmd, pool)
		if err != nil {
			return err
		}

		quote, err := a.engine.Swap(ctx, owner, tokenA, tokenB, req)
		if err != nil {
			return err
		}
		return printJSON(cmd, quote)
	})
}

func (a *app) swapRequest(cmd *cobra.Command, pool amm.Pool) (amm.SwapRequest, error) {
	tokenIn, err := a.tokenFlag(cmd, "token-in")
	if err != nil {
		return amm.SwapRequest{}, err
	}
	dir, err := pool.DirectionFor(tokenIn)
	if err != nil {
		return amm.SwapRequest{}, err
	}
	amountIn, _ := cmd.Flags().GetUint64("amount-in")
	minOut, _ := cmd.Flags().GetUint64("min-out")
	return amm.SwapRequest{AmountIn: amountIn, MinAmountOut: minOut, Direction: dir}, nil
}

func runPosition(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		tokenA, tokenB, err := a.pairFlags(cmd)
		if err != nil {
			return err
		}
		owner, err := a.tokenFlag(cmd, "owner")
		if err != nil {
			return err
		}
		pos, err := a.engine.Position(ctx, owner, tokenA, tokenB)
		if err != nil {
			return err
		}
		return printJSON(cmd, pos)
	})
}

func runFund(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		token, err := a.tokenFlag(cmd, "token")
		if err != nil {
			return err
		}
		owner, err := a.tokenFlag(cmd, "owner")
		if err != nil {
			return err
		}
		amount, _ := cmd.Flags().GetUint64("amount")
		if err := a.engine.Fund(ctx, token, owner, amount); err != nil {
			return err
		}
		return printBalance(cmd, a, token, owner)
	})
}

func runBalance(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		token, err := a.tokenFlag(cmd, "token")
		if err != nil {
			return err
		}
		owner, err := a.tokenFlag(cmd, "owner")
		if err != nil {
			return err
		}
		return printBalance(cmd, a, token, owner)
	})
}

type balanceView struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Balance uint64 `json:"balance,string"`
}

func printBalance(cmd *cobra.Command, a *app, token, owner common.Address) error {
	balance, err := a.engine.BalanceOf(cmd.Context(), token, owner)
	if err != nil {
		return err
	}
	return printJSON(cmd, balanceView{Token: token.Hex(), Owner: owner.Hex(), Balance: balance})
}
