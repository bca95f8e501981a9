package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"ammEngine/internal/amm"
)

func newPoolCmd() *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Create and inspect pools",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pool for an ordered token pair",
		RunE:  runPoolCreate,
	}
	addPairFlags(createCmd)
	createCmd.Flags().String("variant", "standard", "pool variant (standard, stable, concentrated or 0-2)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show reserves, share supply and spot prices",
		RunE:  runPoolShow,
	}
	addPairFlags(showCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all pools",
		RunE:  runPoolList,
	}

	poolCmd.AddCommand(createCmd, showCmd, listCmd)
	return poolCmd
}

func addPairFlags(cmd *cobra.Command) {
	cmd.Flags().String("token-a", "", "first token of the pair (alias or address)")
	cmd.Flags().String("token-b", "", "second token of the pair (alias or address)")
}

func (a *app) pairFlags(cmd *cobra.Command) (common.Address, common.Address, error) {
	tokenA, err := a.tokenFlag(cmd, "token-a")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	tokenB, err := a.tokenFlag(cmd, "token-b")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return tokenA, tokenB, nil
}

func (a *app) tokenFlag(cmd *cobra.Command, name string) (common.Address, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := a.cfg.ResolveToken(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

func runPoolCreate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		tokenA, tokenB, err := a.pairFlags(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("variant")
		variant, err := amm.ParseVariant(name)
		if err != nil {
			return err
		}
		pool, err := a.engine.CreatePool(ctx, tokenA, tokenB, variant)
		if err != nil {
			return err
		}
		return printJSON(cmd, pool)
	})
}

func runPoolShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		tokenA, tokenB, err := a.pairFlags(cmd)
		if err != nil {
			return err
		}
		state, err := a.engine.PoolState(ctx, tokenA, tokenB)
		if err != nil {
			return err
		}
		return printJSON(cmd, state)
	})
}

func runPoolList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		pools, err := a.engine.Registry().Pools(ctx)
		if err != nil {
			return err
		}
		for _, pool := range pools {
			if err := printJSON(cmd, pool); err != nil {
				return err
			}
		}
		return nil
	})
}

func withApp(ctx context.Context, cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
