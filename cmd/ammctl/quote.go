package main

import (
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammEngine/internal/amm"
	"ammEngine/internal/chain"
	"ammEngine/internal/engine"
	"ammEngine/internal/model"
)

type quoteView struct {
	Quote     amm.SwapQuote   `json:"quote"`
	State     model.PoolState `json:"state"`
	ChainID   uint64          `json:"chain_id,omitempty"`
	Block     uint64          `json:"block,omitempty"`
	BlockTime string          `json:"block_time,omitempty"`
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap without applying it",
		Long:  "Price a swap against the local ledger, or against deployed ERC-20 vaults when --rpc is set.",
		RunE:  runQuote,
	}
	addSwapFlags(cmd)
	cmd.Flags().String("rpc", "", "EVM RPC URL; reads reserves from chain instead of the ledger")
	cmd.Flags().Uint64("block", 0, "block to read reserves at, 0 means latest")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, cmd, func(a *app) error {
		tokenA, tokenB, err := a.pairFlags(cmd)
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

		if a.cfg.RPCURL == "" {
			quote, err := a.engine.QuoteSwap(ctx, tokenA, tokenB, req)
			if err != nil {
				return err
			}
			state, err := a.engine.PoolState(ctx, tokenA, tokenB)
			if err != nil {
				return err
			}
			return printJSON(cmd, quoteView{Quote: quote, State: state})
		}

		chainClient, err := chain.NewClient(ctx, a.cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		block, _ := cmd.Flags().GetUint64("block")
		head, err := chain.ReadHead(ctx, chainClient, block, a.cfg.MaxRetries, a.cfg.RetryBackoff)
		if err != nil {
			return fmt.Errorf("read head: %w", err)
		}

		reader := chain.NewReader(chainClient, a.cfg.MaxRetries, a.cfg.RetryBackoff, a.logger)
		snap, err := reader.Snapshot(ctx, pool, new(big.Int).SetUint64(head.Number))
		if err != nil {
			return err
		}
		a.logger.Info("chain snapshot",
			zap.String("pool", pool.Address.Hex()),
			zap.Uint64("chain_id", head.ChainID),
			zap.Uint64("block", head.Number),
			zap.Time("block_time", head.Time),
			zap.Uint64("reserve_a", snap.ReserveA()),
			zap.Uint64("reserve_b", snap.ReserveB()),
			zap.Uint64("supply", snap.Supply()),
		)

		quote, err := amm.QuoteSwap(pool, snap, req)
		if err != nil {
			return err
		}
		return printJSON(cmd, quoteView{
			Quote:     quote,
			State:     engine.StateOf(pool, snap),
			ChainID:   head.ChainID,
			Block:     head.Number,
			BlockTime: head.Time.Format(time.RFC3339),
		})
	})
}
