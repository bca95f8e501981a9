package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "AMM pool pricing and liquidity accounting",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("store", "sqlite", "state backend (sqlite, postgres, memory)")
	flags.String("sqlite-path", "./data/amm.db", "SQLite database path")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("program-id", "", "address pool identities are derived from")
	flags.String("journal", "./data/receipts.jsonl", "receipt journal JSONL path")
	flags.String("tokens", "", "token aliases (comma-separated name=address)")
	flags.Int("max-retries", 5, "maximum RPC retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPoolCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newSwapCmd(),
		newQuoteCmd(),
		newPositionCmd(),
		newFundCmd(),
		newBalanceCmd(),
		newStatsCmd(),
	)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
