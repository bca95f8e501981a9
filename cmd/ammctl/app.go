package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"ammEngine/internal/config"
	"ammEngine/internal/engine"
	"ammEngine/internal/ledger"
	"ammEngine/internal/registry"
	"ammEngine/internal/storage"
	"ammEngine/internal/storage/postgres"
	"ammEngine/internal/storage/sqlite"
)

// app is the wiring shared by every engine command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	engine  *engine.Engine
	closers []func()
}

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	var (
		store registry.Store
		led   ledger.Ledger
	)
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		store, led = pg, pg
	case config.StoreSQLite:
		if err := ensureDir(cfg.SQLitePath); err != nil {
			a.close()
			return nil, err
		}
		lite, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })
		store, led = lite, lite
	default:
		store, led = registry.NewMemoryStore(), ledger.NewMemory()
	}

	var journal storage.Journal = storage.Discard{}
	if cfg.Journal != "" {
		journal = storage.NewJsonlStorage(cfg.Journal)
	}

	reg := registry.New(store, cfg.ProgramID, logger)
	a.engine = engine.New(reg, led, journal, logger)

	logger.Debug("app ready",
		zap.String("store", cfg.Store),
		zap.String("program_id", cfg.ProgramID.Hex()),
		zap.String("journal", cfg.Journal),
	)
	return a, nil
}

// close runs closers in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
