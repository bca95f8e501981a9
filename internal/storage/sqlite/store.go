// Package sqlite keeps pools and balances in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	sqlite3 "github.com/mattn/go-sqlite3"

	"ammEngine/internal/amm"
	"ammEngine/internal/ledger"
	"ammEngine/internal/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	token_a      TEXT NOT NULL,
	token_b      TEXT NOT NULL,
	pool_address TEXT NOT NULL UNIQUE,
	share_token  TEXT NOT NULL,
	vault_a      TEXT NOT NULL,
	vault_b      TEXT NOT NULL,
	authority    TEXT NOT NULL,
	fee_rate     INTEGER NOT NULL,
	variant      INTEGER NOT NULL,
	bump         INTEGER NOT NULL,
	PRIMARY KEY (token_a, token_b)
);
CREATE TABLE IF NOT EXISTS balances (
	token  TEXT NOT NULL,
	owner  TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (token, owner)
);
CREATE TABLE IF NOT EXISTS supplies (
	token  TEXT PRIMARY KEY,
	amount TEXT NOT NULL
);
`

// Store implements registry.Store and ledger.Ledger on one SQLite database.
// Amounts are stored as decimal TEXT because SQLite integers are signed.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	// Every transaction takes the write lock at BEGIN, so a snapshot read
	// inside Update cannot be overtaken by another process.
	if !strings.Contains(dsn, "_txlock=") {
		dsn += "&_txlock=immediate"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps write transactions strictly ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertPool(ctx context.Context, pool amm.Pool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pools (
			token_a, token_b, pool_address, share_token, vault_a, vault_b, authority, fee_rate, variant, bump
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pool.TokenA.Hex(),
		pool.TokenB.Hex(),
		pool.Address.Hex(),
		pool.ShareToken.Hex(),
		pool.VaultA.Hex(),
		pool.VaultB.Hex(),
		pool.Authority.Hex(),
		int64(pool.FeeRate),
		int64(pool.Variant.Code()),
		int64(pool.Bump),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return registry.ErrPoolExists
	}
	return err
}

const poolColumns = `token_a, token_b, pool_address, share_token, vault_a, vault_b, authority, fee_rate, variant, bump`

func (s *Store) GetPool(ctx context.Context, tokenA, tokenB common.Address) (amm.Pool, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pools WHERE token_a=? AND token_b=?`, tokenA.Hex(), tokenB.Hex())
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return amm.Pool{}, false, nil
		}
		return amm.Pool{}, false, err
	}
	return pool, true, nil
}

func (s *Store) ListPools(ctx context.Context) ([]amm.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY pool_address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []amm.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPool(row scanner) (amm.Pool, error) {
	var (
		tokenA, tokenB, address, shareToken string
		vaultA, vaultB, authority           string
		feeRate, variantCode, bump          int64
	)
	if err := row.Scan(&tokenA, &tokenB, &address, &shareToken, &vaultA, &vaultB, &authority, &feeRate, &variantCode, &bump); err != nil {
		return amm.Pool{}, err
	}
	variant, err := amm.VariantFromCode(uint8(variantCode))
	if err != nil {
		return amm.Pool{}, fmt.Errorf("pool %s: %w", address, err)
	}
	return amm.Pool{
		Address:    common.HexToAddress(address),
		TokenA:     common.HexToAddress(tokenA),
		TokenB:     common.HexToAddress(tokenB),
		ShareToken: common.HexToAddress(shareToken),
		VaultA:     common.HexToAddress(vaultA),
		VaultB:     common.HexToAddress(vaultB),
		Authority:  common.HexToAddress(authority),
		FeeRate:    uint32(feeRate),
		Variant:    variant,
		Bump:       uint8(bump),
	}, nil
}

func (s *Store) Snapshot(ctx context.Context, pool amm.Pool) (amm.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return amm.Snapshot{}, err
	}
	defer tx.Rollback()

	snap, err := ledger.ReadSnapshot(ctx, txLoader{tx: tx}, pool)
	if err != nil {
		return amm.Snapshot{}, err
	}
	return snap, tx.Commit()
}

func (s *Store) BalanceOf(ctx context.Context, token, owner common.Address) (uint64, error) {
	return loadAmount(s.db.QueryRowContext(ctx, `SELECT amount FROM balances WHERE token=? AND owner=?`, token.Hex(), owner.Hex()))
}

func (s *Store) Apply(ctx context.Context, movements []ledger.Movement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyTx(ctx, tx, movements); err != nil {
		return err
	}
	return tx.Commit()
}

// Update runs under BEGIN IMMEDIATE: the snapshot, fn and the writes share
// one write transaction.
func (s *Store) Update(ctx context.Context, pool amm.Pool, fn ledger.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	loader := txLoader{tx: tx}
	snap, err := ledger.ReadSnapshot(ctx, loader, pool)
	if err != nil {
		return err
	}
	movements, err := fn(snap, loader)
	if err != nil {
		return err
	}
	if len(movements) == 0 {
		return tx.Commit()
	}
	if err := applyTx(ctx, tx, movements); err != nil {
		return err
	}
	return tx.Commit()
}

func applyTx(ctx context.Context, tx *sql.Tx, movements []ledger.Movement) error {
	plan, err := ledger.PlanMovements(ctx, txLoader{tx: tx}, movements)
	if err != nil {
		return err
	}

	for account, amount := range plan.Balances {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances (token, owner, amount) VALUES (?, ?, ?)
			ON CONFLICT (token, owner) DO UPDATE SET amount = excluded.amount
		`, account.Token.Hex(), account.Owner.Hex(), strconv.FormatUint(amount, 10)); err != nil {
			return fmt.Errorf("write balance: %w", err)
		}
	}
	for token, amount := range plan.Supplies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO supplies (token, amount) VALUES (?, ?)
			ON CONFLICT (token) DO UPDATE SET amount = excluded.amount
		`, token.Hex(), strconv.FormatUint(amount, 10)); err != nil {
			return fmt.Errorf("write supply: %w", err)
		}
	}
	return nil
}

type txLoader struct {
	tx *sql.Tx
}

func (l txLoader) LoadBalance(ctx context.Context, account ledger.Account) (uint64, error) {
	return loadAmount(l.tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE token=? AND owner=?`, account.Token.Hex(), account.Owner.Hex()))
}

func (l txLoader) LoadSupply(ctx context.Context, token common.Address) (uint64, error) {
	return loadAmount(l.tx.QueryRowContext(ctx, `SELECT amount FROM supplies WHERE token=?`, token.Hex()))
}

func loadAmount(row *sql.Row) (uint64, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}
