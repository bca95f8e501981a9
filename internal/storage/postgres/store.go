package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammEngine/internal/amm"
	"ammEngine/internal/ledger"
	"ammEngine/internal/model"
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
	variant      SMALLINT NOT NULL,
	bump         SMALLINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (token_a, token_b)
);
CREATE TABLE IF NOT EXISTS balances (
	token      TEXT NOT NULL,
	owner      TEXT NOT NULL,
	amount     NUMERIC(20,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (token, owner)
);
CREATE TABLE IF NOT EXISTS supplies (
	token      TEXT PRIMARY KEY,
	amount     NUMERIC(20,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pool_window_stats (
	pool_address        TEXT NOT NULL,
	variant             TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts     TIMESTAMPTZ NOT NULL,
	window_end_ts       TIMESTAMPTZ NOT NULL,
	swap_count          BIGINT NOT NULL,
	volume_a            NUMERIC NOT NULL,
	volume_b            NUMERIC NOT NULL,
	fee_a               NUMERIC NOT NULL,
	fee_b               NUMERIC NOT NULL,
	fee_rate_a          NUMERIC,
	fee_rate_b          NUMERIC,
	apr                 NUMERIC,
	tvl_a               NUMERIC,
	tvl_b               NUMERIC,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_address, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS aggregator_state (
	name              TEXT PRIMARY KEY,
	resume_ts         BIGINT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pools, balances and window stats.
// It implements registry.Store and ledger.Ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertPool stores a new pool. The pair primary key makes creation
// exclusive across processes.
func (s *Store) InsertPool(ctx context.Context, pool amm.Pool) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			token_a, token_b, pool_address, share_token, vault_a, vault_b, authority, fee_rate, variant, bump
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (token_a, token_b) DO NOTHING
	`,
		pool.TokenA.Hex(),
		pool.TokenB.Hex(),
		pool.Address.Hex(),
		pool.ShareToken.Hex(),
		pool.VaultA.Hex(),
		pool.VaultB.Hex(),
		pool.Authority.Hex(),
		int64(pool.FeeRate),
		int16(pool.Variant.Code()),
		int16(pool.Bump),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrPoolExists
	}
	return nil
}

const poolColumns = `token_a, token_b, pool_address, share_token, vault_a, vault_b, authority, fee_rate, variant, bump`

func (s *Store) GetPool(ctx context.Context, tokenA, tokenB common.Address) (amm.Pool, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE token_a=$1 AND token_b=$2`, tokenA.Hex(), tokenB.Hex())
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return amm.Pool{}, false, nil
		}
		return amm.Pool{}, false, err
	}
	return pool, true, nil
}

func (s *Store) ListPools(ctx context.Context) ([]amm.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY pool_address`)
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

func scanPool(row pgx.Row) (amm.Pool, error) {
	var (
		tokenA, tokenB, address, shareToken string
		vaultA, vaultB, authority           string
		feeRate                             int64
		variantCode, bump                   int16
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

// Snapshot reads reserves and supply in one repeatable-read transaction.
func (s *Store) Snapshot(ctx context.Context, pool amm.Pool) (amm.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return amm.Snapshot{}, err
	}
	defer tx.Rollback(ctx)

	snap, err := ledger.ReadSnapshot(ctx, txLoader{tx: tx}, pool)
	if err != nil {
		return amm.Snapshot{}, err
	}
	return snap, tx.Commit(ctx)
}

func (s *Store) BalanceOf(ctx context.Context, token, owner common.Address) (uint64, error) {
	return loadAmount(s.pool.QueryRow(ctx, `SELECT amount::text FROM balances WHERE token=$1 AND owner=$2`, token.Hex(), owner.Hex()))
}

// Apply plans the movements against locked rows and writes the result in the
// same transaction.
func (s *Store) Apply(ctx context.Context, movements []ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return applyTx(ctx, tx, movements)
	})
}

// Update serializes on a transaction-scoped advisory lock keyed by the pool
// address. Rows are read FOR UPDATE after the lock is held, so fn always sees
// the reserves the previous Update committed.
func (s *Store) Update(ctx context.Context, pool amm.Pool, fn ledger.UpdateFunc) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, pool.Address.Hex()); err != nil {
			return fmt.Errorf("lock pool: %w", err)
		}
		loader := txLoader{tx: tx, forUpdate: true}
		snap, err := ledger.ReadSnapshot(ctx, loader, pool)
		if err != nil {
			return err
		}
		movements, err := fn(snap, loader)
		if err != nil {
			return err
		}
		if len(movements) == 0 {
			return nil
		}
		return applyTx(ctx, tx, movements)
	})
}

func applyTx(ctx context.Context, tx pgx.Tx, movements []ledger.Movement) error {
	plan, err := ledger.PlanMovements(ctx, txLoader{tx: tx, forUpdate: true}, movements)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for account, amount := range plan.Balances {
		batch.Queue(`
			INSERT INTO balances (token, owner, amount, updated_at)
			VALUES ($1, $2, $3::numeric, now())
			ON CONFLICT (token, owner)
			DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
		`, account.Token.Hex(), account.Owner.Hex(), strconv.FormatUint(amount, 10))
	}
	for token, amount := range plan.Supplies {
		batch.Queue(`
			INSERT INTO supplies (token, amount, updated_at)
			VALUES ($1, $2::numeric, now())
			ON CONFLICT (token)
			DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
		`, token.Hex(), strconv.FormatUint(amount, 10))
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

// txLoader with forUpdate first inserts a zero row when none exists, so the
// FOR UPDATE that follows always has a row to lock.
type txLoader struct {
	tx        pgx.Tx
	forUpdate bool
}

func (l txLoader) LoadBalance(ctx context.Context, account ledger.Account) (uint64, error) {
	query := `SELECT amount::text FROM balances WHERE token=$1 AND owner=$2`
	if l.forUpdate {
		if _, err := l.tx.Exec(ctx, `
			INSERT INTO balances (token, owner, amount) VALUES ($1, $2, 0)
			ON CONFLICT (token, owner) DO NOTHING
		`, account.Token.Hex(), account.Owner.Hex()); err != nil {
			return 0, err
		}
		query += ` FOR UPDATE`
	}
	return loadAmount(l.tx.QueryRow(ctx, query, account.Token.Hex(), account.Owner.Hex()))
}

func (l txLoader) LoadSupply(ctx context.Context, token common.Address) (uint64, error) {
	query := `SELECT amount::text FROM supplies WHERE token=$1`
	if l.forUpdate {
		if _, err := l.tx.Exec(ctx, `
			INSERT INTO supplies (token, amount) VALUES ($1, 0)
			ON CONFLICT (token) DO NOTHING
		`, token.Hex()); err != nil {
			return 0, err
		}
		query += ` FOR UPDATE`
	}
	return loadAmount(l.tx.QueryRow(ctx, query, token.Hex()))
}

// loadAmount treats a missing row as zero.
func loadAmount(row pgx.Row) (uint64, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

// UpsertWindowStats inserts or updates window stats.
func (s *Store) UpsertWindowStats(ctx context.Context, stats []model.PoolWindowStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range stats {
		batch.Queue(`
			INSERT INTO pool_window_stats (
				pool_address, variant, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume_a, volume_b, fee_a, fee_b, fee_rate_a, fee_rate_b, apr, tvl_a, tvl_b, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12::numeric,$13::numeric,$14::numeric,$15::numeric,now(),now())
			ON CONFLICT (pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				fee_a = EXCLUDED.fee_a,
				fee_b = EXCLUDED.fee_b,
				fee_rate_a = EXCLUDED.fee_rate_a,
				fee_rate_b = EXCLUDED.fee_rate_b,
				apr = EXCLUDED.apr,
				tvl_a = EXCLUDED.tvl_a,
				tvl_b = EXCLUDED.tvl_b,
				updated_at = now()
		`,
			m.PoolAddress.Hex(),
			m.Variant,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.VolumeA,
			m.VolumeB,
			m.FeeA,
			m.FeeB,
			m.FeeRateA,
			m.FeeRateB,
			m.APR,
			m.TVLA,
			m.TVLB,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stats {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns resume_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT resume_ts FROM aggregator_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts resume_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregator_state (name, resume_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET resume_ts = EXCLUDED.resume_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
