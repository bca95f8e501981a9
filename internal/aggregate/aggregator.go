package aggregate

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammEngine/internal/model"
	"ammEngine/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink receives finished window stats, e.g. postgres.Store.
type Sink interface {
	UpsertWindowStats(ctx context.Context, stats []model.PoolWindowStats) error
}

// Aggregator folds journaled swap receipts into per-pool window stats.
type Aggregator struct {
	cfg          Config
	sink         Sink
	decimalsSrc  DecimalsSource
	logger       *zap.Logger
	decimals     *TokenDecimalsCache
	accumulators map[common.Address]*Accumulator
}

// NewAggregator builds an aggregator. decimalsSrc may be nil, in which case
// amounts are reported in base units.
func NewAggregator(cfg Config, sink Sink, decimalsSrc DecimalsSource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		decimalsSrc:  decimalsSrc,
		logger:       logger,
		decimals:     NewTokenDecimalsCache(),
		accumulators: make(map[common.Address]*Accumulator),
	}
}

// Run executes aggregation over a receipts JSONL journal.
func (a *Aggregator) Run(ctx context.Context, journalPath string) error {
	if a.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	resumeTs, err := a.loadResumeTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowStats, 0, a.cfg.BatchSize)
	var total, aggregated, skipped, failed int

	err = storage.ScanReceipts(journalPath, func(receipt model.Receipt) error {
		total++
		if err := ctx.Err(); err != nil {
			return err
		}

		ts := uint64(receipt.Timestamp)
		if receipt.Kind != model.KindSwap || ts < resumeTs {
			skipped++
			return nil
		}

		windowStart := windowStart(ts, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		acc := a.accumulators[receipt.Pool]
		if acc == nil {
			acc = NewAccumulator(receipt, windowStart, windowEnd)
			a.accumulators[receipt.Pool] = acc
		} else if acc.WindowStart != windowStart {
			batch = append(batch, a.flushAccumulator(ctx, acc))
			acc = NewAccumulator(receipt, windowStart, windowEnd)
			a.accumulators[receipt.Pool] = acc
		}

		if err := acc.AddSwap(receipt); err != nil {
			failed++
			a.logger.Warn("aggregate receipt", zap.Error(err), zap.String("pool", receipt.Pool.Hex()), zap.String("id", receipt.ID))
			return nil
		}
		aggregated++

		if len(batch) >= a.cfg.BatchSize {
			if err := a.sink.UpsertWindowStats(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]

			if err := a.saveState(ctx, a.resumePoint(resumeTs)); err != nil {
				return err
			}
		}
		return nil
	}, func(line int, err error) {
		failed++
		a.logger.Warn("decode receipt", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return err
	}

	// The last window of every pool may still receive swaps, so the next run
	// resumes at the oldest of them and rebuilds it whole.
	next := a.resumePoint(resumeTs)
	for _, acc := range a.accumulators {
		batch = append(batch, a.flushAccumulator(ctx, acc))
	}
	a.accumulators = make(map[common.Address]*Accumulator)

	if len(batch) > 0 {
		if err := a.sink.UpsertWindowStats(ctx, batch); err != nil {
			return err
		}
	}

	if err := a.saveState(ctx, next); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("aggregated", aggregated),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

// loadResumeTimestamp returns the first timestamp to aggregate.
func (a *Aggregator) loadResumeTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return windowStart(a.cfg.RecomputeFrom, a.cfg.WindowSeconds), nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	resume, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return resume, nil
}

// resumePoint never moves past the start of a window that is still open, so
// a rerun rebuilds that window from its first swap.
func (a *Aggregator) resumePoint(fallback uint64) uint64 {
	oldest, ok := oldestOpenWindow(a.accumulators)
	if !ok {
		return fallback
	}
	return oldest
}

func (a *Aggregator) saveState(ctx context.Context, resume uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	return a.cfg.StateStore.Save(ctx, resume)
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) model.PoolWindowStats {
	decimalsA := a.tokenDecimals(ctx, acc.TokenA)
	decimalsB := a.tokenDecimals(ctx, acc.TokenB)

	tvlA := new(big.Int).SetUint64(acc.ReserveA)
	tvlB := new(big.Int).SetUint64(acc.ReserveB)
	feeRateA, feeRateB := computeFeeRates(acc.FeeA, acc.FeeB, tvlA, tvlB)
	tvlAStr := formatTokenAmount(tvlA, decimalsA)
	tvlBStr := formatTokenAmount(tvlB, decimalsB)

	return model.PoolWindowStats{
		PoolAddress:    acc.PoolAddress,
		Variant:        acc.Variant,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		VolumeA:        formatTokenAmount(acc.VolumeA, decimalsA),
		VolumeB:        formatTokenAmount(acc.VolumeB, decimalsB),
		FeeA:           formatTokenAmount(acc.FeeA, decimalsA),
		FeeB:           formatTokenAmount(acc.FeeB, decimalsB),
		FeeRateA:       feeRateA,
		FeeRateB:       feeRateB,
		APR:            computeAPR(feeRateA, feeRateB, a.cfg.WindowSeconds),
		TVLA:           &tvlAStr,
		TVLB:           &tvlBStr,
	}
}

// tokenDecimals falls back to base units when no source is configured or
// the lookup fails.
func (a *Aggregator) tokenDecimals(ctx context.Context, token common.Address) uint8 {
	if a.decimalsSrc == nil || token == (common.Address{}) {
		return 0
	}
	if decimals, ok := a.decimals.Get(token); ok {
		return decimals
	}
	decimals, err := a.decimalsSrc.Decimals(ctx, token)
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", token.Hex()), zap.Error(err))
		return 0
	}
	a.decimals.Set(token, decimals)
	return decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func oldestOpenWindow(acc map[common.Address]*Accumulator) (uint64, bool) {
	var (
		oldest uint64
		found  bool
	)
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if !found || entry.WindowStart < oldest {
			oldest = entry.WindowStart
			found = true
		}
	}
	return oldest, found
}
