package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammEngine/internal/amm"
)

const erc20ABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

// ERC20ABI returns the parsed subset of the ERC-20 interface the reader uses.
func ERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

// Reader reads token balances from deployed ERC-20 contracts. Each call is
// retried with exponential backoff.
type Reader struct {
	caller     ContractCaller
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func NewReader(caller ContractCaller, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{caller: caller, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// Snapshot reads both vault balances and the share token supply at block
// (nil for latest). Balances above uint64 are rejected.
func (r *Reader) Snapshot(ctx context.Context, pool amm.Pool, block *big.Int) (amm.Snapshot, error) {
	reserveA, err := r.BalanceOf(ctx, pool.TokenA, pool.VaultA, block)
	if err != nil {
		return amm.Snapshot{}, fmt.Errorf("reserve a: %w", err)
	}
	reserveB, err := r.BalanceOf(ctx, pool.TokenB, pool.VaultB, block)
	if err != nil {
		return amm.Snapshot{}, fmt.Errorf("reserve b: %w", err)
	}
	supply, err := r.TotalSupply(ctx, pool.ShareToken, block)
	if err != nil {
		return amm.Snapshot{}, fmt.Errorf("share supply: %w", err)
	}
	return amm.NewSnapshot(reserveA, reserveB, supply), nil
}

func (r *Reader) BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (uint64, error) {
	values, err := r.call(ctx, token, "balanceOf", block, owner)
	if err != nil {
		return 0, err
	}
	return asUint64(values, "balanceOf")
}

func (r *Reader) TotalSupply(ctx context.Context, token common.Address, block *big.Int) (uint64, error) {
	values, err := r.call(ctx, token, "totalSupply", block)
	if err != nil {
		return 0, err
	}
	return asUint64(values, "totalSupply")
}

func (r *Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := r.call(ctx, token, "decimals", nil)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("decimals return size %d", len(values))
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	return decimals, nil
}

func (r *Reader) call(ctx context.Context, token common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var resp []byte
	msg := ethereum.CallMsg{To: &token, Data: data}
	err = withRetry(ctx, r.maxRetries, r.baseDelay, func(ctx context.Context) error {
		out, err := r.caller.CallContract(ctx, msg, block)
		if err != nil {
			r.logger.Warn("contract call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asUint64(values []interface{}, method string) (uint64, error) {
	if len(values) != 1 {
		return 0, fmt.Errorf("%s return size %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s: %w: %s", method, amm.ErrArithmeticOverflow, v)
	}
	return v.Uint64(), nil
}
