package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ContractCaller is the part of the client the ERC-20 reader needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// HeadSource is the part of the client ReadHead needs.
type HeadSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Client is a go-ethereum RPC connection serving both interfaces.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient dials the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// Head pins the block a chain quote is priced at.
type Head struct {
	ChainID uint64
	Number  uint64
	Time    time.Time
}

// ReadHead resolves block (0 for latest) to its header. Reserves read at
// Head.Number all belong to the same block, so quotes priced from them are
// consistent even while the chain advances.
func ReadHead(ctx context.Context, src HeadSource, block uint64, maxRetries int, baseDelay time.Duration) (Head, error) {
	var number *big.Int
	if block > 0 {
		number = new(big.Int).SetUint64(block)
	}

	var (
		chainID *big.Int
		header  *types.Header
	)
	err := withRetry(ctx, maxRetries, baseDelay, func(ctx context.Context) error {
		var err error
		if chainID == nil {
			if chainID, err = src.ChainID(ctx); err != nil {
				return fmt.Errorf("chain id: %w", err)
			}
		}
		header, err = src.HeaderByNumber(ctx, number)
		if err != nil {
			return fmt.Errorf("header %v: %w", number, err)
		}
		return nil
	})
	if err != nil {
		return Head{}, err
	}
	if !chainID.IsUint64() {
		return Head{}, fmt.Errorf("chain id %s out of range", chainID)
	}
	return Head{
		ChainID: chainID.Uint64(),
		Number:  header.Number.Uint64(),
		Time:    time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}
