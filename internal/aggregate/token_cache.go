package aggregate

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsSource resolves a token's display decimals, e.g. chain.Reader.
type DecimalsSource interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// TokenDecimalsCache caches token decimals by address.
type TokenDecimalsCache struct {
	mu   sync.RWMutex
	data map[common.Address]uint8
}

func NewTokenDecimalsCache() *TokenDecimalsCache {
	return &TokenDecimalsCache{data: make(map[common.Address]uint8)}
}

func (c *TokenDecimalsCache) Get(address common.Address) (uint8, bool) {
	c.mu.RLock()
	decimals, ok := c.data[address]
	c.mu.RUnlock()
	return decimals, ok
}

func (c *TokenDecimalsCache) Set(address common.Address, decimals uint8) {
	c.mu.Lock()
	c.data[address] = decimals
	c.mu.Unlock()
}
