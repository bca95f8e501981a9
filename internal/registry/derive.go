package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	seedPool       = []byte("pool")
	seedShareToken = []byte("lp_mint")
	seedVaultA     = []byte("vault_a")
	seedVaultB     = []byte("vault_b")
	seedAuthority  = []byte("pool_authority")
)

// Addresses are the identities derived for one ordered token pair.
type Addresses struct {
	Pool       common.Address
	ShareToken common.Address
	VaultA     common.Address
	VaultB     common.Address
	Authority  common.Address
	Bump       uint8
}

// DeriveAddresses computes every pool-owned identity from the program
// address and the ordered pair. Bump is the pool address's canonical bump.
func DeriveAddresses(programID, tokenA, tokenB common.Address) (Addresses, error) {
	var out Addresses
	var err error

	if out.Pool, out.Bump, err = findAddress(programID, seedPool, tokenA, tokenB); err != nil {
		return Addresses{}, err
	}
	if out.ShareToken, _, err = findAddress(programID, seedShareToken, tokenA, tokenB); err != nil {
		return Addresses{}, err
	}
	if out.VaultA, _, err = findAddress(programID, seedVaultA, tokenA, tokenB); err != nil {
		return Addresses{}, err
	}
	if out.VaultB, _, err = findAddress(programID, seedVaultB, tokenA, tokenB); err != nil {
		return Addresses{}, err
	}
	if out.Authority, _, err = findAddress(programID, seedAuthority, tokenA, tokenB); err != nil {
		return Addresses{}, err
	}
	return out, nil
}

// findAddress walks bumps from 255 down and returns the first candidate whose
// leading byte is non-zero; that range is left to precompiles.
func findAddress(programID common.Address, seed []byte, tokenA, tokenB common.Address) (common.Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr := deriveAddress(programID, seed, tokenA, tokenB, uint8(bump))
		if addr[0] != 0 {
			return addr, uint8(bump), nil
		}
	}
	return common.Address{}, 0, fmt.Errorf("no valid bump for seed %q", seed)
}

func deriveAddress(programID common.Address, seed []byte, tokenA, tokenB common.Address, bump uint8) common.Address {
	hash := crypto.Keccak256(programID.Bytes(), seed, tokenA.Bytes(), tokenB.Bytes(), []byte{bump})
	return common.BytesToAddress(hash[12:])
}
