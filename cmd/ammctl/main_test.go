package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, dir string, args ...string) string {
	t.Helper()
	base := []string{
		"--sqlite-path", filepath.Join(dir, "amm.db"),
		"--journal", filepath.Join(dir, "receipts.jsonl"),
		"--log-level", "error",
		"--tokens", "usdc=0x1111111111111111111111111111111111111111,weth=0x2222222222222222222222222222222222222222,alice=0xa11ce00000000000000000000000000000000000",
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, base...))
	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return strings.TrimSpace(out.String())
}

func TestCLIPoolLifecycle(t *testing.T) {
	dir := t.TempDir()

	created := runCLI(t, dir, "pool", "create", "--token-a", "usdc", "--token-b", "weth", "--variant", "standard")
	require.Contains(t, created, `"fee_rate":300`)

	runCLI(t, dir, "fund", "--token", "usdc", "--owner", "alice", "--amount", "2000000")
	runCLI(t, dir, "fund", "--token", "weth", "--owner", "alice", "--amount", "3000000")

	deposit := runCLI(t, dir, "deposit", "--token-a", "usdc", "--token-b", "weth", "--owner", "alice", "--amount-a", "1000000", "--amount-b", "2000000")
	require.Contains(t, deposit, `"shares":1000000`)

	quote := runCLI(t, dir, "quote", "--token-a", "usdc", "--token-b", "weth", "--token-in", "usdc", "--amount-in", "10000")
	require.Contains(t, quote, `"amount_out":19742`)
	require.Contains(t, quote, `"price_a_to_b":"2.000000000000"`)

	swap := runCLI(t, dir, "swap", "--token-a", "usdc", "--token-b", "weth", "--owner", "alice", "--token-in", "usdc", "--amount-in", "10000")
	require.Contains(t, swap, `"fee_amount":30`)

	balance := runCLI(t, dir, "balance", "--token", "weth", "--owner", "alice")
	require.Contains(t, balance, `"balance":"1019742"`)

	position := runCLI(t, dir, "position", "--token-a", "usdc", "--token-b", "weth", "--owner", "alice")
	require.Contains(t, position, `"share_bps":10000`)

	list := runCLI(t, dir, "pool", "list")
	require.Len(t, strings.Split(list, "\n"), 1)
}

func TestCLIRejectsDuplicatePool(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "pool", "create", "--token-a", "usdc", "--token-b", "weth")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{
		"pool", "create", "--token-a", "0x1111111111111111111111111111111111111111", "--token-b", "0x2222222222222222222222222222222222222222",
		"--sqlite-path", filepath.Join(dir, "amm.db"),
		"--journal", filepath.Join(dir, "receipts.jsonl"),
		"--log-level", "error",
	})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "pool already exists")
}
