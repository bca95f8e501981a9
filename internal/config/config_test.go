package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

func TestLoadDefaultsAndFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("store", "sqlite", "")
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--store", "postgres", "--log-level", "debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml"), nil); err == nil {
		t.Fatalf("expected missing explicit config file to fail")
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StorePostgres {
		t.Fatalf("store mismatch: %s", cfg.Store)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level mismatch: %s", cfg.LogLevel)
	}
	if cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("retry backoff default mismatch: %s", cfg.RetryBackoff)
	}
}

func TestLoadConfigFileTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amm.yaml")
	content := "store: memory\nprogram-id: \"0x9999999999999999999999999999999999999999\"\ntokens:\n  USDC: \"0x1111111111111111111111111111111111111111\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProgramID != common.HexToAddress("0x9999999999999999999999999999999999999999") {
		t.Fatalf("program id mismatch: %s", cfg.ProgramID.Hex())
	}

	addr, err := cfg.ResolveToken("usdc")
	if err != nil {
		t.Fatalf("resolve alias: %v", err)
	}
	if addr != common.HexToAddress("0x1111111111111111111111111111111111111111") {
		t.Fatalf("alias mismatch: %s", addr.Hex())
	}

	if _, err := cfg.ResolveToken("0x2222222222222222222222222222222222222222"); err != nil {
		t.Fatalf("resolve hex: %v", err)
	}
	if _, err := cfg.ResolveToken("weth"); err == nil {
		t.Fatalf("expected unknown token to fail")
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("AMM_STORE", "redis")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected unknown store error")
	}
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap(" a = 0x1 , broken, =x, b=0x2")
	if len(got) != 2 || got["a"] != "0x1" || got["b"] != "0x2" {
		t.Fatalf("unexpected map: %v", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000")
	if err != nil || ts != 1700000000 {
		t.Fatalf("unix parse: %d %v", ts, err)
	}
	ts, err = ParseTimestamp("2024-01-01T00:00:00Z")
	if err != nil || ts != 1704067200 {
		t.Fatalf("rfc3339 parse: %d %v", ts, err)
	}
	if ts, err := ParseTimestamp(""); err != nil || ts != 0 {
		t.Fatalf("empty parse: %d %v", ts, err)
	}
}
