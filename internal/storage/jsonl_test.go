package storage

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammEngine/internal/model"
)

func TestJsonlStorageAppendAndScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.jsonl")
	store := NewJsonlStorage(path)

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	first := []model.Receipt{
		{ID: "a", Sequence: 1, Kind: model.KindDeposit, Pool: pool, AmountA: 10, AmountB: 20, Shares: 1_000_000},
		{ID: "b", Sequence: 2, Kind: model.KindSwap, Pool: pool, AmountIn: 10_000, AmountOut: 19_742, Fee: 30},
	}
	if err := store.PutReceipts(first); err != nil {
		t.Fatalf("put receipts: %v", err)
	}
	if err := store.PutReceipts([]model.Receipt{{ID: "c", Sequence: 3, Kind: model.KindWithdraw, Pool: pool}}); err != nil {
		t.Fatalf("put receipts: %v", err)
	}
	if err := store.PutReceipts(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	var got []model.Receipt
	err := ScanReceipts(path, func(r model.Receipt) error {
		got = append(got, r)
		return nil
	}, func(line int, err error) {
		t.Fatalf("line %d: %v", line, err)
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 receipts, got %d", len(got))
	}
	if got[1] != first[1] {
		t.Fatalf("receipt mismatch: %+v != %+v", got[1], first[1])
	}
	if got[2].ID != "c" {
		t.Fatalf("append order mismatch: %s", got[2].ID)
	}
}
