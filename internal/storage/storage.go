package storage

import "ammEngine/internal/model"

// Journal is a sink for operation receipts.
type Journal interface {
	PutReceipts(receipts []model.Receipt) error
}
