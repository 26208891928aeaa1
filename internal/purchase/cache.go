package purchase

import (
	"context"
	"time"
)

// Receipt is a cached proof of purchase. Created by a successful purchase or
// a restore enumeration, persisted before any network validation, never
// mutated; a newer receipt in the same lineage (same original transaction
// id) supersedes the cached one.
type Receipt struct {
	TransactionID         string     `json:"transaction_id"`
	OriginalTransactionID string     `json:"original_transaction_id"`
	StoreProductID        string     `json:"store_product_id"`
	ReceiptBlob           string     `json:"receipt_blob"`
	PurchasedAt           time.Time  `json:"purchased_at"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
}

// ReceiptCache is the durable local store of obtained receipts, keyed by
// transaction identifier. Put must be durable before it returns: the
// purchase flow relies on it to guarantee no charged transaction is lost.
type ReceiptCache interface {
	Put(ctx context.Context, userID string, receipt Receipt) error
	List(ctx context.Context, userID string) ([]Receipt, error)
	MarkFinalized(ctx context.Context, transactionID string) error
}

func receiptFromTransaction(tx *Transaction) Receipt {
	return Receipt{
		TransactionID:         tx.TransactionID,
		OriginalTransactionID: tx.OriginalTransactionID,
		StoreProductID:        tx.ProductID,
		ReceiptBlob:           tx.ReceiptBlob,
		PurchasedAt:           tx.PurchasedAt,
		ExpiresAt:             tx.ExpiresAt,
	}
}
