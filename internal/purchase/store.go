package purchase

import (
	"context"
	"time"
)

// Transaction is what the platform store hands back for one purchase event.
type Transaction struct {
	TransactionID         string
	OriginalTransactionID string
	ProductID             string
	ReceiptBlob           string
	PurchasedAt           time.Time
	ExpiresAt             *time.Time
}

// PlatformStore is the bridge to the platform in-app purchase machinery.
// Implementations report failures as *StoreError where a platform code is
// available.
type PlatformStore interface {
	// FetchProducts returns the subset of requested product identifiers the
	// store can currently sell.
	FetchProducts(ctx context.Context, productIDs []string) ([]string, error)

	// Purchase runs the platform purchase flow for one product and returns
	// the signed transaction.
	Purchase(ctx context.Context, productID string) (*Transaction, error)

	// Restore enumerates the user's historical transactions. An empty list
	// is a successful outcome.
	Restore(ctx context.Context) ([]Transaction, error)

	// Finish acknowledges a transaction so the store stops redelivering it.
	Finish(ctx context.Context, transactionID string) error
}
