package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"biztomate-api/internal/models"
	"biztomate-api/internal/purchase"
	"biztomate-api/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func init() {
	logging.InitLogging()
}

func testStore(t *testing.T) *ReceiptStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "receipts.db")), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Receipt{}))
	return NewReceiptStore(db)
}

func receiptAt(txID, origID string, purchasedAt time.Time) purchase.Receipt {
	expiresAt := purchasedAt.Add(30 * 24 * time.Hour)
	return purchase.Receipt{
		TransactionID:         txID,
		OriginalTransactionID: origID,
		StoreProductID:        "com.biztomate.scanner.standard",
		ReceiptBlob:           "blob-" + txID,
		PurchasedAt:           purchasedAt,
		ExpiresAt:             &expiresAt,
	}
}

func TestReceiptStore_PutAndList(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-1", "otx-1", now.Add(-time.Hour))))
	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-2", "otx-2", now)))
	require.NoError(t, store.Put(ctx, "user-2", receiptAt("tx-3", "otx-3", now)))

	receipts, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "tx-2", receipts[0].TransactionID, "newest purchase first")
	assert.Equal(t, "tx-1", receipts[1].TransactionID)
	assert.Equal(t, "blob-tx-2", receipts[0].ReceiptBlob)
}

func TestReceiptStore_RedeliveryIsNoop(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	receipt := receiptAt("tx-1", "otx-1", now)
	require.NoError(t, store.Put(ctx, "user-1", receipt))
	require.NoError(t, store.Put(ctx, "user-1", receipt))

	receipts, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestReceiptStore_RenewalSupersedesLineage(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-1", "otx-1", now.Add(-30*24*time.Hour))))
	renewal := receiptAt("tx-2", "otx-1", now)
	renewal.StoreProductID = "com.biztomate.scanner.premium"
	require.NoError(t, store.Put(ctx, "user-1", renewal))

	receipts, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, receipts, 1, "one row per subscription lineage")
	assert.Equal(t, "tx-2", receipts[0].TransactionID)
	assert.Equal(t, "com.biztomate.scanner.premium", receipts[0].StoreProductID)
}

func TestReceiptStore_StaleReceiptIgnored(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-2", "otx-1", now)))
	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-1", "otx-1", now.Add(-30*24*time.Hour))))

	receipts, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "tx-2", receipts[0].TransactionID, "an older receipt never replaces a newer one")
}

func TestReceiptStore_MarkFinalized(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-1", "otx-1", time.Now())))
	require.NoError(t, store.MarkFinalized(ctx, "tx-1"))

	var row models.Receipt
	require.NoError(t, store.db.Where("transaction_id = ?", "tx-1").First(&row).Error)
	assert.True(t, row.Finalized)
}

func TestReceiptStore_RenewalResetsFinalization(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-1", "otx-1", now.Add(-time.Hour))))
	require.NoError(t, store.MarkFinalized(ctx, "tx-1"))
	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-2", "otx-1", now)))

	var row models.Receipt
	require.NoError(t, store.db.Where("transaction_id = ?", "tx-2").First(&row).Error)
	assert.False(t, row.Finalized, "a superseding receipt starts unfinalized")
}

func TestReceiptStore_MarkValidated(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "user-1", receiptAt("tx-1", "otx-1", time.Now())))
	require.NoError(t, store.MarkValidated(ctx, "tx-1", "Production"))

	var row models.Receipt
	require.NoError(t, store.db.Where("transaction_id = ?", "tx-1").First(&row).Error)
	assert.True(t, row.Validated)
	assert.Equal(t, "Production", row.Environment)
	assert.NotNil(t, row.LastExaminedAt)
}

func TestReceiptStore_ImplementsReceiptCache(t *testing.T) {
	var _ purchase.ReceiptCache = testStore(t)
}
