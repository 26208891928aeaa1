package database

import (
	"context"

	"biztomate-api/internal/models"
	"biztomate-api/internal/purchase"
	"biztomate-api/pkg/logging"

	"gorm.io/gorm"
)

// ReceiptStore is the gorm-backed receipt cache. One row per subscription
// lineage: a newer receipt with the same original transaction id supersedes
// the stored one inside a transaction, mirroring how renewals replace their
// predecessors on the platform side.
type ReceiptStore struct {
	db *gorm.DB
}

// NewReceiptStore creates a receipt store on an existing gorm handle.
func NewReceiptStore(db *gorm.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// Put durably persists a receipt. Writing an already-cached transaction id
// is a no-op, which is what dedupes store redeliveries of unfinalized
// transactions.
func (s *ReceiptStore) Put(ctx context.Context, userID string, receipt purchase.Receipt) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Receipt
		err := tx.Where("user_id = ? AND original_transaction_id = ?",
			userID, receipt.OriginalTransactionID).First(&existing).Error

		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return tx.Create(rowFromReceipt(userID, receipt)).Error
			}
			return err
		}

		if existing.TransactionID == receipt.TransactionID {
			// Same purchase event redelivered; nothing to change.
			return nil
		}
		if receipt.PurchasedAt.Before(existing.PurchaseDate) {
			// An older receipt in the lineage never supersedes a newer one.
			logging.Infof("Ignoring stale receipt %s for lineage %s", receipt.TransactionID, receipt.OriginalTransactionID)
			return nil
		}

		existing.TransactionID = receipt.TransactionID
		existing.StoreProductID = receipt.StoreProductID
		existing.ReceiptBlob = receipt.ReceiptBlob
		existing.PurchaseDate = receipt.PurchasedAt
		existing.ExpiresDate = receipt.ExpiresAt
		existing.Finalized = false
		return tx.Save(&existing).Error
	})
}

// List returns all cached receipts for a user, newest purchase first.
func (s *ReceiptStore) List(ctx context.Context, userID string) ([]purchase.Receipt, error) {
	var rows []models.Receipt
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchase_date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	receipts := make([]purchase.Receipt, 0, len(rows))
	for i := range rows {
		receipts = append(receipts, receiptFromRow(&rows[i]))
	}
	return receipts, nil
}

// MarkFinalized records that the platform store acknowledged a transaction.
func (s *ReceiptStore) MarkFinalized(ctx context.Context, transactionID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("transaction_id = ?", transactionID).
		Update("finalized", true).Error
}

// MarkValidated records a successful gateway validation of a receipt.
func (s *ReceiptStore) MarkValidated(ctx context.Context, transactionID, environment string) error {
	return s.db.WithContext(ctx).
		Model(&models.Receipt{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"validated":        true,
			"last_examined_at": gorm.Expr("CURRENT_TIMESTAMP"),
			"environment":      environment,
		}).Error
}

func rowFromReceipt(userID string, receipt purchase.Receipt) *models.Receipt {
	return &models.Receipt{
		UserID:                userID,
		TransactionID:         receipt.TransactionID,
		OriginalTransactionID: receipt.OriginalTransactionID,
		StoreProductID:        receipt.StoreProductID,
		ReceiptBlob:           receipt.ReceiptBlob,
		PurchaseDate:          receipt.PurchasedAt,
		ExpiresDate:           receipt.ExpiresAt,
	}
}

func receiptFromRow(row *models.Receipt) purchase.Receipt {
	return purchase.Receipt{
		TransactionID:         row.TransactionID,
		OriginalTransactionID: row.OriginalTransactionID,
		StoreProductID:        row.StoreProductID,
		ReceiptBlob:           row.ReceiptBlob,
		PurchasedAt:           row.PurchaseDate,
		ExpiresAt:             row.ExpiresDate,
	}
}
