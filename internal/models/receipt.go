package models

import (
	"time"
)

// Receipt is a durably cached store purchase. A row is written the moment a
// purchase (or restore enumeration) hands us a receipt, before any network
// validation, so a crash between store confirmation and validation can never
// lose an already-charged transaction. Rows are never mutated in place; a
// newer receipt with the same original transaction id supersedes the old one.
type Receipt struct {
	BaseModel

	UserID string `json:"user_id" gorm:"size:100;index"`

	// Transaction identity
	TransactionID         string `json:"transaction_id" gorm:"not null;size:100;uniqueIndex"`
	OriginalTransactionID string `json:"original_transaction_id" gorm:"size:100;index"`

	// Product and payload
	StoreProductID string `json:"store_product_id" gorm:"size:100"`
	ReceiptBlob    string `json:"receipt_blob" gorm:"type:text"`

	// Purchase timing
	PurchaseDate time.Time  `json:"purchase_date"`
	ExpiresDate  *time.Time `json:"expires_date" gorm:"index"`

	// Finalization bookkeeping: whether the platform store has been told the
	// transaction is durably recorded.
	Finalized bool `json:"finalized" gorm:"default:false"`

	// Last validation outcome, purely informational
	Validated      bool       `json:"validated" gorm:"default:false"`
	LastExaminedAt *time.Time `json:"last_examined_at"`
	Environment    string     `json:"environment" gorm:"size:20"`
}
