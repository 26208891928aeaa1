package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"biztomate-api/internal/appstore"
	"biztomate-api/internal/catalog"
	"biztomate-api/internal/database"
	"biztomate-api/internal/purchase"
	"biztomate-api/internal/services"
	"biztomate-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// ReceiptValidationRequest represents a receipt validation request
type ReceiptValidationRequest struct {
	ReceiptData string `json:"receiptData" binding:"required"` // Base64 receipt blob
	Password    string `json:"password"`                       // Shared secret; falls back to server config
	UserID      string `json:"userId"`                         // Optional owner for the receipt audit trail
	NotifyEmail string `json:"notifyEmail"`                    // Optional confirmation recipient
}

// SubscriptionResult is the normalized subscription part of the response
type SubscriptionResult struct {
	IsValid     bool   `json:"isValid"`
	ProductID   string `json:"productId"`
	ExpiresDate string `json:"expiresDate,omitempty"`
	IsExpired   bool   `json:"isExpired"`
}

// ReceiptValidationResponse represents a receipt validation response
type ReceiptValidationResponse struct {
	Success      bool                `json:"success"`
	Environment  string              `json:"environment,omitempty"`
	Subscription *SubscriptionResult `json:"subscription,omitempty"`
	StatusCode   int                 `json:"statusCode"`
	Error        string              `json:"error,omitempty"`
}

// ValidateReceipt validates one receipt blob against the platform
// verification backends, hiding the production/sandbox split from the caller.
// POST /api/receipt-validation
func ValidateReceipt(c *gin.Context) {
	var req ReceiptValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ReceiptValidationResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
		})
		return
	}

	verifier := appstore.NewVerifier(req.Password)

	result, err := verifier.Verify(c.Request.Context(), req.ReceiptData)
	if err != nil {
		writeVerificationError(c, err)
		return
	}

	if result.TransactionID != "" {
		persistReceipt(c.Request.Context(), req.UserID, req.ReceiptData, result)
	}

	if result.IsValid && req.NotifyEmail != "" && result.ExpiresAt != nil {
		// Fire and forget: email failures never affect the validation verdict.
		notifier := services.NewNotificationService()
		plan := catalog.PlanForProduct(result.StoreProductID)
		expiresAt := *result.ExpiresAt
		go func() {
			if err := notifier.SendPurchaseVerifiedEmail(req.NotifyEmail, plan, expiresAt); err != nil {
				logging.Errorf("Failed to send purchase confirmation email: %v", err)
			}
		}()
	}

	c.JSON(http.StatusOK, ReceiptValidationResponse{
		Success:      true,
		Environment:  string(result.Environment),
		Subscription: subscriptionResult(result),
		StatusCode:   result.StatusCode,
	})
}

// writeVerificationError maps a verification failure to the response
// contract. Transport failures are 503 and retryable; semantic failures are
// terminal 400s except the retryable upstream-unavailable status.
func writeVerificationError(c *gin.Context, err error) {
	var ne *appstore.NetworkError
	if errors.As(err, &ne) {
		logging.Errorf("Receipt validation network failure: %v", ne)
		c.JSON(http.StatusServiceUnavailable, ReceiptValidationResponse{
			Success: false,
			Error:   "verification servers unreachable, retry later",
		})
		return
	}

	var ve *appstore.VerificationError
	if errors.As(err, &ve) {
		httpStatus := http.StatusBadRequest
		if ve.Retryable() {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, ReceiptValidationResponse{
			Success:    false,
			StatusCode: ve.Status,
			Error:      appstore.StatusMessage(ve.Status),
		})
		return
	}

	logging.Errorf("Receipt validation failed: %v", err)
	c.JSON(http.StatusInternalServerError, ReceiptValidationResponse{
		Success: false,
		Error:   "receipt validation failed",
	})
}

// persistReceipt records the examined receipt for the audit trail and later
// re-validation sweeps. Best effort: a persistence problem never changes the
// verdict already established upstream.
func persistReceipt(ctx context.Context, userID, blob string, result *appstore.VerificationResult) {
	store := database.NewReceiptStore(database.GetDB())
	receipt := purchase.Receipt{
		TransactionID:         result.TransactionID,
		OriginalTransactionID: result.OriginalTransactionID,
		StoreProductID:        result.StoreProductID,
		ReceiptBlob:           blob,
		PurchasedAt:           time.Now(),
		ExpiresAt:             result.ExpiresAt,
	}
	if err := store.Put(ctx, userID, receipt); err != nil {
		logging.Errorf("Failed to persist receipt %s: %v", result.TransactionID, err)
		return
	}
	if err := store.MarkValidated(ctx, result.TransactionID, string(result.Environment)); err != nil {
		logging.Errorf("Failed to mark receipt %s validated: %v", result.TransactionID, err)
	}
}

func subscriptionResult(result *appstore.VerificationResult) *SubscriptionResult {
	sub := &SubscriptionResult{
		IsValid:   result.IsValid,
		ProductID: result.StoreProductID,
		IsExpired: result.IsExpired,
	}
	if result.ExpiresAt != nil {
		sub.ExpiresDate = result.ExpiresAt.Format(time.RFC3339)
	}
	return sub
}
