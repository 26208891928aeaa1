package api

import (
	"errors"
	"net/http"
	"time"

	"biztomate-api/internal/appstore"
	"biztomate-api/internal/database"
	"biztomate-api/internal/entitlement"
	"biztomate-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// RestoreValidationRequest carries every receipt blob a restore enumeration
// produced on the device.
type RestoreValidationRequest struct {
	Receipts []string `json:"receipts" binding:"required"`
	Password string   `json:"password"`
	UserID   string   `json:"userId"`
}

// EntitlementResult is the reduced entitlement in restore responses.
type EntitlementResult struct {
	PlanID    string `json:"planId"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	CardQuota int    `json:"cardQuota"`
}

// RestoreValidationResponse reports the reduction outcome. Failed counts
// receipts whose validation leg failed on the network; when it is non-zero
// the response is a partial success, not a failure.
type RestoreValidationResponse struct {
	Success     bool              `json:"success"`
	Entitlement EntitlementResult `json:"entitlement"`
	Validated   int               `json:"validated"`
	Failed      int               `json:"failed"`
	Error       string            `json:"error,omitempty"`
}

// RestoreReceipts validates a batch of restored receipts sequentially and
// reduces the results to the best entitlement the user holds. The same
// verifier as the single-receipt endpoint is used; there is no second
// fallback implementation.
// POST /api/receipt-validation/restore
func RestoreReceipts(c *gin.Context) {
	var req RestoreValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, RestoreValidationResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
		})
		return
	}

	verifier := appstore.NewVerifier(req.Password)

	results := make([]*appstore.VerificationResult, 0, len(req.Receipts))
	validated := 0
	failed := 0

	for _, blob := range req.Receipts {
		result, err := verifier.Verify(c.Request.Context(), blob)
		if err != nil {
			var ne *appstore.NetworkError
			var ve *appstore.VerificationError
			switch {
			case errors.As(err, &ne):
				failed++
			case errors.As(err, &ve) && ve.Retryable():
				failed++
			default:
				// A semantically invalid receipt contributes nothing to the
				// reduction; it is not a partial failure.
				logging.Infof("Restored receipt rejected during validation: %v", err)
			}
			continue
		}
		validated++
		results = append(results, result)
	}

	now := time.Now()
	ent := entitlement.Resolve(results, now)

	if req.UserID != "" {
		store := entitlement.NewStore(database.GetRedis())
		if err := store.Save(c.Request.Context(), req.UserID, ent); err != nil {
			logging.Errorf("Failed to persist restored entitlement for %s: %v", req.UserID, err)
		}
	}

	resp := RestoreValidationResponse{
		Success:   true,
		Validated: validated,
		Failed:    failed,
		Entitlement: EntitlementResult{
			PlanID:    string(ent.PlanID),
			CardQuota: ent.CardQuota,
		},
	}
	if ent.ExpiresAt != nil {
		resp.Entitlement.ExpiresAt = ent.ExpiresAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}
