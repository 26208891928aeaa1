//go:build devsim

package appstore

import (
	"time"

	"github.com/google/uuid"
)

// simulatedResult substitutes a synthetic valid subscription when the
// verification backend is unreachable. Only compiled under the devsim tag so
// the simulated path cannot exist in a production binary.
func simulatedResult(env Environment) *VerificationResult {
	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	return &VerificationResult{
		IsValid:               true,
		Environment:           EnvironmentSandbox,
		StoreProductID:        "com.biztomate.scanner.standard",
		ExpiresAt:             &expiresAt,
		IsExpired:             false,
		TransactionID:         "devsim-" + uuid.NewString(),
		OriginalTransactionID: "devsim-original",
		StatusCode:            StatusOK,
		RawMessage:            "simulated verification (devsim build)",
	}
}
