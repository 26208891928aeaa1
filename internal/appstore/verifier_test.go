package appstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msString(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixMilli())
}

type upstreamLeg struct {
	server   *httptest.Server
	calls    atomic.Int32
	lastBody atomic.Value
}

// newUpstreamLeg fakes one verification environment returning a fixed
// response body and recording every request it sees.
func newUpstreamLeg(t *testing.T, respond func() interface{}) *upstreamLeg {
	t.Helper()
	leg := &upstreamLeg{}
	leg.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leg.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		leg.lastBody.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(respond())
	}))
	t.Cleanup(leg.server.Close)
	return leg
}

func validResponse(env string, productID string, expiresAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":      0,
		"environment": env,
		"latest_receipt_info": []map[string]string{
			{
				"transaction_id":          "tx-2002",
				"original_transaction_id": "tx-1001",
				"product_id":              productID,
				"purchase_date_ms":        msString(expiresAt.Add(-30 * 24 * time.Hour)),
				"expires_date_ms":         msString(expiresAt),
			},
		},
	}
}

func statusResponse(status int) map[string]interface{} {
	return map[string]interface{}{"status": status}
}

func newTestVerifier(prodURL, sandboxURL string) *Verifier {
	return NewVerifierWithURLs(prodURL, sandboxURL, "shared-secret", 2*time.Second)
}

func TestVerify_ProductionValid_NeverTouchesSandbox(t *testing.T) {
	expiresAt := time.Now().Add(24 * time.Hour)
	prod := newUpstreamLeg(t, func() interface{} {
		return validResponse("Production", "com.biztomate.scanner.standard", expiresAt)
	})
	sandbox := newUpstreamLeg(t, func() interface{} {
		return validResponse("Sandbox", "com.biztomate.scanner.standard", expiresAt)
	})

	v := newTestVerifier(prod.server.URL, sandbox.server.URL)
	result, err := v.Verify(context.Background(), "receipt-blob")
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.False(t, result.IsExpired)
	assert.Equal(t, EnvironmentProduction, result.Environment)
	assert.Equal(t, "com.biztomate.scanner.standard", result.StoreProductID)
	assert.Equal(t, StatusOK, result.StatusCode)
	assert.Equal(t, "tx-2002", result.TransactionID)
	assert.Equal(t, "tx-1001", result.OriginalTransactionID)
	require.NotNil(t, result.ExpiresAt)
	assert.WithinDuration(t, expiresAt, *result.ExpiresAt, time.Second)

	assert.Equal(t, int32(1), prod.calls.Load())
	assert.Equal(t, int32(0), sandbox.calls.Load(), "status 0 must never issue a sandbox request")
}

func TestVerify_SandboxReceipt_FallsBackExactlyOnce(t *testing.T) {
	expiresAt := time.Now().Add(24 * time.Hour)
	prod := newUpstreamLeg(t, func() interface{} {
		return statusResponse(StatusSandboxReceipt)
	})
	sandbox := newUpstreamLeg(t, func() interface{} {
		return validResponse("Sandbox", "com.biztomate.scanner.premium", expiresAt)
	})

	v := newTestVerifier(prod.server.URL, sandbox.server.URL)
	result, err := v.Verify(context.Background(), "sandbox-receipt-blob")
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.Equal(t, EnvironmentSandbox, result.Environment)
	assert.Equal(t, int32(1), prod.calls.Load(), "no production retry after the fallback")
	assert.Equal(t, int32(1), sandbox.calls.Load())

	// The identical payload is replayed against the sandbox leg.
	assert.Equal(t, prod.lastBody.Load(), sandbox.lastBody.Load())
	assert.Contains(t, sandbox.lastBody.Load().(string), "sandbox-receipt-blob")
}

func TestVerify_SandboxLegFailureIsTerminal(t *testing.T) {
	prod := newUpstreamLeg(t, func() interface{} {
		return statusResponse(StatusSandboxReceipt)
	})
	sandbox := newUpstreamLeg(t, func() interface{} {
		return statusResponse(StatusProductionReceipt)
	})

	v := newTestVerifier(prod.server.URL, sandbox.server.URL)
	_, err := v.Verify(context.Background(), "blob")

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusProductionReceipt, verr.Status)
	assert.Equal(t, int32(1), prod.calls.Load())
	assert.Equal(t, int32(1), sandbox.calls.Load(), "never more than one sandbox attempt")
}

func TestVerify_TerminalStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"malformed receipt", StatusMalformedReceipt, false},
		{"authentication failure", StatusAuthFailed, false},
		{"shared secret mismatch", StatusSharedSecretMismatch, false},
		{"server unavailable is retryable", StatusServerUnavailable, true},
		{"unlisted code preserved", 21010, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prod := newUpstreamLeg(t, func() interface{} {
				return statusResponse(tt.status)
			})
			sandbox := newUpstreamLeg(t, func() interface{} {
				return statusResponse(0)
			})

			v := newTestVerifier(prod.server.URL, sandbox.server.URL)
			_, err := v.Verify(context.Background(), "blob")

			var verr *VerificationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.status, verr.Status)
			assert.Equal(t, tt.retryable, verr.Retryable())
			assert.Equal(t, int32(0), sandbox.calls.Load(), "only 21007 triggers the sandbox leg")
		})
	}
}

func TestVerify_ExpiredSubscriptionStatus_IsNotAnError(t *testing.T) {
	expiresAt := time.Now().Add(-48 * time.Hour)
	prod := newUpstreamLeg(t, func() interface{} {
		resp := validResponse("Production", "com.biztomate.scanner.basic", expiresAt)
		resp["status"] = StatusSubscriptionExpired
		return resp
	})
	sandbox := newUpstreamLeg(t, func() interface{} {
		return statusResponse(0)
	})

	v := newTestVerifier(prod.server.URL, sandbox.server.URL)
	result, err := v.Verify(context.Background(), "blob")
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.True(t, result.IsExpired)
	assert.Equal(t, StatusSubscriptionExpired, result.StatusCode)
	assert.Equal(t, "com.biztomate.scanner.basic", result.StoreProductID)
}

func TestVerify_ValidReceiptPastExpiry(t *testing.T) {
	expiresAt := time.Now().Add(-time.Hour)
	prod := newUpstreamLeg(t, func() interface{} {
		return validResponse("Production", "com.biztomate.scanner.standard", expiresAt)
	})
	sandbox := newUpstreamLeg(t, func() interface{} {
		return statusResponse(0)
	})

	v := newTestVerifier(prod.server.URL, sandbox.server.URL)
	result, err := v.Verify(context.Background(), "blob")
	require.NoError(t, err)

	assert.False(t, result.IsValid, "status 0 with a past expiry is expired, not valid")
	assert.True(t, result.IsExpired)
	assert.Equal(t, StatusOK, result.StatusCode)
}

func TestVerify_UsesNewestTransactionFirst(t *testing.T) {
	newest := time.Now().Add(30 * 24 * time.Hour)
	older := time.Now().Add(-30 * 24 * time.Hour)
	prod := newUpstreamLeg(t, func() interface{} {
		return map[string]interface{}{
			"status":      0,
			"environment": "Production",
			"latest_receipt_info": []map[string]string{
				{
					"transaction_id":          "tx-renewal-3",
					"original_transaction_id": "tx-1001",
					"product_id":              "com.biztomate.scanner.premium",
					"purchase_date_ms":        msString(older),
					"expires_date_ms":         msString(newest),
				},
				{
					"transaction_id":          "tx-renewal-2",
					"original_transaction_id": "tx-1001",
					"product_id":              "com.biztomate.scanner.premium",
					"purchase_date_ms":        msString(older),
					"expires_date_ms":         msString(older),
				},
			},
		}
	})
	sandbox := newUpstreamLeg(t, func() interface{} {
		return statusResponse(0)
	})

	v := newTestVerifier(prod.server.URL, sandbox.server.URL)
	result, err := v.Verify(context.Background(), "blob")
	require.NoError(t, err)

	assert.Equal(t, "tx-renewal-3", result.TransactionID)
	assert.True(t, result.IsValid)
}

func TestVerify_NetworkFailure(t *testing.T) {
	prod := newUpstreamLeg(t, func() interface{} {
		return statusResponse(0)
	})
	sandbox := newUpstreamLeg(t, func() interface{} {
		return statusResponse(0)
	})
	// Shut the production leg down so the request fails at transport level.
	prod.server.Close()

	v := newTestVerifier(prod.server.URL, sandbox.server.URL)
	_, err := v.Verify(context.Background(), "blob")

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, EnvironmentProduction, ne.Environment)

	var verr *VerificationError
	assert.False(t, errors.As(err, &verr), "network failure must not look like a semantic failure")
	assert.Equal(t, int32(0), sandbox.calls.Load(), "network failure must not trigger the sandbox fallback")
}

func TestStatusMessage_UnknownCodeKeepsRawValue(t *testing.T) {
	assert.Contains(t, StatusMessage(21099), "21099")
}
