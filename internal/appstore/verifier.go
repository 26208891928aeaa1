package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"biztomate-api/internal/config"
	"biztomate-api/pkg/logging"
)

// Environment identifies which verification backend issued a result.
type Environment string

const (
	EnvironmentProduction Environment = "Production"
	EnvironmentSandbox    Environment = "Sandbox"
)

// VerificationResult is the normalized outcome of verifying one receipt blob.
// IsValid is true only for status 0 with a subscription expiry present.
type VerificationResult struct {
	IsValid               bool
	Environment           Environment
	StoreProductID        string
	ExpiresAt             *time.Time
	IsExpired             bool
	TransactionID         string
	OriginalTransactionID string
	StatusCode            int
	RawMessage            string
}

// Verifier converts one receipt blob into one VerificationResult, hiding the
// production/sandbox split from every caller. It is the only place in the
// codebase that knows about the two-environment fallback protocol.
type Verifier struct {
	productionURL string
	sandboxURL    string
	sharedSecret  string
	httpClient    *http.Client
}

// NewVerifier creates a verifier from the application configuration. An
// empty sharedSecret falls back to the configured one, so callers can pass
// through a per-request secret unchanged.
func NewVerifier(sharedSecret string) *Verifier {
	if sharedSecret == "" {
		sharedSecret = config.AppConfig.AppStoreSharedSecret
	}
	return NewVerifierWithURLs(
		config.AppConfig.AppStoreProductionURL,
		config.AppConfig.AppStoreSandboxURL,
		sharedSecret,
		time.Duration(config.AppConfig.VerifyTimeoutSeconds)*time.Second,
	)
}

// NewVerifierWithURLs creates a verifier against explicit endpoints. The
// timeout applies per leg, so worst case latency is twice the timeout.
func NewVerifierWithURLs(productionURL, sandboxURL, sharedSecret string, timeout time.Duration) *Verifier {
	return &Verifier{
		productionURL: productionURL,
		sandboxURL:    sandboxURL,
		sharedSecret:  sharedSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ProductionURL returns the production verification endpoint in use.
func (v *Verifier) ProductionURL() string { return v.productionURL }

// SandboxURL returns the sandbox verification endpoint in use.
func (v *Verifier) SandboxURL() string { return v.sandboxURL }

type verifyRequest struct {
	ReceiptData string `json:"receipt-data"`
	Password    string `json:"password,omitempty"`
}

// transactionRecord is one renewal entry in the verification response.
// The upstream orders the history array newest renewal first.
type transactionRecord struct {
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	ProductID             string `json:"product_id"`
	PurchaseDateMS        string `json:"purchase_date_ms"`
	ExpiresDateMS         string `json:"expires_date_ms"`
}

type verifyResponse struct {
	Status            int                 `json:"status"`
	Environment       string              `json:"environment"`
	LatestReceiptInfo []transactionRecord `json:"latest_receipt_info"`
}

// Verify validates a receipt blob, trying production first and falling back
// to sandbox exactly once when production answers with the sandbox-receipt
// sentinel. Both legs are strictly sequential; they are never issued
// concurrently. Network failures on either leg surface as *NetworkError and
// do not trigger the fallback.
func (v *Verifier) Verify(ctx context.Context, receiptData string) (*VerificationResult, error) {
	result, err := v.verifyLeg(ctx, v.productionURL, EnvironmentProduction, receiptData)
	if err != nil {
		var verr *VerificationError
		if errors.As(err, &verr) && verr.Status == StatusSandboxReceipt {
			logging.Infof("Receipt issued by sandbox, retrying against sandbox endpoint")
			return v.verifyLeg(ctx, v.sandboxURL, EnvironmentSandbox, receiptData)
		}
		return nil, err
	}
	return result, nil
}

// verifyLeg runs a single verification request against one environment.
func (v *Verifier) verifyLeg(ctx context.Context, url string, env Environment, receiptData string) (*VerificationResult, error) {
	payload := verifyRequest{
		ReceiptData: receiptData,
		Password:    v.sharedSecret,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		if sim := simulatedResult(env); sim != nil {
			logging.Errorf("Verification request failed, returning simulated result (dev build only): %v", err)
			return sim, nil
		}
		return nil, &NetworkError{Environment: env, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Environment: env, Err: err}
	}

	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("failed to parse verification response: %w", err)
	}

	switch vr.Status {
	case StatusOK:
		return v.buildResult(&vr, env, true)
	case StatusSubscriptionExpired:
		// Valid receipt whose subscription has lapsed. Not an error: the
		// caller resolves it to the free tier.
		return v.buildResult(&vr, env, false)
	default:
		return nil, &VerificationError{Status: vr.Status}
	}
}

// buildResult extracts the most recent transaction from the response history
// and normalizes it. The history array arrives newest renewal first.
func (v *Verifier) buildResult(vr *verifyResponse, env Environment, valid bool) (*VerificationResult, error) {
	if len(vr.LatestReceiptInfo) == 0 {
		return nil, fmt.Errorf("no subscription transactions in verification response")
	}
	latest := vr.LatestReceiptInfo[0]

	expiresAt, err := parseMillisTimestamp(latest.ExpiresDateMS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires date: %w", err)
	}

	isExpired := expiresAt.Before(time.Now())

	result := &VerificationResult{
		IsValid:               valid && !isExpired,
		Environment:           responseEnvironment(vr.Environment, env),
		StoreProductID:        latest.ProductID,
		ExpiresAt:             &expiresAt,
		IsExpired:             isExpired,
		TransactionID:         latest.TransactionID,
		OriginalTransactionID: latest.OriginalTransactionID,
		StatusCode:            vr.Status,
		RawMessage:            StatusMessage(vr.Status),
	}
	return result, nil
}

// responseEnvironment prefers what the upstream declared, falling back to
// the leg we actually called.
func responseEnvironment(declared string, leg Environment) Environment {
	switch declared {
	case "Production":
		return EnvironmentProduction
	case "Sandbox":
		return EnvironmentSandbox
	default:
		return leg
	}
}

// parseMillisTimestamp parses an epoch-milliseconds string timestamp.
func parseMillisTimestamp(timestampStr string) (time.Time, error) {
	if timestampStr == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	var timestamp int64
	if _, err := fmt.Sscanf(timestampStr, "%d", &timestamp); err != nil {
		return time.Time{}, err
	}
	return time.Unix(timestamp/1000, (timestamp%1000)*1000000), nil
}
