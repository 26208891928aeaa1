package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"biztomate-api/internal/appstore"
)

// GatewayClient calls the server-side validation gateway. It is the only
// Validator implementation: both the purchase flow and the restore flow go
// through it, so the production/sandbox fallback lives in one place on the
// server and nowhere in the app.
type GatewayClient struct {
	baseURL      string
	sharedSecret string
	httpClient   *http.Client
}

// NewGatewayClient creates a gateway client against the given base URL.
func NewGatewayClient(baseURL, sharedSecret string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:      baseURL,
		sharedSecret: sharedSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type gatewayRequest struct {
	ReceiptData string `json:"receiptData"`
	Password    string `json:"password"`
}

type gatewaySubscription struct {
	IsValid     bool   `json:"isValid"`
	ProductID   string `json:"productId"`
	ExpiresDate string `json:"expiresDate"`
	IsExpired   bool   `json:"isExpired"`
}

type gatewayResponse struct {
	Success      bool                 `json:"success"`
	Environment  string               `json:"environment"`
	Subscription *gatewaySubscription `json:"subscription"`
	StatusCode   int                  `json:"statusCode"`
	Error        string               `json:"error"`
}

// Validate submits one receipt blob to the gateway and returns the
// normalized verification result. Transport failures surface as
// *appstore.NetworkError so callers can tell a retryable outage from a
// semantically invalid receipt.
func (g *GatewayClient) Validate(ctx context.Context, receiptBlob string) (*appstore.VerificationResult, error) {
	payload := gatewayRequest{
		ReceiptData: receiptBlob,
		Password:    g.sharedSecret,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/receipt-validation", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &appstore.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &appstore.NetworkError{Err: err}
	}

	var gr gatewayResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("failed to parse validation response: %w", err)
	}

	if !gr.Success {
		if gr.StatusCode != appstore.StatusOK {
			return nil, &appstore.VerificationError{Status: gr.StatusCode}
		}
		// No upstream status code means the gateway never got a verdict.
		// Its own 5xx outage responses are transport-class and retryable.
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &appstore.NetworkError{Err: fmt.Errorf("gateway unavailable: %s", gr.Error)}
		}
		return nil, fmt.Errorf("gateway rejected validation request: %s", gr.Error)
	}
	if gr.Subscription == nil {
		return nil, fmt.Errorf("validation response missing subscription")
	}

	result := &appstore.VerificationResult{
		IsValid:        gr.Subscription.IsValid,
		Environment:    appstore.Environment(gr.Environment),
		StoreProductID: gr.Subscription.ProductID,
		IsExpired:      gr.Subscription.IsExpired,
		StatusCode:     gr.StatusCode,
		RawMessage:     appstore.StatusMessage(gr.StatusCode),
	}
	if gr.Subscription.ExpiresDate != "" {
		expiresAt, err := time.Parse(time.RFC3339, gr.Subscription.ExpiresDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expires date: %w", err)
		}
		result.ExpiresAt = &expiresAt
	}
	return result, nil
}
