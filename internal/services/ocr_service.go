package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"biztomate-api/internal/config"
	"biztomate-api/pkg/logging"

	"github.com/google/uuid"
)

// extractionPrompt is the fixed instruction sent with every card image.
const extractionPrompt = "Extract the contact fields from this business card image. " +
	"Respond with a strict JSON object with exactly these string keys: " +
	"name, title, company, email, phone, website, address. " +
	"Use an empty string for any field not present on the card."

// CardRecord is a cleaned business-card contact. ID is assigned here and is
// unique across calls, so a fallback record can never be mistaken for a
// duplicate of another contact.
type CardRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
	Address string `json:"address"`
}

// OCRService wraps the external text-extraction endpoint. The model behind
// the endpoint is a black box: this service only submits the image with the
// fixed prompt, syntax-checks the returned fields and substitutes a fallback
// record when the call fails, times out or returns unparsable JSON.
type OCRService struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewOCRService creates an OCR service from the application configuration.
func NewOCRService() *OCRService {
	return NewOCRServiceWithEndpoint(
		config.AppConfig.OCREndpoint,
		config.AppConfig.OCRAPIKey,
		time.Duration(config.AppConfig.OCRTimeoutSeconds)*time.Second,
	)
}

// NewOCRServiceWithEndpoint creates an OCR service against an explicit endpoint.
func NewOCRServiceWithEndpoint(endpoint, apiKey string, timeout time.Duration) *OCRService {
	return &OCRService{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type ocrRequest struct {
	Prompt    string `json:"prompt"`
	ImageData string `json:"image_data"`
}

type ocrFields struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
	Address string `json:"address"`
}

// ExtractCard submits a base64 image and returns a cleaned contact record.
// It never fails: any extraction problem yields the fallback record.
func (s *OCRService) ExtractCard(ctx context.Context, imageData string) *CardRecord {
	record, err := s.extract(ctx, imageData)
	if err != nil {
		logging.Errorf("Card extraction failed, using fallback record: %v", err)
		return FallbackCard()
	}
	return record
}

func (s *OCRService) extract(ctx context.Context, imageData string) (*CardRecord, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("OCR endpoint is not configured")
	}

	payload := ocrRequest{
		Prompt:    extractionPrompt,
		ImageData: imageData,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction endpoint returned status %d", resp.StatusCode)
	}

	var fields ocrFields
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	return &CardRecord{
		ID:      uuid.NewString(),
		Name:    strings.TrimSpace(fields.Name),
		Title:   strings.TrimSpace(fields.Title),
		Company: strings.TrimSpace(fields.Company),
		Email:   CleanEmail(fields.Email),
		Phone:   CleanPhone(fields.Phone),
		Website: CleanWebsite(fields.Website),
		Address: strings.TrimSpace(fields.Address),
	}, nil
}

// FallbackCard is the deterministic record substituted when extraction
// fails. Its identity is a fresh UUID each time.
func FallbackCard() *CardRecord {
	return &CardRecord{
		ID:   uuid.NewString(),
		Name: "Unknown Contact",
	}
}

// CleanEmail returns the address if it parses as an email, else empty.
func CleanEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return ""
	}
	return addr.Address
}

// CleanPhone keeps a leading plus and the digits; anything with fewer than
// seven digits is discarded as OCR noise.
func CleanPhone(s string) string {
	var b strings.Builder
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if digits < 7 {
		return ""
	}
	return b.String()
}

// CleanWebsite normalizes a URL, defaulting the scheme to https, and
// rejects values without a plausible host.
func CleanWebsite(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return ""
	}
	return u.String()
}
