package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"biztomate-api/internal/catalog"
	"biztomate-api/internal/config"
)

// NotificationService sends transactional email through the Brevo API.
// It is a no-op when no API key is configured.
type NotificationService struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewNotificationService creates a notification service from configuration.
func NewNotificationService() *NotificationService {
	return &NotificationService{
		APIKey:    config.AppConfig.BrevoAPIKey,
		FromEmail: config.AppConfig.BrevoFromEmail,
		FromName:  config.AppConfig.BrevoFromName,
	}
}

// EmailRequest represents Brevo email request structure
type EmailRequest struct {
	Sender      EmailSender `json:"sender"`
	To          []EmailTo   `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
	TextContent string      `json:"textContent"`
}

type EmailSender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type EmailTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SendPurchaseVerifiedEmail confirms to the user that their subscription
// receipt validated. Called after a successful gateway validation when the
// account has a contact address on file.
func (s *NotificationService) SendPurchaseVerifiedEmail(to string, plan catalog.Plan, expiresAt time.Time) error {
	if s.APIKey == "" || to == "" {
		return nil
	}

	subject := fmt.Sprintf("Your %s subscription is active", plan)
	textContent := fmt.Sprintf(`Your %s subscription has been verified and is active until %s.

Thanks for using %s.`, plan, expiresAt.Format("January 2, 2006"), s.FromName)

	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333;">Subscription verified</h1>
				<p style="color: #666; font-size: 16px;">Your <strong>%s</strong> subscription has been verified and is active until <strong>%s</strong>.</p>
				<p style="color: #999; font-size: 12px; margin-top: 30px;">Thanks for using %s.</p>
			</div>
		</body>
		</html>
	`, plan, expiresAt.Format("January 2, 2006"), s.FromName)

	emailReq := EmailRequest{
		Sender: EmailSender{
			Name:  s.FromName,
			Email: s.FromEmail,
		},
		To: []EmailTo{
			{Email: to},
		},
		Subject:     subject,
		HTMLContent: htmlContent,
		TextContent: textContent,
	}

	return s.sendEmail(emailReq)
}

// sendEmail sends email via Brevo API
func (s *NotificationService) sendEmail(req EmailRequest) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	httpReq, err := http.NewRequest("POST", "https://api.brevo.com/v3/smtp/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", s.APIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("brevo API error: status %d", resp.StatusCode)
	}

	return nil
}
