package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"entitlement-api/internal/config"
	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"
)

// BrevoService sends transactional email via the Brevo API
type BrevoService struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewBrevoService creates a new Brevo service instance
func NewBrevoService() *BrevoService {
	return &BrevoService{
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

// SendPaymentReceiptAsync sends the payment receipt in a goroutine.
// Fire-and-forget: a delivery failure is logged, never propagated.
func (s *BrevoService) SendPaymentReceiptAsync(order *models.Order) {
	if s.APIKey == "" || order.Email == "" {
		return
	}
	go func() {
		if err := s.sendPaymentReceipt(order); err != nil {
			logging.Errorf("Failed to send payment receipt for order %s: %v", order.OrderNumber, err)
		}
	}()
}

// sendPaymentReceipt sends the payment confirmation email for a paid order.
func (s *BrevoService) sendPaymentReceipt(order *models.Order) error {
	amount := fmt.Sprintf("%.2f %s", float64(order.AmountTotal)/100, order.Currency)
	subject := fmt.Sprintf("Payment received - order %s", order.OrderNumber)

	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<title>Payment received</title>
		</head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333;">Thank you, %s</h1>
				<p style="color: #666; font-size: 16px;">We received your payment for order <strong>%s</strong>.</p>
				<div style="background-color: #28a745; color: white; padding: 16px; border-radius: 10px; font-size: 24px; font-weight: bold; text-align: center; margin: 20px 0;">
					%s
				</div>
				<p style="color: #999; font-size: 14px;">Your digital content is being prepared and will appear in your library shortly.</p>
			</div>
		</body>
		</html>
	`, order.Name, order.OrderNumber, amount)

	textContent := fmt.Sprintf(`
		Thank you, %s

		We received your payment of %s for order %s.

		Your digital content is being prepared and will appear in your library shortly.
	`, order.Name, amount, order.OrderNumber)

	emailReq := EmailRequest{
		Sender: EmailSender{
			Name:  s.FromName,
			Email: s.FromEmail,
		},
		To: []EmailTo{
			{Email: order.Email, Name: order.Name},
		},
		Subject:     subject,
		HTMLContent: htmlContent,
		TextContent: textContent,
	}

	return s.sendEmail(emailReq)
}

// sendEmail sends email via Brevo API
func (s *BrevoService) sendEmail(req EmailRequest) error {
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

	client := &http.Client{}
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
