package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"entitlement-api/internal/config"
	"entitlement-api/pkg/logging"
)

// FulfillmentTrigger is the fire-and-forget hand-off to the fulfillment
// collaborator after settlement. Its failure never rolls back settlement.
type FulfillmentTrigger interface {
	TriggerFulfillment(orderNumber, trigger string)
}

// FulfillmentNotifier posts signed callbacks to the fulfillment endpoint
type FulfillmentNotifier struct {
	httpClient *http.Client
}

// NewFulfillmentNotifier creates a fulfillment notifier
func NewFulfillmentNotifier() *FulfillmentNotifier {
	return &FulfillmentNotifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FulfillmentPayload is the callback body sent to the fulfillment endpoint.
type FulfillmentPayload struct {
	OrderID   string `json:"order_id"`
	Trigger   string `json:"trigger"`   // e.g. "payment_completed"
	Timestamp string `json:"timestamp"` // ISO 8601
}

// TriggerFulfillment notifies the fulfillment collaborator asynchronously.
// Runs in its own goroutine; the settlement path never blocks on it.
func (fn *FulfillmentNotifier) TriggerFulfillment(orderNumber, trigger string) {
	callbackURL := config.AppConfig.FulfillmentURL
	if callbackURL == "" {
		// No fulfillment endpoint configured, skip
		return
	}

	payload := FulfillmentPayload{
		OrderID:   orderNumber,
		Trigger:   trigger,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	go fn.sendWithRetry(callbackURL, config.AppConfig.FulfillmentSecret, payload)
}

// sendWithRetry sends the callback with retry.
// Retry schedule: 1s, 5s, 30s (3 attempts total).
func (fn *FulfillmentNotifier) sendWithRetry(callbackURL string, secret string, payload FulfillmentPayload) {
	retryDelays := []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}
	maxRetries := len(retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn.send(callbackURL, secret, payload)
		if err == nil {
			logging.Infof("Fulfillment trigger sent - order: %s, trigger: %s, attempt: %d",
				payload.OrderID, payload.Trigger, attempt+1)
			return
		}

		logging.Errorf("Fulfillment trigger failed - order: %s, attempt: %d, error: %v",
			payload.OrderID, attempt+1, err)

		// If not the last attempt, wait before retry
		if attempt < maxRetries-1 {
			time.Sleep(retryDelays[attempt])
		}
	}

	logging.Errorf("Fulfillment trigger failed after %d attempts - order: %s",
		maxRetries, payload.OrderID)
}

// send posts one signed callback request.
func (fn *FulfillmentNotifier) send(callbackURL string, secret string, payload FulfillmentPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "EntitlementService-Webhook/1.0")

	// Sign the callback the same way we expect inbound webhooks signed
	if secret != "" {
		timestamp := time.Now().Unix()
		signature := ComputeWebhookSignature([]byte(secret), timestamp, jsonData)
		req.Header.Set("X-Portal-Signature", fmt.Sprintf("t=%d,v1=%s", timestamp, signature))
	}

	resp, err := fn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
