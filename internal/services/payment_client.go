package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"entitlement-api/internal/config"
)

// PaymentProvider abstracts the upstream payment processor. The HTTP client
// below talks to the hosted API; tests substitute a fake.
type PaymentProvider interface {
	FindCustomerByEmail(email string) (*Customer, error)
	CreateCustomer(email, name string) (*Customer, error)
	CreatePaymentIntent(req PaymentIntentRequest) (*PaymentIntent, error)
	CreateCheckoutSession(req CheckoutSessionRequest) (*CheckoutSession, error)
}

// Customer is the upstream billing identity.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// PaymentIntentRequest creates a charge attempt tagged with our order.
type PaymentIntentRequest struct {
	Amount     int64             `json:"amount"` // minor units
	Currency   string            `json:"currency"`
	CustomerID string            `json:"customer"`
	Metadata   map[string]string `json:"metadata"`
}

// PaymentIntent is the upstream charge attempt.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// CheckoutSessionRequest creates a hosted checkout page.
type CheckoutSessionRequest struct {
	PaymentIntentID string            `json:"payment_intent"`
	CustomerID      string            `json:"customer"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description"`
	SuccessURL      string            `json:"success_url"`
	CancelURL       string            `json:"cancel_url"`
	Metadata        map[string]string `json:"metadata"`
}

// CheckoutSession is the hosted checkout page reference.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// UpstreamError carries the payment processor's own failure message so the
// caller can surface it instead of a generic 500.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("payment provider error (status %d): %s", e.Status, e.Message)
}

// HTTPPaymentClient is the real PaymentProvider over the processor's REST API
type HTTPPaymentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPPaymentClient creates a payment client from the app configuration
func NewHTTPPaymentClient() *HTTPPaymentClient {
	return &HTTPPaymentClient{
		baseURL: config.AppConfig.PaymentAPIBase,
		apiKey:  config.AppConfig.PaymentAPIKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FindCustomerByEmail looks up an existing billing identity by email.
// Returns nil (no error) when the customer does not exist yet.
func (c *HTTPPaymentClient) FindCustomerByEmail(email string) (*Customer, error) {
	endpoint := fmt.Sprintf("%s/customers?email=%s&limit=1", c.baseURL, url.QueryEscape(email))

	var listing struct {
		Data []Customer `json:"data"`
	}
	if err := c.do(http.MethodGet, endpoint, nil, &listing); err != nil {
		return nil, err
	}
	if len(listing.Data) == 0 {
		return nil, nil
	}
	return &listing.Data[0], nil
}

// CreateCustomer creates a new billing identity.
func (c *HTTPPaymentClient) CreateCustomer(email, name string) (*Customer, error) {
	body := map[string]string{"email": email, "name": name}

	var customer Customer
	if err := c.do(http.MethodPost, c.baseURL+"/customers", body, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreatePaymentIntent creates a charge attempt.
func (c *HTTPPaymentClient) CreatePaymentIntent(req PaymentIntentRequest) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(http.MethodPost, c.baseURL+"/payment_intents", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreateCheckoutSession creates a hosted checkout session.
func (c *HTTPPaymentClient) CreateCheckoutSession(req CheckoutSessionRequest) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(http.MethodPost, c.baseURL+"/checkout/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// do sends one authenticated request and decodes the JSON response.
func (c *HTTPPaymentClient) do(method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		message := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return &UpstreamError{Status: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
