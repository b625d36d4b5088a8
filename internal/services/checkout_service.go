package services

import (
	"errors"
	"fmt"

	"entitlement-api/internal/config"
	"entitlement-api/internal/database"
	"entitlement-api/pkg/logging"
)

// ErrInvalidCheckout is returned when the checkout request fails validation.
var ErrInvalidCheckout = errors.New("invalid checkout request")

// CheckoutService drives checkout initiation against the payment provider
type CheckoutService struct {
	provider PaymentProvider
}

// NewCheckoutService creates a checkout service
func NewCheckoutService(provider PaymentProvider) *CheckoutService {
	return &CheckoutService{provider: provider}
}

// CheckoutRequest describes the charge to initiate.
type CheckoutRequest struct {
	OrderID    string
	Amount     int64 // minor units
	Currency   string
	BuyerEmail string
	BuyerName  string
}

// CheckoutResult carries the upstream references back to the client.
type CheckoutResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	CheckoutURL     string `json:"checkout_url"`
	SessionID       string `json:"session_id"`
}

// InitiateCheckout resolves the billing identity, creates a payment intent
// and a hosted checkout session, and best-effort backfills the upstream
// references onto the order.
//
// Customer resolution is lookup-then-create, not transactional: two
// concurrent checkouts for a brand-new buyer can each create a customer.
// The duplicate is benign upstream and accepted here.
func (s *CheckoutService) InitiateCheckout(req CheckoutRequest) (*CheckoutResult, error) {
	if req.OrderID == "" || req.Amount <= 0 || req.Currency == "" || req.BuyerEmail == "" {
		return nil, ErrInvalidCheckout
	}

	customer, err := s.provider.FindCustomerByEmail(req.BuyerEmail)
	if err != nil {
		return nil, fmt.Errorf("customer lookup failed: %w", err)
	}
	if customer == nil {
		customer, err = s.provider.CreateCustomer(req.BuyerEmail, req.BuyerName)
		if err != nil {
			return nil, fmt.Errorf("customer creation failed: %w", err)
		}
		logging.Infof("Created payment customer %s for %s", customer.ID, req.BuyerEmail)
	}

	intent, err := s.provider.CreatePaymentIntent(PaymentIntentRequest{
		Amount:     req.Amount,
		Currency:   req.Currency,
		CustomerID: customer.ID,
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"source":   "members-portal",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("payment intent creation failed: %w", err)
	}

	session, err := s.provider.CreateCheckoutSession(CheckoutSessionRequest{
		PaymentIntentID: intent.ID,
		CustomerID:      customer.ID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     fmt.Sprintf("Order %s", req.OrderID),
		SuccessURL:      config.AppConfig.CheckoutSuccessURL,
		CancelURL:       config.AppConfig.CheckoutCancelURL,
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"source":   "members-portal",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("checkout session creation failed: %w", err)
	}

	// Best-effort reference backfill. A failure here leaves the order without
	// upstream references until settlement fills them in; it must not fail
	// the checkout.
	if err := database.UpdateOrderPaymentReferences(req.OrderID, intent.ID, session.ID); err != nil {
		logging.Errorf("Failed to backfill payment references for order %s: %v", req.OrderID, err)
	}

	return &CheckoutResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		CheckoutURL:     session.URL,
		SessionID:       session.ID,
	}, nil
}
