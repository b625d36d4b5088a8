package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"
)

// PaymentProviderName tags ledger rows; there is a single upstream processor
// today but the ledger is keyed to allow a second one.
const PaymentProviderName = "portalpay"

// Event types dispatched by the settlement processor.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// ErrMissingOrderID is returned when a settlement event carries no order
// reference in its metadata.
var ErrMissingOrderID = errors.New("event metadata has no order_id")

// PaymentEvent is the parsed webhook event envelope.
type PaymentEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object PaymentEventObject `json:"object"`
	} `json:"data"`
}

// PaymentEventObject is the event subject (session or intent).
type PaymentEventObject struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
	FailureReason string            `json:"failure_reason,omitempty"`
}

// SettlementService is the state machine on Order driven by inbound signed
// payment events. It is the only writer of payment/order status.
type SettlementService struct {
	replayGuard *ReplayGuard
	fulfillment FulfillmentTrigger
	receipts    *BrevoService
}

// NewSettlementService creates a settlement service
func NewSettlementService(guard *ReplayGuard, fulfillment FulfillmentTrigger, receipts *BrevoService) *SettlementService {
	return &SettlementService{
		replayGuard: guard,
		fulfillment: fulfillment,
		receipts:    receipts,
	}
}

// ProcessEvent applies one verified webhook event exactly once in effect.
//
// Dedupe runs in three layers: the in-process replay guard, the Redis
// fast path, and the durable WebhookEvent ledger, which is authoritative.
// Duplicates are acknowledged as processed (nil error) without side effects.
// A processing failure releases all three claims and returns the error so
// the provider retries.
func (s *SettlementService) ProcessEvent(ctx context.Context, rawBody []byte, event *PaymentEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event has no id")
	}

	if s.replayGuard != nil && s.replayGuard.Seen(PaymentProviderName, event.ID) {
		return nil
	}
	if !ClaimEventFastPath(ctx, PaymentProviderName, event.ID) {
		logging.Infof("Duplicate webhook delivery rejected by fast path - event: %s", event.ID)
		return nil
	}

	claimed, err := database.ClaimWebhookEvent(&models.WebhookEvent{
		Provider:    PaymentProviderName,
		EventID:     event.ID,
		EventType:   event.Type,
		PayloadJSON: string(rawBody),
	})
	if err != nil {
		s.releaseClaims(ctx, event.ID)
		return fmt.Errorf("event ledger claim failed: %w", err)
	}
	if !claimed {
		logging.Infof("Duplicate webhook delivery rejected by ledger - event: %s", event.ID)
		return nil
	}

	if err := s.dispatch(event); err != nil {
		// Surface the failure so the provider retries; a swallowed error here
		// strands paid orders in PROCESSING.
		if ledgerErr := database.MarkWebhookEventFailed(PaymentProviderName, event.ID, err.Error()); ledgerErr != nil {
			logging.Errorf("Failed to record event failure - event: %s, error: %v", event.ID, ledgerErr)
		}
		s.releaseClaims(ctx, event.ID)
		return err
	}

	if err := database.MarkWebhookEventProcessed(PaymentProviderName, event.ID); err != nil {
		logging.Errorf("Failed to mark event processed - event: %s, error: %v", event.ID, err)
	}
	return nil
}

func (s *SettlementService) releaseClaims(ctx context.Context, eventID string) {
	if s.replayGuard != nil {
		s.replayGuard.Forget(PaymentProviderName, eventID)
	}
	ReleaseEventFastPath(ctx, PaymentProviderName, eventID)
}

// dispatch routes the event by type.
func (s *SettlementService) dispatch(event *PaymentEvent) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(event)
	case EventPaymentIntentSucceeded:
		// Informational; settlement happens on checkout completion.
		logging.Infof("Payment intent succeeded - intent: %s", event.Data.Object.ID)
		return nil
	case EventPaymentIntentFailed:
		return s.handlePaymentFailed(event)
	default:
		// Unknown types are acknowledged for forward compatibility.
		logging.Infof("Ignoring unhandled event type %s - event: %s", event.Type, event.ID)
		return nil
	}
}

// handleCheckoutCompleted settles the order and fires the post-settlement
// side effects.
func (s *SettlementService) handleCheckoutCompleted(event *PaymentEvent) error {
	orderNumber := event.Data.Object.Metadata["order_id"]
	if orderNumber == "" {
		return ErrMissingOrderID
	}

	transitioned, err := database.MarkOrderPaid(orderNumber, event.Data.Object.ID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to settle order %s: %w", orderNumber, err)
	}
	if !transitioned {
		// Already PAID by an earlier delivery; the ledger should have caught
		// this, but the guarded transition keeps fulfillment single-shot even
		// if it did not.
		return nil
	}

	logging.Infof("Order settled - order: %s, session: %s", orderNumber, event.Data.Object.ID)

	// Fire-and-forget side effects; neither blocks nor rolls back settlement.
	if s.fulfillment != nil {
		s.fulfillment.TriggerFulfillment(orderNumber, "payment_completed")
	}
	if s.receipts != nil {
		if order, err := database.GetOrderByNumber(orderNumber); err == nil {
			s.receipts.SendPaymentReceiptAsync(order)
		} else {
			logging.Errorf("Failed to load order %s for receipt: %v", orderNumber, err)
		}
	}

	return nil
}

// handlePaymentFailed records a failed charge.
func (s *SettlementService) handlePaymentFailed(event *PaymentEvent) error {
	orderNumber := event.Data.Object.Metadata["order_id"]
	if orderNumber == "" {
		return ErrMissingOrderID
	}

	reason := event.Data.Object.FailureReason
	if reason == "" {
		reason = "payment failed"
	}

	transitioned, err := database.MarkOrderPaymentFailed(orderNumber, reason)
	if err != nil {
		return fmt.Errorf("failed to mark order %s failed: %w", orderNumber, err)
	}
	if transitioned {
		logging.Infof("Order payment failed - order: %s, reason: %s", orderNumber, reason)
	}
	return nil
}

// ParsePaymentEvent decodes the raw webhook body.
func ParsePaymentEvent(body []byte) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event body: %w", err)
	}
	return &event, nil
}
