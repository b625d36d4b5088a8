package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
)

// fulfillmentRecorder captures fulfillment triggers instead of posting them.
type fulfillmentRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *fulfillmentRecorder) TriggerFulfillment(orderNumber, trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, orderNumber+"/"+trigger)
}

func (r *fulfillmentRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func rawEvent(t *testing.T, id, eventType, objectID string, metadata map[string]string) ([]byte, *PaymentEvent) {
	t.Helper()
	var event PaymentEvent
	event.ID = id
	event.Type = eventType
	event.Data.Object.ID = objectID
	event.Data.Object.Metadata = metadata

	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	parsed, err := ParsePaymentEvent(body)
	if err != nil {
		t.Fatalf("failed to parse event: %v", err)
	}
	return body, parsed
}

func newTestSettlement(fulfillment FulfillmentTrigger) (*SettlementService, *ReplayGuard) {
	guard := NewReplayGuard()
	return NewSettlementService(guard, fulfillment, nil), guard
}

func TestProcessEventSettlesOrder(t *testing.T) {
	setupTestDB(t)
	seedOrder(t, "ord-1", "user-1", "course-1", models.PaymentPending, models.OrderCreated)

	recorder := &fulfillmentRecorder{}
	svc, guard := newTestSettlement(recorder)
	defer guard.Stop()

	body, event := rawEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", map[string]string{"order_id": "ord-1"})
	if err := svc.ProcessEvent(context.Background(), body, event); err != nil {
		t.Fatalf("ProcessEvent failed: %v", err)
	}

	order, err := database.GetOrderByNumber("ord-1")
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.PaymentStatus != models.PaymentPaid {
		t.Errorf("payment status = %s, want PAID", order.PaymentStatus)
	}
	if order.OrderStatus != models.OrderProcessing {
		t.Errorf("order status = %s, want PROCESSING", order.OrderStatus)
	}
	if order.PaidAt == nil {
		t.Error("paid_at not stamped")
	}
	if order.CheckoutSessionID != "cs_1" {
		t.Errorf("checkout session = %q, want cs_1", order.CheckoutSessionID)
	}
	if recorder.count() != 1 {
		t.Errorf("fulfillment fired %d times, want 1", recorder.count())
	}

	ledger, err := database.GetWebhookEvent(PaymentProviderName, "evt_1")
	if err != nil {
		t.Fatalf("failed to load ledger row: %v", err)
	}
	if ledger.State != models.WebhookEventProcessed {
		t.Errorf("ledger state = %s, want processed", ledger.State)
	}
}

func TestProcessEventDuplicateInProcess(t *testing.T) {
	setupTestDB(t)
	seedOrder(t, "ord-1", "user-1", "course-1", models.PaymentPending, models.OrderCreated)

	recorder := &fulfillmentRecorder{}
	svc, guard := newTestSettlement(recorder)
	defer guard.Stop()

	body, event := rawEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", map[string]string{"order_id": "ord-1"})
	if err := svc.ProcessEvent(context.Background(), body, event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := svc.ProcessEvent(context.Background(), body, event); err != nil {
		t.Fatalf("duplicate delivery not acknowledged: %v", err)
	}

	if recorder.count() != 1 {
		t.Errorf("fulfillment fired %d times across duplicate deliveries, want 1", recorder.count())
	}
}

func TestProcessEventDuplicateAcrossRestarts(t *testing.T) {
	setupTestDB(t)
	seedOrder(t, "ord-1", "user-1", "course-1", models.PaymentPending, models.OrderCreated)

	recorder := &fulfillmentRecorder{}
	first, guard1 := newTestSettlement(recorder)
	defer guard1.Stop()

	body, event := rawEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", map[string]string{"order_id": "ord-1"})
	if err := first.ProcessEvent(context.Background(), body, event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	// A fresh service has an empty replay guard; the durable ledger must
	// still reject the duplicate.
	second, guard2 := newTestSettlement(recorder)
	defer guard2.Stop()
	if err := second.ProcessEvent(context.Background(), body, event); err != nil {
		t.Fatalf("duplicate delivery not acknowledged: %v", err)
	}

	if recorder.count() != 1 {
		t.Errorf("fulfillment fired %d times, want 1", recorder.count())
	}
	order, err := database.GetOrderByNumber("ord-1")
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.PaymentStatus != models.PaymentPaid {
		t.Errorf("payment status = %s, want PAID", order.PaymentStatus)
	}
}

func TestProcessEventMissingOrderIDRetryable(t *testing.T) {
	setupTestDB(t)

	recorder := &fulfillmentRecorder{}
	svc, guard := newTestSettlement(recorder)
	defer guard.Stop()

	body, event := rawEvent(t, "evt_1", EventCheckoutCompleted, "cs_1", nil)
	err := svc.ProcessEvent(context.Background(), body, event)
	if !errors.Is(err, ErrMissingOrderID) {
		t.Fatalf("ProcessEvent = %v, want ErrMissingOrderID", err)
	}

	ledger, lookupErr := database.GetWebhookEvent(PaymentProviderName, "evt_1")
	if lookupErr != nil {
		t.Fatalf("failed to load ledger row: %v", lookupErr)
	}
	if ledger.State != models.WebhookEventFailed {
		t.Errorf("ledger state = %s, want failed", ledger.State)
	}

	// The claims were released: the provider's retry is processed again, not
	// swallowed as a duplicate.
	err = svc.ProcessEvent(context.Background(), body, event)
	if !errors.Is(err, ErrMissingOrderID) {
		t.Errorf("retried delivery = %v, want ErrMissingOrderID again", err)
	}
}

func TestProcessEventPaymentFailed(t *testing.T) {
	setupTestDB(t)
	seedOrder(t, "ord-1", "user-1", "course-1", models.PaymentPending, models.OrderCreated)

	svc, guard := newTestSettlement(nil)
	defer guard.Stop()

	var event PaymentEvent
	event.ID = "evt_1"
	event.Type = EventPaymentIntentFailed
	event.Data.Object.ID = "pi_1"
	event.Data.Object.Metadata = map[string]string{"order_id": "ord-1"}
	event.Data.Object.FailureReason = "card_declined"
	body, _ := json.Marshal(event)

	if err := svc.ProcessEvent(context.Background(), body, &event); err != nil {
		t.Fatalf("ProcessEvent failed: %v", err)
	}

	order, err := database.GetOrderByNumber("ord-1")
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.PaymentStatus != models.PaymentFailed {
		t.Errorf("payment status = %s, want FAILED", order.PaymentStatus)
	}
	if order.OrderStatus != models.OrderPaymentFailed {
		t.Errorf("order status = %s, want PAYMENT_FAILED", order.OrderStatus)
	}
	if order.FailureReason != "card_declined" {
		t.Errorf("failure reason = %q, want card_declined", order.FailureReason)
	}
}

func TestProcessEventFailureAfterSettlementIsNoOp(t *testing.T) {
	setupTestDB(t)
	seedOrder(t, "ord-1", "user-1", "course-1", models.PaymentPaid, models.OrderProcessing)

	svc, guard := newTestSettlement(nil)
	defer guard.Stop()

	body, event := rawEvent(t, "evt_1", EventPaymentIntentFailed, "pi_1", map[string]string{"order_id": "ord-1"})
	if err := svc.ProcessEvent(context.Background(), body, event); err != nil {
		t.Fatalf("ProcessEvent failed: %v", err)
	}

	order, err := database.GetOrderByNumber("ord-1")
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.PaymentStatus != models.PaymentPaid {
		t.Errorf("settled order regressed to %s", order.PaymentStatus)
	}
}

func TestProcessEventUnknownTypeAcknowledged(t *testing.T) {
	setupTestDB(t)

	recorder := &fulfillmentRecorder{}
	svc, guard := newTestSettlement(recorder)
	defer guard.Stop()

	body, event := rawEvent(t, "evt_1", "customer.updated", "cus_1", nil)
	if err := svc.ProcessEvent(context.Background(), body, event); err != nil {
		t.Fatalf("unknown event type not acknowledged: %v", err)
	}
	if recorder.count() != 0 {
		t.Errorf("fulfillment fired for an unhandled event type")
	}
}

func TestProcessEventWithoutID(t *testing.T) {
	setupTestDB(t)

	svc, guard := newTestSettlement(nil)
	defer guard.Stop()

	body := []byte(`{"type":"checkout.session.completed"}`)
	event, err := ParsePaymentEvent(body)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if err := svc.ProcessEvent(context.Background(), body, event); err == nil {
		t.Error("ProcessEvent accepted an event without an id")
	}
}
