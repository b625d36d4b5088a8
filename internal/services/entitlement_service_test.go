package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"

	"gorm.io/gorm"
)

func TestCheckDeniedWithoutPurchase(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)

	svc := NewEntitlementService()
	decision, err := svc.Check(context.Background(), "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessDenied || decision.Reason != ReasonNotPurchased {
		t.Errorf("decision = %s/%q, want DENIED/%q", decision.Level, decision.Reason, ReasonNotPurchased)
	}
}

func TestCheckDeniedPendingOrder(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedOrder(t, "ord-1", "user-1", "course-1", models.PaymentPending, models.OrderCreated)

	svc := NewEntitlementService()
	decision, err := svc.Check(context.Background(), "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessDenied || decision.Reason != ReasonNotPurchased {
		t.Errorf("pending order yielded %s/%q, want DENIED/%q", decision.Level, decision.Reason, ReasonNotPurchased)
	}
}

func TestCheckDeniedNonDigital(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "tshirt-1", false, 0)
	seedSettledOrder(t, "ord-1", "user-1", "tshirt-1")

	svc := NewEntitlementService()
	decision, err := svc.Check(context.Background(), "user-1", "tshirt-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessDenied || decision.Reason != ReasonNotDigital {
		t.Errorf("decision = %s/%q, want DENIED/%q", decision.Level, decision.Reason, ReasonNotDigital)
	}
}

func TestCheckDeniedWithoutGrant(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedSettledOrder(t, "ord-1", "user-1", "course-1")

	svc := NewEntitlementService()
	decision, err := svc.Check(context.Background(), "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessDenied || decision.Reason != ReasonNotGranted {
		t.Errorf("paid but ungranted yielded %s/%q, want DENIED/%q", decision.Level, decision.Reason, ReasonNotGranted)
	}
}

func TestCheckExpiredGrant(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedSettledOrder(t, "ord-1", "user-1", "course-1")
	expired := time.Now().Add(-time.Hour)
	seedGrant(t, "course-1", "user-1", &expired)

	svc := NewEntitlementService()
	decision, err := svc.Check(context.Background(), "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessExpired {
		t.Errorf("decision = %s, want EXPIRED", decision.Level)
	}
	if decision.ExpiresAt == nil {
		t.Error("expired decision carries no expiry")
	}
}

func TestCheckFullAccess(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedSettledOrder(t, "ord-1", "user-1", "course-1")
	seedGrant(t, "course-1", "user-1", nil)

	svc := NewEntitlementService()
	decision, err := svc.Check(context.Background(), "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allows() {
		t.Errorf("decision = %s/%q, want FULL", decision.Level, decision.Reason)
	}
}

func TestCheckOtherPrincipalDenied(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedSettledOrder(t, "ord-1", "user-1", "course-1")
	seedGrant(t, "course-1", "user-1", nil)

	svc := NewEntitlementService()
	decision, err := svc.Check(context.Background(), "user-2", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessDenied {
		t.Errorf("another principal got %s, want DENIED", decision.Level)
	}
}

func TestCheckFilePreviewBypass(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedFile(t, "course-1", "intro", models.FileTypeVideo, true)

	// No order, no grant: the preview file is still readable.
	svc := NewEntitlementService()
	decision, file, err := svc.CheckFile(context.Background(), "user-1", "course-1", "intro")
	if err != nil {
		t.Fatalf("CheckFile failed: %v", err)
	}
	if decision.Level != AccessPreview {
		t.Errorf("preview file yielded %s, want PREVIEW", decision.Level)
	}
	if file.FileID != "intro" {
		t.Errorf("file = %q, want intro", file.FileID)
	}
}

func TestCheckFileNonPreviewRequiresEntitlement(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedFile(t, "course-1", "lesson-1", models.FileTypeVideo, false)

	svc := NewEntitlementService()
	decision, _, err := svc.CheckFile(context.Background(), "user-1", "course-1", "lesson-1")
	if err != nil {
		t.Fatalf("CheckFile failed: %v", err)
	}
	if decision.Level != AccessDenied {
		t.Errorf("non-preview file without purchase yielded %s, want DENIED", decision.Level)
	}
}

func TestGrantRejectsNonDigital(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "tshirt-1", false, 0)

	svc := NewEntitlementService()
	if err := svc.Grant(context.Background(), "tshirt-1", "user-1", "admin", "", nil); err == nil {
		t.Error("Grant accepted a non-digital product")
	}
}

func TestGrantThenRevoke(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedSettledOrder(t, "ord-1", "user-1", "course-1")

	ctx := context.Background()
	svc := NewEntitlementService()
	if err := svc.Grant(ctx, "course-1", "user-1", "admin", "ord-1", nil); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	decision, err := svc.Check(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allows() {
		t.Fatalf("decision after grant = %s, want FULL", decision.Level)
	}

	if err := svc.Revoke(ctx, "course-1", "user-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	decision, err = svc.Check(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessDenied || decision.Reason != ReasonNotGranted {
		t.Errorf("decision after revoke = %s/%q, want DENIED/%q", decision.Level, decision.Reason, ReasonNotGranted)
	}
}

func TestGrantConfirmsSourceOrder(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedOrder(t, "ord-1", "user-1", "course-1", models.PaymentPaid, models.OrderProcessing)

	ctx := context.Background()
	svc := NewEntitlementService()

	// Settlement alone leaves the order at PROCESSING, which does not count
	// as a purchase yet.
	decision, err := svc.Check(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessDenied {
		t.Fatalf("decision before fulfillment = %s, want DENIED", decision.Level)
	}

	// Granting against the source order completes fulfillment end to end.
	if err := svc.Grant(ctx, "course-1", "user-1", "fulfillment", "ord-1", nil); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	order, err := database.GetOrderByNumber("ord-1")
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.OrderStatus != models.OrderConfirmed {
		t.Errorf("order status after grant = %s, want CONFIRMED", order.OrderStatus)
	}

	decision, err = svc.Check(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allows() {
		t.Errorf("decision after grant = %s/%q, want FULL", decision.Level, decision.Reason)
	}
}

func TestGrantUnknownSourceOrder(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)

	svc := NewEntitlementService()
	err := svc.Grant(context.Background(), "course-1", "user-1", "fulfillment", "ord-missing", nil)
	if !errors.Is(err, database.ErrOrderNotFound) {
		t.Fatalf("Grant with unknown source order = %v, want ErrOrderNotFound", err)
	}

	// The grant must not be recorded when confirmation fails.
	access, err := database.GetDigitalAccess("course-1", "user-1")
	if err != nil {
		t.Fatalf("grant lookup failed: %v", err)
	}
	if access != nil {
		t.Error("grant recorded despite failed order confirmation")
	}
}

func TestExpireGrant(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedSettledOrder(t, "ord-1", "user-1", "course-1")
	seedGrant(t, "course-1", "user-1", nil)

	ctx := context.Background()
	svc := NewEntitlementService()
	decision, err := svc.Check(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allows() {
		t.Fatalf("decision before expiry = %s, want FULL", decision.Level)
	}

	if err := svc.Expire(ctx, "course-1", "user-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	decision, err = svc.Check(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Level != AccessExpired {
		t.Errorf("decision after expiry = %s, want EXPIRED", decision.Level)
	}
}

func TestExpireUnknownGrant(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)

	svc := NewEntitlementService()
	err := svc.Expire(context.Background(), "course-1", "user-1", time.Now())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expire without grant = %v, want ErrRecordNotFound", err)
	}
}

func TestRegrantRefreshesExpiry(t *testing.T) {
	setupTestDB(t)
	seedProduct(t, "course-1", true, 0)
	seedSettledOrder(t, "ord-1", "user-1", "course-1")
	expired := time.Now().Add(-time.Hour)
	seedGrant(t, "course-1", "user-1", &expired)

	ctx := context.Background()
	svc := NewEntitlementService()
	if err := svc.Grant(ctx, "course-1", "user-1", "admin", "", nil); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	decision, err := svc.Check(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allows() {
		t.Errorf("decision after re-grant = %s, want FULL", decision.Level)
	}
}
