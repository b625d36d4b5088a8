package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"
)

// AccessLevel is the outcome of an entitlement check.
type AccessLevel string

const (
	AccessFull    AccessLevel = "FULL"
	AccessPreview AccessLevel = "PREVIEW"
	AccessExpired AccessLevel = "EXPIRED"
	AccessDenied  AccessLevel = "DENIED"
)

// Denial reasons, surfaced verbatim to clients so UIs can branch.
const (
	ReasonNotPurchased = "not found in purchases"
	ReasonNotDigital   = "not a digital product"
	ReasonNotGranted   = "access not granted"
	ReasonGrantExpired = "access expired"
)

// EntitlementDecision is the result of an entitlement check.
type EntitlementDecision struct {
	Level     AccessLevel `json:"level"`
	Reason    string      `json:"reason,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"` // grant expiry, when one exists
}

// Allows reports whether the decision permits full access.
func (d *EntitlementDecision) Allows() bool {
	return d.Level == AccessFull
}

// EntitlementService decides FULL / PREVIEW / EXPIRED / DENIED access by
// combining order settlement state, product digital-ness and the stored
// grant. It never mutates order state.
type EntitlementService struct {
	cache *EntitlementCache
}

// NewEntitlementService creates an entitlement service
func NewEntitlementService() *EntitlementService {
	return &EntitlementService{cache: NewEntitlementCache()}
}

// Check runs the product-scoped entitlement algorithm:
//  1. a settled paid order of the user containing the product, else DENIED
//  2. the product must be digital, else DENIED
//  3. a grant for this user must exist, else DENIED
//  4. an expired grant yields EXPIRED
//  5. otherwise FULL
//
// Ownership is not implied by payment alone: the grant in step 3 is written
// by fulfillment (or an admin), not by the settlement processor.
func (s *EntitlementService) Check(ctx context.Context, userID, productID string) (*EntitlementDecision, error) {
	if cached := s.cache.Get(ctx, userID, productID); cached != nil {
		return cached, nil
	}

	decision, err := s.check(userID, productID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, userID, productID, decision)
	return decision, nil
}

func (s *EntitlementService) check(userID, productID string) (*EntitlementDecision, error) {
	_, err := database.FindLatestPaidOrderForProduct(userID, productID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return &EntitlementDecision{Level: AccessDenied, Reason: ReasonNotPurchased}, nil
		}
		return nil, fmt.Errorf("order lookup failed: %w", err)
	}

	product, err := database.GetProductByID(productID)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return &EntitlementDecision{Level: AccessDenied, Reason: ReasonNotPurchased}, nil
		}
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}
	if !product.IsDigital {
		return &EntitlementDecision{Level: AccessDenied, Reason: ReasonNotDigital}, nil
	}

	access, err := database.GetDigitalAccess(productID, userID)
	if err != nil {
		return nil, fmt.Errorf("grant lookup failed: %w", err)
	}
	if access == nil {
		return &EntitlementDecision{Level: AccessDenied, Reason: ReasonNotGranted}, nil
	}

	if access.Expired(time.Now()) {
		return &EntitlementDecision{Level: AccessExpired, Reason: ReasonGrantExpired, ExpiresAt: access.ExpiresAt}, nil
	}

	return &EntitlementDecision{Level: AccessFull, ExpiresAt: access.ExpiresAt}, nil
}

// CheckFile is the file-scoped variant: a preview file is always readable,
// regardless of purchase or grant state.
func (s *EntitlementService) CheckFile(ctx context.Context, userID, productID, fileID string) (*EntitlementDecision, *models.ProductFile, error) {
	file, err := database.GetProductFile(productID, fileID)
	if err != nil {
		return nil, nil, err
	}

	if file.IsPreview {
		return &EntitlementDecision{Level: AccessPreview}, file, nil
	}

	decision, err := s.Check(ctx, userID, productID)
	if err != nil {
		return nil, nil, err
	}
	return decision, file, nil
}

// Grant records (or refreshes) a digital access grant. This is the
// administrative act that makes a paid product actually accessible. A grant
// carrying a source order also confirms that order: fulfillment is complete
// once access is granted, and only a confirmed order counts as settled in
// Check.
func (s *EntitlementService) Grant(ctx context.Context, productID, userID, grantedBy, sourceOrder string, expiresAt *time.Time) error {
	product, err := database.GetProductByID(productID)
	if err != nil {
		return err
	}
	if !product.IsDigital {
		return fmt.Errorf("product %s is not digital", productID)
	}

	if sourceOrder != "" {
		if err := database.MarkOrderConfirmed(sourceOrder); err != nil {
			return fmt.Errorf("source order confirmation failed: %w", err)
		}
	}

	grant := &models.DigitalAccess{
		ProductID:   productID,
		GrantedTo:   userID,
		ExpiresAt:   expiresAt,
		GrantedBy:   grantedBy,
		SourceOrder: sourceOrder,
	}
	if err := database.UpsertDigitalAccess(grant); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, userID, productID)
	logging.Infof("Granted access - product: %s, user: %s, by: %s", productID, userID, grantedBy)
	return nil
}

// Revoke removes a grant. Tokens already issued stay valid until expiry;
// there is no revocation list for minted tokens.
func (s *EntitlementService) Revoke(ctx context.Context, productID, userID string) error {
	if err := database.RevokeDigitalAccess(productID, userID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID, productID)
	logging.Infof("Revoked access - product: %s, user: %s", productID, userID)
	return nil
}

// Expire time-bounds an existing grant instead of removing it. Once the
// instant passes, checks yield EXPIRED rather than DENIED, so the client can
// distinguish a lapsed purchase from a missing one.
func (s *EntitlementService) Expire(ctx context.Context, productID, userID string, at time.Time) error {
	if err := database.ExpireDigitalAccessAt(productID, userID, at); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID, productID)
	logging.Infof("Expired access - product: %s, user: %s, at: %s", productID, userID, at.Format(time.RFC3339))
	return nil
}
