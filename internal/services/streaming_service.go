package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"entitlement-api/internal/config"
	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"
)

var (
	// ErrAccessDenied is returned when the entitlement check does not allow
	// delivery.
	ErrAccessDenied = errors.New("access denied")
	// ErrAccessExpired is returned when the grant behind the request has
	// expired.
	ErrAccessExpired = errors.New("access expired")
)

// DeniedError wraps a denial with the verifier's reason.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrAccessDenied
}

// IssuedToken is the response to a token issuance request. StreamURL points
// at the resolve endpoint; following it yields the resource-specific URL.
type IssuedToken struct {
	Token     string    `json:"token"`
	StreamURL string    `json:"stream_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Delivery is a resolved token: the resource-specific URL the client
// actually fetches.
type Delivery struct {
	URL       string    `json:"url"`
	Kind      string    `json:"kind"` // hls | viewer | direct
	ExpiresAt time.Time `json:"expires_at"`
}

// StreamingService issues delivery tokens and resolves them into ephemeral
// delivery URLs (the streaming gateway role).
type StreamingService struct {
	entitlements *EntitlementService
	tokens       *TokenService
}

// NewStreamingService creates a streaming service
func NewStreamingService(entitlements *EntitlementService, tokens *TokenService) *StreamingService {
	return &StreamingService{
		entitlements: entitlements,
		tokens:       tokens,
	}
}

// IssueToken verifies entitlement and mints a delivery token for the file.
// Non-preview files require FULL access. The download purpose additionally
// consumes quota; the stream purpose bumps the stream counter. Counter
// writes are atomic in the database layer, so concurrent requests cannot
// over-grant a bounded quota.
func (s *StreamingService) IssueToken(ctx context.Context, userID, productID, fileID, purpose string) (*IssuedToken, error) {
	if purpose != PurposeStream && purpose != PurposeDownload {
		return nil, fmt.Errorf("unknown purpose %q", purpose)
	}

	decision, file, err := s.entitlements.CheckFile(ctx, userID, productID, fileID)
	if err != nil {
		return nil, err
	}

	switch decision.Level {
	case AccessFull:
		// ok
	case AccessPreview:
		// Preview files bypass purchase checks entirely.
	case AccessExpired:
		return nil, ErrAccessExpired
	default:
		return nil, &DeniedError{Reason: decision.Reason}
	}

	// Record usage before minting. Preview traffic is not counted against
	// the buyer's quota.
	if decision.Level == AccessFull {
		now := time.Now()
		if purpose == PurposeDownload {
			product, err := database.GetProductByID(productID)
			if err != nil {
				return nil, err
			}
			if err := database.IncrementDownloadCount(userID, productID, product.MaxDownloads, now); err != nil {
				return nil, err
			}
		} else {
			if err := database.IncrementStreamCount(userID, productID, now); err != nil {
				return nil, err
			}
		}
	}

	token, expiresAt, err := s.tokens.Issue(userID, productID, file.FileID, purpose)
	if err != nil {
		return nil, err
	}

	logging.Infof("Issued %s token - user: %s, product: %s, file: %s", purpose, userID, productID, fileID)

	return &IssuedToken{
		Token:     token,
		StreamURL: fmt.Sprintf("/api/delivery/resolve?token=%s", url.QueryEscape(token)),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveToken exchanges a valid, unexpired token for a resource-specific
// delivery URL. The URL mechanism depends on the file type.
func (s *StreamingService) ResolveToken(tokenString string) (*Delivery, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	file, err := database.GetProductFile(claims.ProductID, claims.FileID)
	if err != nil {
		return nil, err
	}

	expiresAt := claims.ExpiresAt.Time
	base := config.AppConfig.StreamBaseURL

	var delivery Delivery
	switch {
	case claims.Purpose == PurposeDownload:
		delivery = Delivery{
			URL:  signedAssetURL(base+"/assets/"+file.StoragePath, expiresAt),
			Kind: "direct",
		}
	case file.FileType == models.FileTypeVideo || file.FileType == models.FileTypeAudio:
		delivery = Delivery{
			URL:  signedAssetURL(base+"/hls/"+file.StoragePath, expiresAt),
			Kind: "hls",
		}
	case file.FileType == models.FileTypeDocument:
		delivery = Delivery{
			URL:  signedAssetURL(base+"/viewer/"+file.StoragePath, expiresAt),
			Kind: "viewer",
		}
	default:
		delivery = Delivery{
			URL:  signedAssetURL(base+"/assets/"+file.StoragePath, expiresAt),
			Kind: "direct",
		}
	}

	delivery.ExpiresAt = expiresAt
	return &delivery, nil
}

// signedAssetURL appends an expiring HMAC signature the media edge can check
// without a database round trip. The signature covers path and expiry, so a
// URL cannot be re-pointed or extended.
func signedAssetURL(rawURL string, expiresAt time.Time) string {
	expires := expiresAt.Unix()
	mac := hmac.New(sha256.New, []byte(config.AppConfig.AssetSigningSecret))
	fmt.Fprintf(mac, "%s:%d", rawURL, expires)
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s?expires=%d&sig=%s", rawURL, expires, sig)
}
