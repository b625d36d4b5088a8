package services

import (
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A token minted for streaming cannot be redeemed for a
// download and vice versa.
const (
	PurposeStream   = "stream"
	PurposeDownload = "download"
)

var (
	// ErrTokenExpired is returned for a structurally valid token past its
	// expiry.
	ErrTokenExpired = errors.New("delivery token expired")
	// ErrTokenInvalid is returned for any other verification failure.
	ErrTokenInvalid = errors.New("delivery token invalid")
)

// DeliveryClaims bind one principal to one file of one product for a bounded
// window. There is no server-side revocation: validity is purely a function
// of the claims, the signing secret and the clock.
type DeliveryClaims struct {
	ProductID string `json:"product_id"`
	FileID    string `json:"file_id"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies short-lived signed delivery tokens
type TokenService struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service from the app configuration
func NewTokenService() *TokenService {
	return &TokenService{
		secret: []byte(config.AppConfig.DeliveryTokenSecret),
		ttl:    time.Duration(config.AppConfig.DeliveryTokenTTL) * time.Minute,
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// Issue mints a token for the given principal, product, file and purpose.
// Returns the signed token and its expiry instant.
func (s *TokenService) Issue(userID, productID, fileID, purpose string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := DeliveryClaims{
		ProductID: productID,
		FileID:    fileID,
		Purpose:   purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign delivery token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the bound claims. The
// leeway absorbs modest clock skew between issuer and verifier.
func (s *TokenService) Verify(tokenString string) (*DeliveryClaims, error) {
	claims := &DeliveryClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.ProductID == "" || claims.FileID == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrTokenInvalid)
	}
	return claims, nil
}
