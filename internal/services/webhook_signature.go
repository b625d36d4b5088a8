package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WebhookVerifier verifies inbound payment webhook signatures.
//
// Header format: "t=<unix seconds>,v1=<hex hmac>", where the MAC is
// HMAC-SHA256 over "<t>.<raw body>" with the shared endpoint secret.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier creates a verifier with the given shared secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: 5 * time.Minute,
		now:       time.Now,
	}
}

// Verify checks the signature header against the raw request body.
func (v *WebhookVerifier) Verify(body []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return fmt.Errorf("missing signature header")
	}

	timestamp, signature, err := v.parseHeader(signatureHeader)
	if err != nil {
		return err
	}

	if err := v.verifyTimestamp(timestamp); err != nil {
		return err
	}

	expected := ComputeWebhookSignature(v.secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}

	return nil
}

// parseHeader splits "t=...,v1=..." into its parts.
func (v *WebhookVerifier) parseHeader(header string) (int64, string, error) {
	var timestamp int64 = -1
	var signature string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("invalid timestamp in signature header: %w", err)
			}
			timestamp = ts
		case "v1":
			signature = value
		}
	}

	if timestamp < 0 || signature == "" {
		return 0, "", fmt.Errorf("malformed signature header")
	}
	return timestamp, signature, nil
}

// verifyTimestamp rejects replayed or badly skewed signatures.
func (v *WebhookVerifier) verifyTimestamp(timestamp int64) error {
	diff := v.now().Unix() - timestamp
	if diff < 0 {
		diff = -diff
	}
	if time.Duration(diff)*time.Second > v.tolerance {
		return fmt.Errorf("signature timestamp outside tolerance: %d seconds difference", diff)
	}
	return nil
}

// ComputeWebhookSignature computes the hex HMAC for a timestamped payload.
// Shared with tests and with the outbound fulfillment notifier, which signs
// its own callbacks the same way.
func ComputeWebhookSignature(secret []byte, timestamp int64, body []byte) string {
	h := hmac.New(sha256.New, secret)
	fmt.Fprintf(h, "%d.", timestamp)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
