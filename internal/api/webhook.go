package api

import (
	"net/http"

	"entitlement-api/internal/response"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// PaymentWebhook receives signed settlement events from the payment
// processor.
// POST /api/payments/webhook
//
// The contract with the processor: 2xx acknowledges the delivery (including
// duplicates and unhandled event types), 400 rejects a delivery that will
// never verify (bad signature, malformed body), 500 asks for a retry.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		logging.Errorf("Failed to read webhook body: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Failed to read request body")
		return
	}
	if len(body) == 0 {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Empty request body")
		return
	}

	// Reject before any mutation when the signature does not verify.
	signatureHeader := c.GetHeader("X-Payment-Signature")
	if err := h.Verifier.Verify(body, signatureHeader); err != nil {
		logging.Errorf("Webhook signature verification failed: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeSignatureInvalid, "Signature verification failed")
		return
	}

	event, err := services.ParsePaymentEvent(body)
	if err != nil {
		logging.Errorf("Failed to parse webhook event: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Invalid event format")
		return
	}

	if err := h.Settlement.ProcessEvent(c.Request.Context(), body, event); err != nil {
		// Retryable: the ledger claim was released, the next delivery can
		// re-attempt.
		logging.Errorf("Failed to process event %s (%s): %v", event.ID, event.Type, err)
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Event processing failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
