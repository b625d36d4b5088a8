package api

import (
	"errors"
	"net/http"

	"entitlement-api/internal/database"
	"entitlement-api/internal/middleware"
	"entitlement-api/internal/response"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// IssueTokenRequest is the delivery token issuance payload.
type IssueTokenRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	FileID    string `json:"file_id" binding:"required"`
	Purpose   string `json:"purpose"` // stream (default) or download
}

// IssueDeliveryToken verifies entitlement and mints a short-lived delivery
// token for one file.
// POST /api/delivery/token
func (h *Handlers) IssueDeliveryToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Invalid request format: "+err.Error())
		return
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = services.PurposeStream
	}

	userID := middleware.CurrentUserID(c)
	issued, err := h.Streaming.IssueToken(c.Request.Context(), userID, req.ProductID, req.FileID, purpose)
	if err != nil {
		h.writeDeliveryError(c, userID, req.ProductID, err)
		return
	}

	response.SuccessJSON(c, issued)
}

// ResolveDeliveryToken exchanges a valid token for a resource-specific
// delivery URL.
// GET /api/delivery/resolve?token=...
func (h *Handlers) ResolveDeliveryToken(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "token is required")
		return
	}

	delivery, err := h.Streaming.ResolveToken(tokenString)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			response.ErrorJSON(c, http.StatusForbidden, response.CodeAccessDenied, "Delivery token expired")
		case errors.Is(err, services.ErrTokenInvalid):
			response.ErrorJSON(c, http.StatusForbidden, response.CodeAccessDenied, "Delivery token invalid")
		case errors.Is(err, database.ErrFileNotFound):
			response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "File not found")
		default:
			logging.Errorf("Token resolution failed: %v", err)
			response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Token resolution failed")
		}
		return
	}

	response.SuccessJSON(c, delivery)
}

// writeDeliveryError maps issuance failures onto the API error contract.
func (h *Handlers) writeDeliveryError(c *gin.Context, userID, productID string, err error) {
	var denied *services.DeniedError
	switch {
	case errors.As(err, &denied):
		response.ErrorJSON(c, http.StatusForbidden, response.CodeAccessDenied, denied.Reason)
	case errors.Is(err, services.ErrAccessExpired):
		response.ErrorJSON(c, http.StatusForbidden, response.CodeAccessDenied, services.ReasonGrantExpired)
	case errors.Is(err, database.ErrDownloadQuotaExceeded):
		response.ErrorJSON(c, http.StatusForbidden, response.CodeQuotaExceeded, "Download quota exceeded")
	case errors.Is(err, database.ErrProductNotFound):
		response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "Product not found")
	case errors.Is(err, database.ErrFileNotFound):
		response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "File not found")
	default:
		logging.Errorf("Token issuance failed - user: %s, product: %s, error: %v", userID, productID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Token issuance failed")
	}
}
