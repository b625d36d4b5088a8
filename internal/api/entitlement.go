package api

import (
	"errors"
	"net/http"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/middleware"
	"entitlement-api/internal/response"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetEntitlement returns the caller's access decision for a product.
// GET /api/entitlements/:product_id
func (h *Handlers) GetEntitlement(c *gin.Context) {
	productID := c.Param("product_id")
	userID := middleware.CurrentUserID(c)

	decision, err := h.Entitlements.Check(c.Request.Context(), userID, productID)
	if err != nil {
		logging.Errorf("Entitlement check failed - user: %s, product: %s, error: %v", userID, productID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Entitlement check failed")
		return
	}

	response.SuccessJSON(c, decision)
}

// CreateGrantRequest is the admin grant payload.
type CreateGrantRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	ExpiresAt string `json:"expires_at"` // RFC 3339, empty = never
	GrantedBy string `json:"granted_by"`
	OrderID   string `json:"order_id"`
}

// CreateGrant records a digital access grant.
// POST /api/admin/grants
func (h *Handlers) CreateGrant(c *gin.Context) {
	var req CreateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Invalid request format: "+err.Error())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "expires_at must be RFC 3339")
			return
		}
		expiresAt = &parsed
	}

	grantedBy := req.GrantedBy
	if grantedBy == "" {
		grantedBy = "admin"
	}

	err := h.Entitlements.Grant(c.Request.Context(), req.ProductID, req.UserID, grantedBy, req.OrderID, expiresAt)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "Product not found")
			return
		}
		if errors.Is(err, database.ErrOrderNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "Order not found")
			return
		}
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, response.Success(gin.H{
		"product_id": req.ProductID,
		"user_id":    req.UserID,
	}))
}

// DeleteGrantRequest is the admin revoke payload. Setting expires_at
// time-bounds the grant instead of deleting it.
type DeleteGrantRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	ExpiresAt string `json:"expires_at"` // RFC 3339, empty = delete outright
}

// DeleteGrant revokes or expires a digital access grant. Already-issued
// delivery tokens remain valid until they expire.
// DELETE /api/admin/grants
func (h *Handlers) DeleteGrant(c *gin.Context) {
	var req DeleteGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Invalid request format: "+err.Error())
		return
	}

	var err error
	if req.ExpiresAt != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.ExpiresAt)
		if parseErr != nil {
			response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "expires_at must be RFC 3339")
			return
		}
		err = h.Entitlements.Expire(c.Request.Context(), req.ProductID, req.UserID, parsed)
	} else {
		err = h.Entitlements.Revoke(c.Request.Context(), req.ProductID, req.UserID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "Grant not found")
			return
		}
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Failed to revoke grant")
		return
	}

	response.SuccessJSON(c, gin.H{
		"product_id": req.ProductID,
		"user_id":    req.UserID,
	})
}
