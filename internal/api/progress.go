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

// GetProgress returns the caller's progress snapshot for a product.
// GET /api/products/:product_id/progress
func (h *Handlers) GetProgress(c *gin.Context) {
	productID := c.Param("product_id")
	userID := middleware.CurrentUserID(c)

	snapshot, err := h.Progress.Get(c.Request.Context(), userID, productID)
	if err != nil {
		h.writeProgressError(c, userID, productID, err)
		return
	}

	response.SuccessJSON(c, snapshot)
}

// PostProgress applies one progress action for the caller.
// POST /api/products/:product_id/progress
func (h *Handlers) PostProgress(c *gin.Context) {
	productID := c.Param("product_id")
	userID := middleware.CurrentUserID(c)

	var action services.ProgressAction
	if err := c.ShouldBindJSON(&action); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Invalid request format: "+err.Error())
		return
	}
	if action.Action == "" {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "action is required")
		return
	}

	if err := h.Progress.Apply(c.Request.Context(), userID, productID, action); err != nil {
		if errors.Is(err, services.ErrUnknownAction) {
			response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Unknown action: "+action.Action)
			return
		}
		h.writeProgressError(c, userID, productID, err)
		return
	}

	response.SuccessJSON(c, gin.H{"action": action.Action})
}

// writeProgressError maps tracker failures onto the API error contract.
func (h *Handlers) writeProgressError(c *gin.Context, userID, productID string, err error) {
	var denied *services.DeniedError
	switch {
	case errors.As(err, &denied):
		response.ErrorJSON(c, http.StatusForbidden, response.CodeAccessDenied, denied.Reason)
	case errors.Is(err, services.ErrAccessExpired):
		response.ErrorJSON(c, http.StatusForbidden, response.CodeAccessDenied, services.ReasonGrantExpired)
	case errors.Is(err, database.ErrProductNotFound):
		response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "Product not found")
	default:
		var invalid *services.ValidationError
		if errors.As(err, &invalid) {
			response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, invalid.Error())
			return
		}
		logging.Errorf("Progress operation failed - user: %s, product: %s, error: %v", userID, productID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Progress operation failed")
	}
}
