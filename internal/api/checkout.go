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

// InitiateCheckoutRequest is the checkout initiation payload.
type InitiateCheckoutRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required,gt=0"` // minor units
	Currency string `json:"currency" binding:"required"`
	Buyer    struct {
		Email string `json:"email" binding:"required,email"`
		Name  string `json:"name"`
	} `json:"buyer" binding:"required"`
}

// InitiateCheckout creates the upstream payment intent and hosted checkout
// session for an order.
// POST /api/checkout
func (h *Handlers) InitiateCheckout(c *gin.Context) {
	var req InitiateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Invalid request format: "+err.Error())
		return
	}

	// The order must exist and belong to the caller.
	order, err := database.GetOrderByNumber(req.OrderID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "Order not found")
			return
		}
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Order lookup failed")
		return
	}
	if order.UserID != middleware.CurrentUserID(c) {
		response.ErrorJSON(c, http.StatusForbidden, response.CodeAccessDenied, "Order belongs to a different user")
		return
	}

	result, err := h.Checkout.InitiateCheckout(services.CheckoutRequest{
		OrderID:    req.OrderID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		BuyerEmail: req.Buyer.Email,
		BuyerName:  req.Buyer.Name,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidCheckout) {
			response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, err.Error())
			return
		}
		var upstream *services.UpstreamError
		if errors.As(err, &upstream) {
			logging.Errorf("Checkout failed upstream for order %s: %v", req.OrderID, err)
			response.ErrorJSON(c, http.StatusBadGateway, response.CodeUpstreamError, upstream.Message)
			return
		}
		logging.Errorf("Checkout failed for order %s: %v", req.OrderID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Checkout failed")
		return
	}

	response.SuccessJSON(c, result)
}
