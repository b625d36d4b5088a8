package api

import (
	"errors"
	"net/http"

	"entitlement-api/internal/database"
	"entitlement-api/internal/middleware"
	"entitlement-api/internal/models"
	"entitlement-api/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateOrderRequest is the order creation payload.
type CreateOrderRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Currency string `json:"currency" binding:"required"`
	Items    []struct {
		ProductID string `json:"product_id" binding:"required"`
		Quantity  int    `json:"quantity"`
		UnitPrice int64  `json:"unit_price" binding:"required,gt=0"`
	} `json:"items" binding:"required,min=1"`
}

// CreateOrder creates a pending order for the current user.
// POST /api/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, response.CodeValidationError, "Invalid request format: "+err.Error())
		return
	}

	userID := middleware.CurrentUserID(c)
	orderNumber := uuid.NewString()

	var total int64
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		items = append(items, models.OrderItem{
			OrderNumber: orderNumber,
			ProductID:   item.ProductID,
			Quantity:    quantity,
			UnitPrice:   item.UnitPrice,
		})
		total += item.UnitPrice * int64(quantity)
	}

	order := &models.Order{
		OrderNumber:   orderNumber,
		UserID:        userID,
		Email:         req.Email,
		Name:          req.Name,
		AmountTotal:   total,
		Currency:      req.Currency,
		PaymentStatus: models.PaymentPending,
		OrderStatus:   models.OrderCreated,
		Items:         items,
	}

	if err := database.CreateOrder(order); err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, response.CodeInternalError, "Failed to create order")
		return
	}

	c.JSON(http.StatusCreated, response.Success(order))
}

// GetOrder returns one of the current user's orders.
// GET /api/orders/:order_number
func (h *Handlers) GetOrder(c *gin.Context) {
	orderNumber := c.Param("order_number")

	order, err := database.GetOrderByNumber(orderNumber)
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

	response.SuccessJSON(c, order)
}
