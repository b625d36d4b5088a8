package database

import (
	"errors"
	"time"

	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"

	"gorm.io/gorm"
)

// ErrOrderNotFound is returned when no order matches the lookup.
var ErrOrderNotFound = errors.New("order not found")

// CreateOrder 创建订单
func CreateOrder(order *models.Order) error {
	return DB.Create(order).Error
}

// GetOrderByNumber 通过订单号获取订单
func GetOrderByNumber(orderNumber string) (*models.Order, error) {
	var order models.Order
	err := DB.Preload("Items").Where("order_number = ?", orderNumber).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateOrderPaymentReferences 回填上游支付引用
// Best-effort backfill after checkout creation; the caller logs and ignores
// failures (accepted inconsistency window).
func UpdateOrderPaymentReferences(orderNumber, paymentIntentID, sessionID string) error {
	result := DB.Model(&models.Order{}).
		Where("order_number = ?", orderNumber).
		Updates(map[string]interface{}{
			"payment_intent_id":   paymentIntentID,
			"checkout_session_id": sessionID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkOrderPaid 标记订单已支付
// Transitions PENDING->PAID / CREATED->PROCESSING in one guarded update.
// Returns true when this call performed the transition, false when the order
// was already PAID (idempotent re-delivery).
func MarkOrderPaid(orderNumber, sessionID string, paidAt time.Time) (bool, error) {
	result := DB.Model(&models.Order{}).
		Where("order_number = ? AND payment_status = ?", orderNumber, models.PaymentPending).
		Updates(map[string]interface{}{
			"payment_status":      models.PaymentPaid,
			"order_status":        models.OrderProcessing,
			"checkout_session_id": sessionID,
			"paid_at":             paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		// Either unknown order or already settled; distinguish for the caller.
		var count int64
		if err := DB.Model(&models.Order{}).Where("order_number = ?", orderNumber).Count(&count).Error; err != nil {
			return false, err
		}
		if count == 0 {
			return false, ErrOrderNotFound
		}
		logging.Infof("Order %s already settled, skipping transition", orderNumber)
		return false, nil
	}
	return true, nil
}

// MarkOrderPaymentFailed 标记订单支付失败
// Transitions PENDING->FAILED; a no-op for already settled orders.
func MarkOrderPaymentFailed(orderNumber, reason string) (bool, error) {
	result := DB.Model(&models.Order{}).
		Where("order_number = ? AND payment_status = ?", orderNumber, models.PaymentPending).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentFailed,
			"order_status":   models.OrderPaymentFailed,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkOrderConfirmed 标记订单已确认（履约完成）
// Transitions PROCESSING->CONFIRMED for a paid order. An order that is
// already CONFIRMED or DELIVERED is left untouched, so a repeated
// confirmation cannot regress delivery state.
func MarkOrderConfirmed(orderNumber string) error {
	result := DB.Model(&models.Order{}).
		Where("order_number = ? AND payment_status = ? AND order_status = ?",
			orderNumber, models.PaymentPaid, models.OrderProcessing).
		Update("order_status", models.OrderConfirmed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		err := DB.Model(&models.Order{}).
			Where("order_number = ? AND payment_status = ?", orderNumber, models.PaymentPaid).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrOrderNotFound
		}
	}
	return nil
}

// FindLatestPaidOrderForProduct 查找用户最近一笔包含该产品的已结算订单
// Settled means PAID plus an order status of CONFIRMED or DELIVERED.
func FindLatestPaidOrderForProduct(userID, productID string) (*models.Order, error) {
	var order models.Order
	err := DB.
		Joins("JOIN order_items ON order_items.order_number = orders.order_number").
		Where("orders.user_id = ? AND order_items.product_id = ?", userID, productID).
		Where("orders.payment_status = ?", models.PaymentPaid).
		Where("orders.order_status IN ?", []models.OrderStatus{models.OrderConfirmed, models.OrderDelivered}).
		Order("orders.created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}
