package models

import (
	"time"
)

// PaymentStatus tracks settlement of the upstream charge.
// Transitions: PENDING -> PAID or PENDING -> FAILED, never backwards.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// OrderStatus tracks order lifecycle, driven by the settlement processor.
type OrderStatus string

const (
	OrderCreated       OrderStatus = "CREATED"
	OrderProcessing    OrderStatus = "PROCESSING"
	OrderConfirmed     OrderStatus = "CONFIRMED"
	OrderDelivered     OrderStatus = "DELIVERED"
	OrderPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderCancelled     OrderStatus = "CANCELLED"
)

// Order 订单表
// The settlement webhook processor is the only writer of PaymentStatus and
// OrderStatus after creation.
type Order struct {
	BaseModel

	OrderNumber string `json:"order_number" gorm:"not null;size:64;uniqueIndex"` // public order id
	UserID      string `json:"user_id" gorm:"not null;size:64;index"`            // buyer principal
	Email       string `json:"email" gorm:"size:255"`
	Name        string `json:"name" gorm:"size:255"`

	AmountTotal int64  `json:"amount_total" gorm:"not null"` // minor units
	Currency    string `json:"currency" gorm:"size:8;not null"`

	PaymentStatus PaymentStatus `json:"payment_status" gorm:"not null;size:20;index;default:'PENDING'"`
	OrderStatus   OrderStatus   `json:"order_status" gorm:"not null;size:20;index;default:'CREATED'"`

	// Upstream payment processor references
	PaymentIntentID   string `json:"payment_intent_id" gorm:"size:128;index"`
	CheckoutSessionID string `json:"checkout_session_id" gorm:"size:128;index"`
	FailureReason     string `json:"failure_reason" gorm:"type:text"`

	PaidAt *time.Time `json:"paid_at"`

	Items []OrderItem `json:"items" gorm:"foreignKey:OrderNumber;references:OrderNumber"`
}

// TableName 指定表名
// "order" is a reserved word, keep the plural here.
func (Order) TableName() string {
	return "orders"
}

// OrderItem 订单行
type OrderItem struct {
	BaseModel

	OrderNumber string `json:"order_number" gorm:"not null;size:64;index"`
	ProductID   string `json:"product_id" gorm:"not null;size:64;index"`
	Quantity    int    `json:"quantity" gorm:"not null;default:1"`
	UnitPrice   int64  `json:"unit_price" gorm:"not null"` // minor units, snapshot at purchase time
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
