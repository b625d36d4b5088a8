package models

import (
	"time"
)

// DigitalAccess 数字产品授权表
// The recorded fact that a principal may access a digital product,
// independent of which order paid for it. Granting is an administrative act
// (fulfillment or admin API), never an implicit side effect of payment.
type DigitalAccess struct {
	BaseModel

	ProductID string `json:"product_id" gorm:"not null;size:64;index:idx_access_product_user,unique"`
	GrantedTo string `json:"granted_to" gorm:"not null;size:64;index:idx_access_product_user,unique"`

	ExpiresAt *time.Time `json:"expires_at" gorm:"index"` // nil = never expires

	GrantedBy   string `json:"granted_by" gorm:"size:64"`   // admin id or "fulfillment"
	SourceOrder string `json:"source_order" gorm:"size:64"` // order number that motivated the grant, informational
}

// TableName 指定表名
func (DigitalAccess) TableName() string {
	return "digital_access"
}

// Expired reports whether the grant has an expiry in the past.
func (a *DigitalAccess) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}
