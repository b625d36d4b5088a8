package database

import (
	"errors"
	"time"

	"entitlement-api/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrProductNotFound is returned when no product matches the lookup.
	ErrProductNotFound = errors.New("product not found")
	// ErrFileNotFound is returned when no product file matches the lookup.
	ErrFileNotFound = errors.New("file not found")
)

// GetProductByID 通过产品ID获取产品
func GetProductByID(productID string) (*models.Product, error) {
	var product models.Product
	err := DB.Where("product_id = ?", productID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// GetProductFile 获取产品文件
func GetProductFile(productID, fileID string) (*models.ProductFile, error) {
	var file models.ProductFile
	err := DB.Where("product_id = ? AND file_id = ?", productID, fileID).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &file, nil
}

// GetDigitalAccess 获取授权记录
// Returns nil (no error) when no grant exists for this pair.
func GetDigitalAccess(productID, userID string) (*models.DigitalAccess, error) {
	var access models.DigitalAccess
	err := DB.Where("product_id = ? AND granted_to = ?", productID, userID).First(&access).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &access, nil
}

// UpsertDigitalAccess 创建或更新授权
// The administrative grant operation. Re-granting refreshes expiry and
// provenance on the existing row rather than duplicating it.
func UpsertDigitalAccess(grant *models.DigitalAccess) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		var existing models.DigitalAccess
		err := tx.Where("product_id = ? AND granted_to = ?", grant.ProductID, grant.GrantedTo).
			First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(grant).Error
			}
			return err
		}

		existing.ExpiresAt = grant.ExpiresAt
		existing.GrantedBy = grant.GrantedBy
		existing.SourceOrder = grant.SourceOrder
		return tx.Save(&existing).Error
	})
}

// RevokeDigitalAccess 撤销授权
func RevokeDigitalAccess(productID, userID string) error {
	result := DB.Where("product_id = ? AND granted_to = ?", productID, userID).
		Delete(&models.DigitalAccess{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ExpireDigitalAccessAt sets an expiry on an existing grant.
func ExpireDigitalAccessAt(productID, userID string, at time.Time) error {
	result := DB.Model(&models.DigitalAccess{}).
		Where("product_id = ? AND granted_to = ?", productID, userID).
		Update("expires_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
