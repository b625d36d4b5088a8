package services

import (
	"fmt"
	"testing"
	"time"

	"entitlement-api/internal/config"
	"entitlement-api/internal/database"
	"entitlement-api/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// setupTestDB points the shared database handle at a fresh in-memory SQLite
// instance. A single connection keeps SQLite serialized under the
// concurrency tests.
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	prevDB := database.DB
	database.DB = db
	database.RedisClient = nil

	config.AppConfig = &config.Config{
		DeliveryTokenSecret: "test-delivery-secret",
		DeliveryTokenTTL:    120,
		StreamBaseURL:       "https://media.test",
		AssetSigningSecret:  "test-asset-secret",
		CheckoutSuccessURL:  "https://portal.test/checkout/success",
		CheckoutCancelURL:   "https://portal.test/checkout/cancel",
	}

	t.Cleanup(func() {
		sqlDB.Close()
		database.DB = prevDB
	})
}

func seedProduct(t *testing.T, productID string, digital bool, maxDownloads int64) {
	t.Helper()
	product := models.Product{
		ProductID:    productID,
		Name:         "Test Product " + productID,
		Category:     "course",
		IsDigital:    digital,
		MaxDownloads: maxDownloads,
	}
	if err := database.DB.Create(&product).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
}

func seedFile(t *testing.T, productID, fileID string, fileType models.FileType, preview bool) {
	t.Helper()
	file := models.ProductFile{
		FileID:      fileID,
		ProductID:   productID,
		Name:        fileID,
		FileType:    fileType,
		StoragePath: "courses/" + productID + "/" + fileID,
		IsPreview:   preview,
	}
	if err := database.DB.Create(&file).Error; err != nil {
		t.Fatalf("failed to seed product file: %v", err)
	}
}

// seedOrder creates an order with one item for the product.
func seedOrder(t *testing.T, orderNumber, userID, productID string, payment models.PaymentStatus, status models.OrderStatus) {
	t.Helper()
	order := models.Order{
		OrderNumber:   orderNumber,
		UserID:        userID,
		Email:         userID + "@example.com",
		Name:          "Test Buyer",
		AmountTotal:   4999,
		Currency:      "USD",
		PaymentStatus: payment,
		OrderStatus:   status,
		Items: []models.OrderItem{
			{OrderNumber: orderNumber, ProductID: productID, Quantity: 1, UnitPrice: 4999},
		},
	}
	if payment == models.PaymentPaid {
		now := time.Now()
		order.PaidAt = &now
	}
	if err := database.DB.Create(&order).Error; err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
}

// seedSettledOrder creates a PAID + CONFIRMED order, which is what the
// entitlement check treats as a settled purchase.
func seedSettledOrder(t *testing.T, orderNumber, userID, productID string) {
	t.Helper()
	seedOrder(t, orderNumber, userID, productID, models.PaymentPaid, models.OrderConfirmed)
}

func seedGrant(t *testing.T, productID, userID string, expiresAt *time.Time) {
	t.Helper()
	grant := models.DigitalAccess{
		ProductID: productID,
		GrantedTo: userID,
		ExpiresAt: expiresAt,
		GrantedBy: "fulfillment",
	}
	if err := database.DB.Create(&grant).Error; err != nil {
		t.Fatalf("failed to seed grant: %v", err)
	}
}
