package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"entitlement-api/internal/config"
	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
	"entitlement-api/internal/response"
	"entitlement-api/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	testWebhookSecret = "whsec_test"
	testAdminKey      = "admin_test_key"
)

// setupRouter wires an in-memory database and a fully routed engine.
func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
		DeliveryTokenSecret:  "test-delivery-secret",
		DeliveryTokenTTL:     120,
		StreamBaseURL:        "https://media.test",
		AssetSigningSecret:   "test-asset-secret",
		PaymentWebhookSecret: testWebhookSecret,
		AdminAPIKey:          testAdminKey,
	}

	guard := services.NewReplayGuard()
	entitlements := services.NewEntitlementService()
	h := &Handlers{
		Checkout:     services.NewCheckoutService(nil),
		Settlement:   services.NewSettlementService(guard, nil, nil),
		Verifier:     services.NewWebhookVerifier(testWebhookSecret),
		Entitlements: entitlements,
		Streaming:    services.NewStreamingService(entitlements, services.NewTokenService()),
		Progress:     services.NewProgressService(entitlements),
	}

	r := gin.New()
	SetupRoutes(r, h)

	t.Cleanup(func() {
		guard.Stop()
		sqlDB.Close()
		database.DB = prevDB
	})
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func seedProduct(t *testing.T, productID string, digital bool) {
	t.Helper()
	product := models.Product{
		ProductID: productID,
		Name:      "Test Product",
		Category:  "course",
		IsDigital: digital,
	}
	if err := database.DB.Create(&product).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
}

func seedSettledOrder(t *testing.T, orderNumber, userID, productID string) {
	t.Helper()
	order := models.Order{
		OrderNumber:   orderNumber,
		UserID:        userID,
		Email:         userID + "@example.com",
		AmountTotal:   4999,
		Currency:      "USD",
		PaymentStatus: models.PaymentPaid,
		OrderStatus:   models.OrderConfirmed,
		Items: []models.OrderItem{
			{OrderNumber: orderNumber, ProductID: productID, Quantity: 1, UnitPrice: 4999},
		},
	}
	if err := database.DB.Create(&order).Error; err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
}

func userHeaders(userID string) map[string]string {
	return map[string]string{"X-User-ID": userID}
}
