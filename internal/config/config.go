package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Payment provider configuration
	PaymentAPIBase       string
	PaymentAPIKey        string
	PaymentWebhookSecret string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string

	// Delivery token configuration
	DeliveryTokenSecret string
	DeliveryTokenTTL    int // minutes
	StreamBaseURL       string
	AssetSigningSecret  string

	// Fulfillment trigger (internal collaborator) configuration
	FulfillmentURL    string
	FulfillmentSecret string

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Admin API configuration
	AdminAPIKey string

	ServiceName string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                 getEnv("PORT", "8080"),
		Mode:                 getEnv("GIN_MODE", "debug"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PaymentAPIBase:       getEnv("PAYMENT_API_BASE", "https://api.payments.example.com/v1"),
		PaymentAPIKey:        getEnv("PAYMENT_API_KEY", ""),
		PaymentWebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:   getEnv("CHECKOUT_SUCCESS_URL", "https://portal.example.com/checkout/success"),
		CheckoutCancelURL:    getEnv("CHECKOUT_CANCEL_URL", "https://portal.example.com/checkout/cancel"),
		DeliveryTokenSecret:  getEnv("DELIVERY_TOKEN_SECRET", ""),
		DeliveryTokenTTL:     getEnvInt("DELIVERY_TOKEN_TTL_MINUTES", 120),
		StreamBaseURL:        getEnv("STREAM_BASE_URL", "https://media.example.com"),
		AssetSigningSecret:   getEnv("ASSET_SIGNING_SECRET", ""),
		FulfillmentURL:       getEnv("FULFILLMENT_WEBHOOK_URL", ""),
		FulfillmentSecret:    getEnv("FULFILLMENT_WEBHOOK_SECRET", ""),
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:       getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:        getEnv("BREVO_FROM_NAME", "Members Portal"),
		AdminAPIKey:          getEnv("ADMIN_API_KEY", ""),
		ServiceName:          getEnv("SERVICE_NAME", "Entitlement Service"),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
