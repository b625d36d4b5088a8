package api

import (
	"entitlement-api/internal/config"
	"entitlement-api/internal/middleware"
	"entitlement-api/internal/services"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the service instances behind the HTTP surface.
type Handlers struct {
	Checkout     *services.CheckoutService
	Settlement   *services.SettlementService
	Verifier     *services.WebhookVerifier
	Entitlements *services.EntitlementService
	Streaming    *services.StreamingService
	Progress     *services.ProgressService
}

// NewHandlers wires the default production services.
func NewHandlers() *Handlers {
	entitlements := services.NewEntitlementService()
	tokens := services.NewTokenService()
	return &Handlers{
		Checkout: services.NewCheckoutService(services.NewHTTPPaymentClient()),
		Settlement: services.NewSettlementService(
			services.NewReplayGuard(),
			services.NewFulfillmentNotifier(),
			services.NewBrevoService(),
		),
		Verifier:     services.NewWebhookVerifier(config.AppConfig.PaymentWebhookSecret),
		Entitlements: entitlements,
		Streaming:    services.NewStreamingService(entitlements, tokens),
		Progress:     services.NewProgressService(entitlements),
	}
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// API route group
	api := r.Group("/api")
	{
		// Order and checkout routes (require an authenticated principal)
		orders := api.Group("/orders")
		orders.Use(middleware.PrincipalAuthMiddleware())
		{
			orders.POST("", h.CreateOrder)
			orders.GET("/:order_number", h.GetOrder)
		}

		checkout := api.Group("/checkout")
		checkout.Use(middleware.PrincipalAuthMiddleware())
		{
			checkout.POST("", h.InitiateCheckout)
		}

		// Payment webhook (no principal auth, the processor calls this;
		// authenticity comes from the signature)
		payments := api.Group("/payments")
		{
			payments.POST("/webhook", h.PaymentWebhook)
		}

		// Entitlement and delivery routes
		delivery := api.Group("/delivery")
		delivery.Use(middleware.PrincipalAuthMiddleware())
		{
			delivery.POST("/token", h.IssueDeliveryToken)
		}
		// Token resolution authenticates by the token itself
		api.GET("/delivery/resolve", h.ResolveDeliveryToken)

		entitlements := api.Group("/entitlements")
		entitlements.Use(middleware.PrincipalAuthMiddleware())
		{
			entitlements.GET("/:product_id", h.GetEntitlement)
		}

		// Progress routes
		products := api.Group("/products")
		products.Use(middleware.PrincipalAuthMiddleware())
		{
			products.GET("/:product_id/progress", h.GetProgress)
			products.POST("/:product_id/progress", h.PostProgress)
		}

		// Administrative grant management
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(config.AppConfig.AdminAPIKey))
		{
			admin.POST("/grants", h.CreateGrant)
			admin.DELETE("/grants", h.DeleteGrant)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "entitlement-service",
		})
	})
}
