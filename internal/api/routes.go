package api

import (
	"net/http"

	"biztomate-api/internal/catalog"
	"biztomate-api/internal/config"
	"biztomate-api/internal/middleware"
	"biztomate-api/internal/response"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine) {
	// API route group
	api := r.Group("/api")
	{
		// Receipt validation routes (client API - called by the app)
		validation := api.Group("/receipt-validation")
		{
			validation.POST("", ValidateReceipt)
			validation.POST("/restore", RestoreReceipts)
			validation.GET("/products", GetProducts)
			validation.GET("/health", GetValidationHealth)
		}

		// Entitlement routes (require API key when configured)
		ent := api.Group("/entitlement")
		ent.Use(middleware.APIKeyMiddleware())
		{
			ent.GET("/status", GetEntitlementStatus)
			ent.POST("/scan", RecordScan)
		}

		// Card extraction routes
		cards := api.Group("/cards")
		cards.Use(middleware.APIKeyMiddleware())
		{
			cards.POST("/extract", ExtractCard)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": config.AppConfig.ServiceName,
		})
	})
}

// GetProducts returns the static store product catalog.
// GET /api/receipt-validation/products
func GetProducts(c *gin.Context) {
	response.SuccessJSON(c, gin.H{
		"products":   catalog.All(),
		"productIds": catalog.StoreProductIDs(),
	})
}

// GetValidationHealth reports service liveness plus the two upstream
// verification endpoints in use.
// GET /api/receipt-validation/health
func GetValidationHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"service":       config.AppConfig.ServiceName,
		"productionUrl": config.AppConfig.AppStoreProductionURL,
		"sandboxUrl":    config.AppConfig.AppStoreSandboxURL,
	})
}
