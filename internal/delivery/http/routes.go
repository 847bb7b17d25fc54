package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lendmatch/backend/config"
	"github.com/lendmatch/backend/internal/infrastructure/notify"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware
	router.Use(LoggerMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))

	auth := BearerAuthMiddleware(cfg.Sync.SharedSecret, logger)

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	products := router.Group("/api/lender-products")
	{
		products.GET("/sync", handler.GetSyncCatalog)
		products.POST("/sync", auth, handler.PostSyncCatalog)
		products.GET("/stats", handler.GetStats)
		products.GET("/events", handler.Events)
		products.POST("/pull", auth, handler.PullProducts)

		products.POST("", auth, handler.CreateProduct)
		products.PUT("/:id", auth, handler.UpdateProduct)
		products.DELETE("/:id", auth, handler.DeleteProduct)
	}

	router.POST("/api/recommendations", handler.Recommend)
	router.POST(notify.WebhookPath, handler.ReceiveWebhook)

	return router
}
