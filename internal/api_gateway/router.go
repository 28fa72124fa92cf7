package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vly-payment-engine/internal/api_gateway/handler"
	"github.com/vly-payment-engine/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	gatherer prometheus.Gatherer,
	merchantHandler *handler.MerchantHandler,
	paymentHandler *handler.PaymentHandler,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		merchants := v1.Group("/merchants")
		{
			merchants.POST("", merchantHandler.Create)
			merchants.GET("/:id", merchantHandler.GetByID)
			merchants.POST("/:id/webhooks/verify", merchantHandler.VerifyWebhook)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("", paymentHandler.Create)
			payments.GET("/:id", paymentHandler.GetByID)
			payments.GET("/:id/failures", paymentHandler.GetFailures)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
