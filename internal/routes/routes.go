package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/cruisemall/affiliate/internal/handlers"
	"github.com/cruisemall/affiliate/internal/metrics"
	"github.com/cruisemall/affiliate/internal/middleware"
)

// Handlers groups the affiliate HTTP handlers
type Handlers struct {
	Profiles    *handlers.ProfileHandler
	Sales       *handlers.SaleHandler
	Adjustments *handlers.AdjustmentHandler
	Refunds     *handlers.RefundHandler
	Settlements *handlers.SettlementHandler
}

// SetupRoutes registers the affiliate API on router
func SetupRoutes(router *gin.Engine, h Handlers, jwtSecret string, limiter *middleware.RateLimiter) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")
	if limiter != nil {
		api.Use(limiter.IPRateLimiterMiddleware())
	}
	api.Use(middleware.AuthMiddleware(jwtSecret))
	if limiter != nil {
		api.Use(limiter.ActorRateLimiterMiddleware())
	}

	affiliate := api.Group("/affiliate")
	{
		profiles := affiliate.Group("/profiles")
		{
			profiles.POST("", h.Profiles.CreateProfile)
			profiles.GET("/:id", h.Profiles.GetProfile)
			profiles.PUT("/:id/manager", h.Profiles.AssignManager)
			profiles.PUT("/:id/status", h.Profiles.UpdateStatus)
			profiles.GET("/:id/relations", h.Profiles.RelationHistory)
			profiles.GET("/:id/batches", h.Settlements.ListBatches)
		}

		sales := affiliate.Group("/sales")
		{
			sales.POST("", h.Sales.CreateSale)
			sales.GET("/:id", h.Sales.GetSale)
			sales.POST("/:id/confirm", h.Sales.ConfirmSale)
			sales.POST("/:id/cancel", h.Sales.CancelSale)
			sales.GET("/:id/entries", h.Sales.Entries)
			sales.GET("/:id/balance/:profile_id", h.Sales.Balance)
			sales.GET("/:id/adjustments", h.Adjustments.ListBySale)
		}

		affiliate.GET("/entries/:id", h.Sales.GetEntry)

		adjustments := affiliate.Group("/adjustments")
		{
			adjustments.POST("", h.Adjustments.RequestAdjustment)
			adjustments.GET("/:id", h.Adjustments.GetAdjustment)
		}
	}

	admin := api.Group("/admin/affiliate")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.DELETE("/profiles/:id", h.Profiles.DeleteProfile)

		admin.GET("/adjustments", h.Adjustments.ListPending)
		admin.POST("/adjustments/:id/approve", h.Adjustments.Approve)
		admin.POST("/adjustments/:id/reject", h.Adjustments.Reject)

		admin.POST("/sales/:id/refund", h.Refunds.ProcessRefund)
		admin.DELETE("/sales/:id/refund", h.Refunds.CancelRefund)

		settlement := admin.Group("/settlement")
		{
			settlement.GET("/unsettled", h.Settlements.Unsettled)
			settlement.POST("/run", h.Settlements.Run)
			settlement.GET("/batches/:id", h.Settlements.GetBatch)
		}
	}
}
