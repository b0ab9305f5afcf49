// internal/app/router.go
package app

import (
	loyaltyHandler "github.com/aykha18/tajir-loyalty/internal/handlers/loyalty"
	rewardHandler "github.com/aykha18/tajir-loyalty/internal/handlers/reward"
	segmentHandler "github.com/aykha18/tajir-loyalty/internal/handlers/segment"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Loyalty *loyaltyHandler.LoyaltyHandler
	Reward  *rewardHandler.RewardHandler
	Segment *segmentHandler.SegmentHandler
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	tenant := api.Group("/tenants/:tenant_id")

	// ==================== Program Config & Tiers ====================
	tenant.GET("/loyalty/config", h.Loyalty.GetConfig)
	tenant.PATCH("/loyalty/config", h.Loyalty.UpdateConfig)
	tenant.GET("/loyalty/tiers", h.Loyalty.ListTiers)
	tenant.PUT("/loyalty/tiers", h.Loyalty.UpsertTier)

	// ==================== Customer Loyalty ====================
	customers := tenant.Group("/customers/:customer_id")
	{
		customers.POST("/loyalty/enroll", h.Loyalty.Enroll)
		customers.GET("/loyalty", h.Loyalty.Get)
		customers.POST("/loyalty/recompute", h.Loyalty.Recompute)
		customers.POST("/rewards/:reward_id/redeem", h.Loyalty.RedeemReward)
		customers.GET("/redemptions", h.Reward.ListRedemptions)
		customers.GET("/offers", h.Reward.ListOffers)
	}

	// ==================== Bills ====================
	tenant.POST("/bills/loyalty", h.Loyalty.ApplyBill)
	tenant.POST("/bills/:bill_id/loyalty/reverse", h.Loyalty.ReverseBill)

	// ==================== Maintenance ====================
	tenant.POST("/loyalty/sweep-expired", h.Loyalty.SweepExpired)

	// ==================== Rewards & Offers ====================
	tenant.GET("/rewards", h.Reward.ListRewards)
	tenant.POST("/rewards", h.Reward.SaveReward)
	tenant.GET("/rewards/:reward_id", h.Reward.GetReward)
	tenant.DELETE("/rewards/:reward_id", h.Reward.DeactivateReward)
	tenant.POST("/offers", h.Reward.CreateOffer)
	tenant.POST("/offers/:offer_id/use", h.Reward.UseOffer)

	// ==================== Segmentation ====================
	tenant.POST("/segmentation/run", h.Segment.Run)
	tenant.POST("/segmentation/predict", h.Segment.Predict)
}
