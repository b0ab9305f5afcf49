package reward

import (
	"errors"
	"net/http"
	"strconv"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"
	"github.com/aykha18/tajir-loyalty/internal/pkg/response"
	service "github.com/aykha18/tajir-loyalty/internal/service/reward"

	"github.com/gin-gonic/gin"
)

type RewardHandler struct {
	rewardService *service.Service
}

func NewRewardHandler(rewardService *service.Service) *RewardHandler {
	return &RewardHandler{rewardService: rewardService}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid "+name, err)
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, xerrors.ErrOfferNotAvailable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// ListRewards returns the catalog; ?active=true filters to redeemable items.
func (h *RewardHandler) ListRewards(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	activeOnly := c.Query("active") == "true"

	rewards, err := h.rewardService.ListRewards(c.Request.Context(), tenantID, activeOnly)
	if err != nil {
		response.Error(c, statusFor(err), "failed to list rewards", err)
		return
	}

	response.Success(c, http.StatusOK, "rewards retrieved", gin.H{
		"rewards": rewards,
		"count":   len(rewards),
	})
}

// GetReward returns one catalog item.
func (h *RewardHandler) GetReward(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	rewardID, ok := pathID(c, "reward_id")
	if !ok {
		return
	}

	rw, err := h.rewardService.GetReward(c.Request.Context(), tenantID, rewardID)
	if err != nil {
		response.Error(c, statusFor(err), "reward not found", err)
		return
	}

	response.Success(c, http.StatusOK, "reward retrieved", rw)
}

// SaveReward creates or updates a catalog item.
func (h *RewardHandler) SaveReward(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	var rw domain.Reward
	if err := c.ShouldBindJSON(&rw); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	rw.TenantID = tenantID

	if err := h.rewardService.SaveReward(c.Request.Context(), &rw); err != nil {
		response.Error(c, statusFor(err), "failed to save reward", err)
		return
	}

	response.Success(c, http.StatusOK, "reward saved", rw)
}

// DeactivateReward retires a catalog item.
func (h *RewardHandler) DeactivateReward(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	rewardID, ok := pathID(c, "reward_id")
	if !ok {
		return
	}

	if err := h.rewardService.DeactivateReward(c.Request.Context(), tenantID, rewardID); err != nil {
		response.Error(c, statusFor(err), "failed to deactivate reward", err)
		return
	}

	response.Success(c, http.StatusOK, "reward deactivated", nil)
}

// ListRedemptions returns the customer's redemption trail.
func (h *RewardHandler) ListRedemptions(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	customerID, ok := pathID(c, "customer_id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.rewardService.ListRedemptions(c.Request.Context(), tenantID, customerID, limit)
	if err != nil {
		response.Error(c, statusFor(err), "failed to list redemptions", err)
		return
	}

	response.Success(c, http.StatusOK, "redemptions retrieved", gin.H{
		"redemptions": records,
		"count":       len(records),
	})
}

// ListOffers returns the offers the customer can use right now.
func (h *RewardHandler) ListOffers(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	customerID, ok := pathID(c, "customer_id")
	if !ok {
		return
	}

	offers, err := h.rewardService.ListOffersFor(c.Request.Context(), tenantID, customerID)
	if err != nil {
		response.Error(c, statusFor(err), "failed to list offers", err)
		return
	}

	response.Success(c, http.StatusOK, "offers retrieved", gin.H{
		"offers": offers,
		"count":  len(offers),
	})
}

// CreateOffer publishes a targeted or broadcast offer.
func (h *RewardHandler) CreateOffer(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	var offer domain.PersonalizedOffer
	if err := c.ShouldBindJSON(&offer); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	offer.TenantID = tenantID

	if err := h.rewardService.CreateOffer(c.Request.Context(), &offer); err != nil {
		response.Error(c, statusFor(err), "failed to create offer", err)
		return
	}

	response.Success(c, http.StatusCreated, "offer created", offer)
}

type useOfferRequest struct {
	CustomerID int64 `json:"customer_id" binding:"required"`
	BillID     int64 `json:"bill_id" binding:"required"`
}

// UseOffer consumes an offer against a bill.
func (h *RewardHandler) UseOffer(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	offerID, ok := pathID(c, "offer_id")
	if !ok {
		return
	}

	var req useOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.rewardService.MarkOfferUsed(c.Request.Context(), tenantID, offerID, req.CustomerID, req.BillID); err != nil {
		response.Error(c, statusFor(err), "failed to use offer", err)
		return
	}

	response.Success(c, http.StatusOK, "offer used", nil)
}
