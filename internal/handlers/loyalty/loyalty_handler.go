package loyalty

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"
	"github.com/aykha18/tajir-loyalty/internal/pkg/response"
	service "github.com/aykha18/tajir-loyalty/internal/service/loyalty"

	"github.com/gin-gonic/gin"
)

type LoyaltyHandler struct {
	coordinator   *service.Coordinator
	configService *service.ConfigService
	tierService   *service.TierService
}

func NewLoyaltyHandler(coordinator *service.Coordinator, configService *service.ConfigService, tierService *service.TierService) *LoyaltyHandler {
	return &LoyaltyHandler{
		coordinator:   coordinator,
		configService: configService,
		tierService:   tierService,
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid "+name, err)
		return 0, false
	}
	return id, true
}

// statusFor maps the engine's error taxonomy to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrNotFound), errors.Is(err, xerrors.ErrCustomerNotEnrolled):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrInvalidInput), errors.Is(err, xerrors.ErrInvalidTierCatalog):
		return http.StatusBadRequest
	case errors.Is(err, xerrors.ErrInsufficientPoints),
		errors.Is(err, xerrors.ErrBelowMinRedeem),
		errors.Is(err, xerrors.ErrRewardInactive),
		errors.Is(err, xerrors.ErrRewardOutOfWindow),
		errors.Is(err, xerrors.ErrOfferNotAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, xerrors.ErrDuplicateEntry), errors.Is(err, xerrors.ErrConflict), errors.Is(err, xerrors.ErrStorageConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Enroll creates the customer's loyalty membership.
func (h *LoyaltyHandler) Enroll(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	customerID, ok := pathID(c, "customer_id")
	if !ok {
		return
	}

	var req domain.EnrollInput
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	state, err := h.coordinator.Enroll(c.Request.Context(), tenantID, customerID, req)
	if err != nil {
		response.Error(c, statusFor(err), "failed to enroll customer", err)
		return
	}

	response.Success(c, http.StatusCreated, "customer enrolled", state)
}

// Get returns the customer's loyalty view: state, tier perks, recent ledger.
func (h *LoyaltyHandler) Get(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	customerID, ok := pathID(c, "customer_id")
	if !ok {
		return
	}

	view, err := h.coordinator.Get(c.Request.Context(), tenantID, customerID)
	if err != nil {
		response.Error(c, statusFor(err), "failed to get customer loyalty", err)
		return
	}

	response.Success(c, http.StatusOK, "customer loyalty retrieved", view)
}

// ApplyBill applies loyalty for one finalized bill. A serialization conflict
// retries once before surfacing.
func (h *LoyaltyHandler) ApplyBill(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	var req domain.BillLoyaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	req.TenantID = tenantID
	if req.CustomerID <= 0 || req.BillID <= 0 {
		response.Error(c, http.StatusBadRequest, "customer_id and bill_id are required", nil)
		return
	}

	outcome, err := h.coordinator.ApplyBillLoyalty(c.Request.Context(), req)
	if errors.Is(err, xerrors.ErrStorageConflict) {
		outcome, err = h.coordinator.ApplyBillLoyalty(c.Request.Context(), req)
	}
	if err != nil {
		response.Error(c, statusFor(err), "failed to apply bill loyalty", err)
		return
	}

	response.Success(c, http.StatusOK, "bill loyalty applied", outcome)
}

// ReverseBill compensates a voided bill's loyalty effect.
func (h *LoyaltyHandler) ReverseBill(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	billID, ok := pathID(c, "bill_id")
	if !ok {
		return
	}

	summary, err := h.coordinator.ReverseBillLoyalty(c.Request.Context(), tenantID, billID, time.Now())
	if errors.Is(err, xerrors.ErrStorageConflict) {
		summary, err = h.coordinator.ReverseBillLoyalty(c.Request.Context(), tenantID, billID, time.Now())
	}
	if err != nil {
		response.Error(c, statusFor(err), "failed to reverse bill loyalty", err)
		return
	}

	response.Success(c, http.StatusOK, "bill loyalty reversed", summary)
}

// RedeemReward cashes a catalog reward with no bill attached.
func (h *LoyaltyHandler) RedeemReward(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	customerID, ok := pathID(c, "customer_id")
	if !ok {
		return
	}
	rewardID, ok := pathID(c, "reward_id")
	if !ok {
		return
	}

	rec, err := h.coordinator.RedeemRewardStandalone(c.Request.Context(), tenantID, customerID, rewardID)
	if err != nil {
		response.Error(c, statusFor(err), "failed to redeem reward", err)
		return
	}

	response.Success(c, http.StatusOK, "reward redeemed", rec)
}

// SweepExpired runs the lazy-expiry cleanup for the tenant.
func (h *LoyaltyHandler) SweepExpired(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	result, err := h.coordinator.SweepExpired(c.Request.Context(), tenantID, time.Now())
	if err != nil {
		response.Error(c, statusFor(err), "failed to sweep expired points", err)
		return
	}

	response.Success(c, http.StatusOK, "expired points swept", result)
}

// Recompute rebuilds one customer's aggregates from the ledger.
func (h *LoyaltyHandler) Recompute(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	customerID, ok := pathID(c, "customer_id")
	if !ok {
		return
	}

	state, err := h.coordinator.Recompute(c.Request.Context(), tenantID, customerID)
	if err != nil {
		response.Error(c, statusFor(err), "failed to recompute customer state", err)
		return
	}

	response.Success(c, http.StatusOK, "customer state recomputed", state)
}

// GetConfig returns the tenant's program configuration.
func (h *LoyaltyHandler) GetConfig(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	cfg, err := h.configService.Get(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, statusFor(err), "failed to get config", err)
		return
	}

	response.Success(c, http.StatusOK, "config retrieved", cfg)
}

// UpdateConfig applies a partial configuration patch.
func (h *LoyaltyHandler) UpdateConfig(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	var patch domain.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	cfg, err := h.configService.Update(c.Request.Context(), tenantID, patch)
	if err != nil {
		response.Error(c, statusFor(err), "failed to update config", err)
		return
	}

	response.Success(c, http.StatusOK, "config updated", cfg)
}

// ListTiers returns the tenant's tier catalog.
func (h *LoyaltyHandler) ListTiers(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	tiers, err := h.tierService.List(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, statusFor(err), "failed to list tiers", err)
		return
	}

	response.Success(c, http.StatusOK, "tiers retrieved", gin.H{
		"tiers": tiers,
		"count": len(tiers),
	})
}

// UpsertTier creates or replaces one tier after catalog validation.
func (h *LoyaltyHandler) UpsertTier(c *gin.Context) {
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}

	var tier domain.Tier
	if err := c.ShouldBindJSON(&tier); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	tier.TenantID = tenantID

	if err := h.tierService.Upsert(c.Request.Context(), tier); err != nil {
		response.Error(c, statusFor(err), "failed to upsert tier", err)
		return
	}

	response.Success(c, http.StatusOK, "tier saved", tier)
}
