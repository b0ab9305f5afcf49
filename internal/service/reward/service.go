package reward

import (
	"context"
	"fmt"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// RewardRepository and OfferRepository are the persistence slices the catalog
// service needs.
type RewardRepository interface {
	ListByTenant(ctx context.Context, tenantID int64, activeOnly bool) ([]domain.Reward, error)
	FindByID(ctx context.Context, tenantID, rewardID int64) (*domain.Reward, error)
	Upsert(ctx context.Context, rw *domain.Reward) error
	Deactivate(ctx context.Context, tenantID, rewardID int64) error
	ListRedemptions(ctx context.Context, tenantID, customerID int64, limit int) ([]domain.RedemptionRecord, error)
}

type OfferRepository interface {
	ListFor(ctx context.Context, tenantID, customerID int64, now time.Time) ([]domain.PersonalizedOffer, error)
	Create(ctx context.Context, o *domain.PersonalizedOffer) error
	MarkUsed(ctx context.Context, tenantID, offerID, customerID, billID int64) error
}

// Service manages the reward catalog and personalized offers. Redemption
// itself belongs to the loyalty coordinator; this service only curates what
// can be redeemed.
type Service struct {
	rewards RewardRepository
	offers  OfferRepository
	logger  *zap.Logger
}

func NewService(rewards RewardRepository, offers OfferRepository, logger *zap.Logger) *Service {
	return &Service{rewards: rewards, offers: offers, logger: logger}
}

// ListRewards returns the tenant's catalog; activeOnly filters to what a
// customer can currently see.
func (s *Service) ListRewards(ctx context.Context, tenantID int64, activeOnly bool) ([]domain.Reward, error) {
	return s.rewards.ListByTenant(ctx, tenantID, activeOnly)
}

func (s *Service) GetReward(ctx context.Context, tenantID, rewardID int64) (*domain.Reward, error) {
	return s.rewards.FindByID(ctx, tenantID, rewardID)
}

// SaveReward validates and persists a catalog item. A zero RewardID creates,
// anything else updates in place.
func (s *Service) SaveReward(ctx context.Context, rw *domain.Reward) error {
	if err := validateReward(rw); err != nil {
		return err
	}

	if err := s.rewards.Upsert(ctx, rw); err != nil {
		return err
	}

	s.logger.Info("reward saved",
		zap.Int64("tenant_id", rw.TenantID),
		zap.Int64("reward_id", rw.RewardID),
		zap.String("type", string(rw.Type)),
		zap.Int64("points_cost", rw.PointsCost),
	)

	return nil
}

// DeactivateReward retires a catalog item. Past redemptions keep referencing
// it; only new redemptions stop.
func (s *Service) DeactivateReward(ctx context.Context, tenantID, rewardID int64) error {
	if err := s.rewards.Deactivate(ctx, tenantID, rewardID); err != nil {
		return err
	}

	s.logger.Info("reward deactivated",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("reward_id", rewardID),
	)

	return nil
}

// ListRedemptions returns the customer's redemption trail, newest first.
func (s *Service) ListRedemptions(ctx context.Context, tenantID, customerID int64, limit int) ([]domain.RedemptionRecord, error) {
	return s.rewards.ListRedemptions(ctx, tenantID, customerID, limit)
}

// ListOffersFor returns the offers the customer can still use right now,
// targeted ones first.
func (s *Service) ListOffersFor(ctx context.Context, tenantID, customerID int64) ([]domain.PersonalizedOffer, error) {
	return s.offers.ListFor(ctx, tenantID, customerID, time.Now())
}

// CreateOffer publishes a targeted or broadcast offer.
func (s *Service) CreateOffer(ctx context.Context, o *domain.PersonalizedOffer) error {
	if err := validateOffer(o); err != nil {
		return err
	}

	o.IsActive = true
	if err := s.offers.Create(ctx, o); err != nil {
		return err
	}

	s.logger.Info("offer created",
		zap.Int64("tenant_id", o.TenantID),
		zap.Int64("offer_id", o.OfferID),
		zap.Bool("broadcast", !o.CustomerID.Valid),
	)

	return nil
}

// MarkOfferUsed consumes an offer against a bill. Returns
// xerrors.ErrOfferNotAvailable when the offer is inactive, out of window for
// this customer, or already used.
func (s *Service) MarkOfferUsed(ctx context.Context, tenantID, offerID, customerID, billID int64) error {
	if err := s.offers.MarkUsed(ctx, tenantID, offerID, customerID, billID); err != nil {
		return err
	}

	s.logger.Info("offer used",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("offer_id", offerID),
		zap.Int64("customer_id", customerID),
		zap.Int64("bill_id", billID),
	)

	return nil
}

func validateReward(rw *domain.Reward) error {
	if rw.Name == "" {
		return fmt.Errorf("%w: name is required", xerrors.ErrInvalidInput)
	}
	if !rw.Type.Valid() {
		return fmt.Errorf("%w: unknown reward type %q", xerrors.ErrInvalidInput, rw.Type)
	}
	if rw.PointsCost <= 0 {
		return fmt.Errorf("%w: points_cost must be > 0", xerrors.ErrInvalidInput)
	}

	switch rw.Type {
	case domain.TypeDiscountPercent:
		if rw.Value.IsNegative() || rw.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percent value must be within [0,100]", xerrors.ErrInvalidInput)
		}
	case domain.TypeDiscountAmount:
		if !rw.Value.IsPositive() {
			return fmt.Errorf("%w: amount value must be > 0", xerrors.ErrInvalidInput)
		}
	case domain.TypeFreeItem:
		if !rw.ItemName.Valid || rw.ItemName.String == "" {
			return fmt.Errorf("%w: item_name is required for free_item rewards", xerrors.ErrInvalidInput)
		}
	}

	if rw.ValidFrom.Valid && rw.ValidUntil.Valid && rw.ValidUntil.Time.Before(rw.ValidFrom.Time) {
		return fmt.Errorf("%w: valid_until precedes valid_from", xerrors.ErrInvalidInput)
	}

	return nil
}

func validateOffer(o *domain.PersonalizedOffer) error {
	if o.Title == "" {
		return fmt.Errorf("%w: title is required", xerrors.ErrInvalidInput)
	}
	if !o.Type.Valid() {
		return fmt.Errorf("%w: unknown offer type %q", xerrors.ErrInvalidInput, o.Type)
	}
	if o.Discount.IsNegative() {
		return fmt.Errorf("%w: discount must be >= 0", xerrors.ErrInvalidInput)
	}
	if o.MinPurchase.IsNegative() {
		return fmt.Errorf("%w: min_purchase must be >= 0", xerrors.ErrInvalidInput)
	}
	if o.ValidUntil.Before(o.ValidFrom) {
		return fmt.Errorf("%w: valid_until precedes valid_from", xerrors.ErrInvalidInput)
	}
	return nil
}
