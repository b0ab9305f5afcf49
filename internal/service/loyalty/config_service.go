package loyalty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConfigRepository is the persistence slice ConfigService needs.
type ConfigRepository interface {
	FindByTenant(ctx context.Context, tenantID int64) (*domain.LoyaltyConfig, error)
	Upsert(ctx context.Context, cfg *domain.LoyaltyConfig) error
}

// ConfigService serves per-tenant program configuration. Reads go through a
// per-tenant redis cache; writes invalidate it. A tenant that never saved a
// config gets the defaults without a row being persisted.
type ConfigService struct {
	repo   ConfigRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewConfigService(repo ConfigRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *ConfigService {
	return &ConfigService{repo: repo, rdb: rdb, ttl: ttl, logger: logger}
}

func configCacheKey(tenantID int64) string {
	return fmt.Sprintf("loyalty:config:%d", tenantID)
}

// Get returns the tenant's config, falling back to defaults when absent.
func (s *ConfigService) Get(ctx context.Context, tenantID int64) (domain.LoyaltyConfig, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, configCacheKey(tenantID)).Bytes()
		if err == nil {
			var cfg domain.LoyaltyConfig
			if err := json.Unmarshal(raw, &cfg); err == nil {
				return cfg, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("config cache read failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
		}
	}

	cfg, err := s.repo.FindByTenant(ctx, tenantID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return domain.DefaultConfig(tenantID), nil
	}
	if err != nil {
		return domain.LoyaltyConfig{}, err
	}

	s.cache(ctx, cfg)
	return *cfg, nil
}

// Update applies a partial patch after validation and persists the result.
func (s *ConfigService) Update(ctx context.Context, tenantID int64, patch domain.ConfigPatch) (domain.LoyaltyConfig, error) {
	if err := ValidatePatch(patch); err != nil {
		return domain.LoyaltyConfig{}, err
	}

	cfg, err := s.Get(ctx, tenantID)
	if err != nil {
		return domain.LoyaltyConfig{}, err
	}

	ApplyPatch(&cfg, patch)

	if err := s.repo.Upsert(ctx, &cfg); err != nil {
		return domain.LoyaltyConfig{}, err
	}

	s.invalidate(ctx, tenantID)
	s.logger.Info("loyalty config updated", zap.Int64("tenant_id", tenantID), zap.Bool("enabled", cfg.Enabled))

	return cfg, nil
}

func (s *ConfigService) cache(ctx context.Context, cfg *domain.LoyaltyConfig) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, configCacheKey(cfg.TenantID), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("config cache write failed", zap.Int64("tenant_id", cfg.TenantID), zap.Error(err))
	}
}

func (s *ConfigService) invalidate(ctx context.Context, tenantID int64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, configCacheKey(tenantID)).Err(); err != nil {
		s.logger.Warn("config cache invalidation failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}

// ValidatePatch rejects out-of-range configuration values.
func ValidatePatch(patch domain.ConfigPatch) error {
	if patch.PointsPerCurrencyUnit != nil && !patch.PointsPerCurrencyUnit.IsPositive() {
		return fmt.Errorf("%w: points_per_currency_unit must be > 0", xerrors.ErrInvalidInput)
	}
	if patch.CurrencyPerPoint != nil && patch.CurrencyPerPoint.IsNegative() {
		return fmt.Errorf("%w: currency_per_point must be >= 0", xerrors.ErrInvalidInput)
	}
	if patch.MaxRedemptionPercent != nil && (*patch.MaxRedemptionPercent < 0 || *patch.MaxRedemptionPercent > 100) {
		return fmt.Errorf("%w: max_redemption_percent must be within [0,100]", xerrors.ErrInvalidInput)
	}
	if patch.PointsExpiryDays != nil && *patch.PointsExpiryDays < 0 {
		return fmt.Errorf("%w: points_expiry_days must be >= 0", xerrors.ErrInvalidInput)
	}
	if patch.MinPointsToRedeem != nil && *patch.MinPointsToRedeem < 0 {
		return fmt.Errorf("%w: min_points_to_redeem must be >= 0", xerrors.ErrInvalidInput)
	}
	if patch.MinPurchaseAmount != nil && patch.MinPurchaseAmount.IsNegative() {
		return fmt.Errorf("%w: min_purchase_amount must be >= 0", xerrors.ErrInvalidInput)
	}
	for name, v := range map[string]*int64{
		"birthday_bonus":    patch.BirthdayBonus,
		"anniversary_bonus": patch.AnniversaryBonus,
		"referral_bonus":    patch.ReferralBonus,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s must be >= 0", xerrors.ErrInvalidInput, name)
		}
	}
	return nil
}

// ApplyPatch copies the patch's non-nil fields onto cfg.
func ApplyPatch(cfg *domain.LoyaltyConfig, patch domain.ConfigPatch) {
	if patch.Enabled != nil {
		cfg.Enabled = *patch.Enabled
	}
	if patch.ProgramName != nil {
		cfg.ProgramName = *patch.ProgramName
	}
	if patch.PointsPerCurrencyUnit != nil {
		cfg.PointsPerCurrencyUnit = *patch.PointsPerCurrencyUnit
	}
	if patch.CurrencyPerPoint != nil {
		cfg.CurrencyPerPoint = *patch.CurrencyPerPoint
	}
	if patch.MinPointsToRedeem != nil {
		cfg.MinPointsToRedeem = *patch.MinPointsToRedeem
	}
	if patch.MaxRedemptionPercent != nil {
		cfg.MaxRedemptionPercent = *patch.MaxRedemptionPercent
	}
	if patch.BirthdayBonus != nil {
		cfg.BirthdayBonus = *patch.BirthdayBonus
	}
	if patch.AnniversaryBonus != nil {
		cfg.AnniversaryBonus = *patch.AnniversaryBonus
	}
	if patch.ReferralBonus != nil {
		cfg.ReferralBonus = *patch.ReferralBonus
	}
	if patch.MinPurchaseAmount != nil {
		cfg.MinPurchaseAmount = *patch.MinPurchaseAmount
	}
	if patch.PointsExpiryDays != nil {
		cfg.PointsExpiryDays = *patch.PointsExpiryDays
	}
	if patch.EarnOnDiscountedTotal != nil {
		cfg.EarnOnDiscountedTotal = *patch.EarnOnDiscountedTotal
	}
}
