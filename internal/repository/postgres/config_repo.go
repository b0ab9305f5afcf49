package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LoyaltyConfigRepository struct {
	db *pgxpool.Pool
}

func NewLoyaltyConfigRepository(db *pgxpool.Pool) *LoyaltyConfigRepository {
	return &LoyaltyConfigRepository{db: db}
}

const configColumns = `
	tenant_id, enabled, program_name, points_per_currency_unit, currency_per_point,
	min_points_to_redeem, max_redemption_percent, birthday_bonus, anniversary_bonus,
	referral_bonus, min_purchase_amount, points_expiry_days, earn_on_discounted_total,
	updated_at`

// FindByTenant returns the tenant's config row, or ErrNotFound when the
// tenant has never saved one.
func (r *LoyaltyConfigRepository) FindByTenant(ctx context.Context, tenantID int64) (*loyalty.LoyaltyConfig, error) {
	query := `SELECT` + configColumns + ` FROM loyalty_config WHERE tenant_id = $1`

	var cfg loyalty.LoyaltyConfig
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&cfg.TenantID, &cfg.Enabled, &cfg.ProgramName, &cfg.PointsPerCurrencyUnit, &cfg.CurrencyPerPoint,
		&cfg.MinPointsToRedeem, &cfg.MaxRedemptionPercent, &cfg.BirthdayBonus, &cfg.AnniversaryBonus,
		&cfg.ReferralBonus, &cfg.MinPurchaseAmount, &cfg.PointsExpiryDays, &cfg.EarnOnDiscountedTotal,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loyalty config: %w", MapError(err))
	}

	return &cfg, nil
}

// Upsert writes the full config row for the tenant.
func (r *LoyaltyConfigRepository) Upsert(ctx context.Context, cfg *loyalty.LoyaltyConfig) error {
	query := `
		INSERT INTO loyalty_config (
			tenant_id, enabled, program_name, points_per_currency_unit, currency_per_point,
			min_points_to_redeem, max_redemption_percent, birthday_bonus, anniversary_bonus,
			referral_bonus, min_purchase_amount, points_expiry_days, earn_on_discounted_total,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			program_name = EXCLUDED.program_name,
			points_per_currency_unit = EXCLUDED.points_per_currency_unit,
			currency_per_point = EXCLUDED.currency_per_point,
			min_points_to_redeem = EXCLUDED.min_points_to_redeem,
			max_redemption_percent = EXCLUDED.max_redemption_percent,
			birthday_bonus = EXCLUDED.birthday_bonus,
			anniversary_bonus = EXCLUDED.anniversary_bonus,
			referral_bonus = EXCLUDED.referral_bonus,
			min_purchase_amount = EXCLUDED.min_purchase_amount,
			points_expiry_days = EXCLUDED.points_expiry_days,
			earn_on_discounted_total = EXCLUDED.earn_on_discounted_total,
			updated_at = EXCLUDED.updated_at
	`

	cfg.UpdatedAt = time.Now()

	if _, err := r.db.Exec(ctx, query,
		cfg.TenantID, cfg.Enabled, cfg.ProgramName, cfg.PointsPerCurrencyUnit, cfg.CurrencyPerPoint,
		cfg.MinPointsToRedeem, cfg.MaxRedemptionPercent, cfg.BirthdayBonus, cfg.AnniversaryBonus,
		cfg.ReferralBonus, cfg.MinPurchaseAmount, cfg.PointsExpiryDays, cfg.EarnOnDiscountedTotal,
		cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert loyalty config: %w", MapError(err))
	}

	return nil
}
