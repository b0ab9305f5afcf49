package postgres

import (
	"context"
	"fmt"

	"github.com/aykha18/tajir-loyalty/internal/domain/loyalty"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TierRepository struct {
	db *pgxpool.Pool
}

func NewTierRepository(db *pgxpool.Pool) *TierRepository {
	return &TierRepository{db: db}
}

const tierColumns = `
	tenant_id, tier_level, points_threshold, discount_percent, bonus_points_multiplier,
	free_delivery, priority_service, exclusive_offers, color_code, active`

// ListByTenant returns the tenant's tiers ascending by threshold. With
// activeOnly set, inactive tiers are filtered out.
func (r *TierRepository) ListByTenant(ctx context.Context, tenantID int64, activeOnly bool) ([]loyalty.Tier, error) {
	query := `SELECT` + tierColumns + ` FROM loyalty_tiers WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY points_threshold ASC`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", MapError(err))
	}
	defer rows.Close()

	tiers := []loyalty.Tier{}
	for rows.Next() {
		var t loyalty.Tier
		if err := rows.Scan(
			&t.TenantID, &t.Level, &t.PointsThreshold, &t.DiscountPercent, &t.BonusPointsMultiplier,
			&t.FreeDelivery, &t.PriorityService, &t.ExclusiveOffers, &t.ColorCode, &t.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}

	return tiers, rows.Err()
}

// Upsert writes one tier row keyed by (tenant_id, tier_level).
func (r *TierRepository) Upsert(ctx context.Context, t *loyalty.Tier) error {
	query := `
		INSERT INTO loyalty_tiers (
			tenant_id, tier_level, points_threshold, discount_percent, bonus_points_multiplier,
			free_delivery, priority_service, exclusive_offers, color_code, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, tier_level) DO UPDATE SET
			points_threshold = EXCLUDED.points_threshold,
			discount_percent = EXCLUDED.discount_percent,
			bonus_points_multiplier = EXCLUDED.bonus_points_multiplier,
			free_delivery = EXCLUDED.free_delivery,
			priority_service = EXCLUDED.priority_service,
			exclusive_offers = EXCLUDED.exclusive_offers,
			color_code = EXCLUDED.color_code,
			active = EXCLUDED.active
	`

	if _, err := r.db.Exec(ctx, query,
		t.TenantID, t.Level, t.PointsThreshold, t.DiscountPercent, t.BonusPointsMultiplier,
		t.FreeDelivery, t.PriorityService, t.ExclusiveOffers, t.ColorCode, t.Active,
	); err != nil {
		return fmt.Errorf("failed to upsert tier: %w", MapError(err))
	}

	return nil
}
