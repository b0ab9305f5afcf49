package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type RewardRepository struct {
	db *pgxpool.Pool
}

func NewRewardRepository(db *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{db: db}
}

const rewardColumns = `
	reward_id, tenant_id, name, reward_type, points_cost, value, item_name, tags,
	active, valid_from, valid_until, created_at, updated_at`

func scanReward(row pgx.Row) (*reward.Reward, error) {
	var rw reward.Reward
	err := row.Scan(
		&rw.RewardID, &rw.TenantID, &rw.Name, &rw.Type, &rw.PointsCost, &rw.Value, &rw.ItemName,
		pq.Array(&rw.Tags), &rw.Active, &rw.ValidFrom, &rw.ValidUntil, &rw.CreatedAt, &rw.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reward: %w", MapError(err))
	}
	return &rw, nil
}

// ListByTenant returns the tenant's reward catalog, cheapest first.
func (r *RewardRepository) ListByTenant(ctx context.Context, tenantID int64, activeOnly bool) ([]reward.Reward, error) {
	query := `SELECT` + rewardColumns + ` FROM loyalty_rewards WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY points_cost ASC, reward_id ASC`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", MapError(err))
	}
	defer rows.Close()

	rewards := []reward.Reward{}
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *rw)
	}

	return rewards, rows.Err()
}

// FindByID returns one reward scoped to the tenant.
func (r *RewardRepository) FindByID(ctx context.Context, tenantID, rewardID int64) (*reward.Reward, error) {
	query := `SELECT` + rewardColumns + ` FROM loyalty_rewards WHERE tenant_id = $1 AND reward_id = $2`
	return scanReward(r.db.QueryRow(ctx, query, tenantID, rewardID))
}

// FindByIDWithTx is FindByID inside the coordinator's transaction.
func (r *RewardRepository) FindByIDWithTx(ctx context.Context, tx pgx.Tx, tenantID, rewardID int64) (*reward.Reward, error) {
	query := `SELECT` + rewardColumns + ` FROM loyalty_rewards WHERE tenant_id = $1 AND reward_id = $2`
	return scanReward(tx.QueryRow(ctx, query, tenantID, rewardID))
}

// Upsert inserts a new reward (RewardID zero) or updates an existing one.
func (r *RewardRepository) Upsert(ctx context.Context, rw *reward.Reward) error {
	rw.UpdatedAt = time.Now()

	if rw.RewardID == 0 {
		query := `
			INSERT INTO loyalty_rewards (
				tenant_id, name, reward_type, points_cost, value, item_name, tags,
				active, valid_from, valid_until, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), $11)
			RETURNING reward_id, created_at
		`
		if err := r.db.QueryRow(ctx, query,
			rw.TenantID, rw.Name, rw.Type, rw.PointsCost, rw.Value, rw.ItemName, pq.Array(rw.Tags),
			rw.Active, rw.ValidFrom, rw.ValidUntil, rw.UpdatedAt,
		).Scan(&rw.RewardID, &rw.CreatedAt); err != nil {
			return fmt.Errorf("failed to create reward: %w", MapError(err))
		}
		return nil
	}

	query := `
		UPDATE loyalty_rewards
		SET name = $3, reward_type = $4, points_cost = $5, value = $6, item_name = $7,
		    tags = $8, active = $9, valid_from = $10, valid_until = $11, updated_at = $12
		WHERE tenant_id = $1 AND reward_id = $2
	`
	tag, err := r.db.Exec(ctx, query,
		rw.TenantID, rw.RewardID, rw.Name, rw.Type, rw.PointsCost, rw.Value, rw.ItemName,
		pq.Array(rw.Tags), rw.Active, rw.ValidFrom, rw.ValidUntil, rw.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// Deactivate retires a reward without deleting its redemption history.
func (r *RewardRepository) Deactivate(ctx context.Context, tenantID, rewardID int64) error {
	query := `UPDATE loyalty_rewards SET active = false, updated_at = now() WHERE tenant_id = $1 AND reward_id = $2`

	tag, err := r.db.Exec(ctx, query, tenantID, rewardID)
	if err != nil {
		return fmt.Errorf("failed to deactivate reward: %w", MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// CreateRedemptionWithTx writes the immutable redemption trail row inside the
// coordinator's transaction.
func (r *RewardRepository) CreateRedemptionWithTx(ctx context.Context, tx pgx.Tx, rec *reward.RedemptionRecord) error {
	query := `
		INSERT INTO reward_redemptions (
			reference, tenant_id, reward_id, customer_id, bill_id, points_used, currency_discount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := tx.QueryRow(ctx, query,
		rec.Reference, rec.TenantID, rec.RewardID, rec.CustomerID, rec.BillID,
		rec.PointsUsed, rec.CurrencyDiscount, rec.CreatedAt,
	).Scan(&rec.ID); err != nil {
		return fmt.Errorf("failed to create redemption record: %w", MapError(err))
	}

	return nil
}

// ListRedemptions returns a customer's redemption history, newest first.
func (r *RewardRepository) ListRedemptions(ctx context.Context, tenantID, customerID int64, limit int) ([]reward.RedemptionRecord, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, reference, tenant_id, reward_id, customer_id, bill_id, points_used, currency_discount, created_at
		FROM reward_redemptions
		WHERE tenant_id = $1 AND customer_id = $2
		ORDER BY id DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, tenantID, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", MapError(err))
	}
	defer rows.Close()

	records := []reward.RedemptionRecord{}
	for rows.Next() {
		var rec reward.RedemptionRecord
		if err := rows.Scan(
			&rec.ID, &rec.Reference, &rec.TenantID, &rec.RewardID, &rec.CustomerID, &rec.BillID,
			&rec.PointsUsed, &rec.CurrencyDiscount, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
