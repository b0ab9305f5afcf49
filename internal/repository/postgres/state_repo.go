package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CustomerStateRepository struct {
	db *pgxpool.Pool
}

func NewCustomerStateRepository(db *pgxpool.Pool) *CustomerStateRepository {
	return &CustomerStateRepository{db: db}
}

const stateColumns = `
	tenant_id, customer_id, available_points, lifetime_points, total_spent, total_purchases,
	tier_level, tier_points_threshold, join_date, last_activity, birthday, anniversary_date,
	referral_code, referred_by_customer_id, active`

func scanState(row pgx.Row) (*loyalty.CustomerLoyaltyState, error) {
	var st loyalty.CustomerLoyaltyState
	err := row.Scan(
		&st.TenantID, &st.CustomerID, &st.AvailablePoints, &st.LifetimePoints, &st.TotalSpent, &st.TotalPurchases,
		&st.TierLevel, &st.TierPointsThreshold, &st.JoinDate, &st.LastActivity, &st.Birthday, &st.AnniversaryDate,
		&st.ReferralCode, &st.ReferredBy, &st.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrCustomerNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer state: %w", MapError(err))
	}
	return &st, nil
}

// Find returns the customer's state, or ErrCustomerNotEnrolled.
func (r *CustomerStateRepository) Find(ctx context.Context, tenantID, customerID int64) (*loyalty.CustomerLoyaltyState, error) {
	query := `SELECT` + stateColumns + ` FROM customer_loyalty_state WHERE tenant_id = $1 AND customer_id = $2`
	return scanState(r.db.QueryRow(ctx, query, tenantID, customerID))
}

// FindForUpdateWithTx loads the state row under a row lock. Every bill-level
// mutation path goes through this to serialize per-customer writes.
func (r *CustomerStateRepository) FindForUpdateWithTx(ctx context.Context, tx pgx.Tx, tenantID, customerID int64) (*loyalty.CustomerLoyaltyState, error) {
	query := `SELECT` + stateColumns + ` FROM customer_loyalty_state WHERE tenant_id = $1 AND customer_id = $2 FOR UPDATE`
	return scanState(tx.QueryRow(ctx, query, tenantID, customerID))
}

// FindByReferralCodeWithTx resolves a presented referral code to its owner.
func (r *CustomerStateRepository) FindByReferralCodeWithTx(ctx context.Context, tx pgx.Tx, tenantID int64, code string) (*loyalty.CustomerLoyaltyState, error) {
	query := `SELECT` + stateColumns + ` FROM customer_loyalty_state WHERE tenant_id = $1 AND referral_code = $2`
	st, err := scanState(tx.QueryRow(ctx, query, tenantID, code))
	if errors.Is(err, xerrors.ErrCustomerNotEnrolled) {
		return nil, xerrors.ErrNotFound
	}
	return st, err
}

// ReferralCodeExistsWithTx backs the bounded collision-retry loop during
// enrollment.
func (r *CustomerStateRepository) ReferralCodeExistsWithTx(ctx context.Context, tx pgx.Tx, tenantID int64, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM customer_loyalty_state WHERE tenant_id = $1 AND referral_code = $2)`

	var exists bool
	if err := tx.QueryRow(ctx, query, tenantID, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check referral code: %w", MapError(err))
	}

	return exists, nil
}

// CreateWithTx inserts the enrollment row.
func (r *CustomerStateRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, st *loyalty.CustomerLoyaltyState) error {
	query := `
		INSERT INTO customer_loyalty_state (
			tenant_id, customer_id, available_points, lifetime_points, total_spent, total_purchases,
			tier_level, tier_points_threshold, join_date, last_activity, birthday, anniversary_date,
			referral_code, referred_by_customer_id, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	if _, err := tx.Exec(ctx, query,
		st.TenantID, st.CustomerID, st.AvailablePoints, st.LifetimePoints, st.TotalSpent, st.TotalPurchases,
		st.TierLevel, st.TierPointsThreshold, st.JoinDate, st.LastActivity, st.Birthday, st.AnniversaryDate,
		st.ReferralCode, st.ReferredBy, st.Active,
	); err != nil {
		return fmt.Errorf("failed to create customer state: %w", MapError(err))
	}

	return nil
}

// SaveWithTx writes back the recomputed aggregates and tier assignment.
func (r *CustomerStateRepository) SaveWithTx(ctx context.Context, tx pgx.Tx, st *loyalty.CustomerLoyaltyState) error {
	query := `
		UPDATE customer_loyalty_state
		SET available_points = $3, lifetime_points = $4, total_spent = $5, total_purchases = $6,
		    tier_level = $7, tier_points_threshold = $8, last_activity = $9,
		    birthday = $10, anniversary_date = $11, referred_by_customer_id = $12, active = $13
		WHERE tenant_id = $1 AND customer_id = $2
	`

	tag, err := tx.Exec(ctx, query,
		st.TenantID, st.CustomerID, st.AvailablePoints, st.LifetimePoints, st.TotalSpent, st.TotalPurchases,
		st.TierLevel, st.TierPointsThreshold, st.LastActivity,
		st.Birthday, st.AnniversaryDate, st.ReferredBy, st.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer state: %w", MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrCustomerNotEnrolled
	}

	return nil
}
