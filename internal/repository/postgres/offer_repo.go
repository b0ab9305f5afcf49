package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OfferRepository struct {
	db *pgxpool.Pool
}

func NewOfferRepository(db *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `
	offer_id, tenant_id, customer_id, title, offer_type, discount, min_purchase,
	valid_from, valid_until, is_active, is_used, used_by_customer_id, used_bill_id, created_at`

// ListFor returns active, in-window offers targeted at the customer or
// broadcast to the tenant, excluding offers this customer already used.
// Targeted offers sort ahead of broadcast ones.
func (r *OfferRepository) ListFor(ctx context.Context, tenantID, customerID int64, now time.Time) ([]reward.PersonalizedOffer, error) {
	query := `
		SELECT` + offerColumns + `
		FROM personalized_offers
		WHERE tenant_id = $1
		  AND (customer_id = $2 OR customer_id IS NULL)
		  AND is_active
		  AND valid_from <= $3 AND valid_until >= $3
		  AND NOT (is_used AND used_by_customer_id = $2)
		ORDER BY customer_id NULLS LAST, valid_until ASC, offer_id ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, customerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", MapError(err))
	}
	defer rows.Close()

	offers := []reward.PersonalizedOffer{}
	for rows.Next() {
		var o reward.PersonalizedOffer
		if err := rows.Scan(
			&o.OfferID, &o.TenantID, &o.CustomerID, &o.Title, &o.Type, &o.Discount, &o.MinPurchase,
			&o.ValidFrom, &o.ValidUntil, &o.IsActive, &o.IsUsed, &o.UsedBy, &o.UsedBillID, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, o)
	}

	return offers, rows.Err()
}

// Create inserts a curated offer (targeted or broadcast).
func (r *OfferRepository) Create(ctx context.Context, o *reward.PersonalizedOffer) error {
	query := `
		INSERT INTO personalized_offers (
			tenant_id, customer_id, title, offer_type, discount, min_purchase,
			valid_from, valid_until, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING offer_id, created_at
	`

	if err := r.db.QueryRow(ctx, query,
		o.TenantID, o.CustomerID, o.Title, o.Type, o.Discount, o.MinPurchase,
		o.ValidFrom, o.ValidUntil, o.IsActive,
	).Scan(&o.OfferID, &o.CreatedAt); err != nil {
		return fmt.Errorf("failed to create offer: %w", MapError(err))
	}

	return nil
}

// MarkUsed stamps an offer as consumed by one customer on one bill. The
// conditional update doubles as the not-already-used guard.
func (r *OfferRepository) MarkUsed(ctx context.Context, tenantID, offerID, customerID, billID int64) error {
	query := `
		UPDATE personalized_offers
		SET is_used = true, used_by_customer_id = $3, used_bill_id = $4
		WHERE tenant_id = $1 AND offer_id = $2
		  AND is_active
		  AND (customer_id = $3 OR customer_id IS NULL)
		  AND NOT (is_used AND used_by_customer_id = $3)
	`

	tag, err := r.db.Exec(ctx, query, tenantID, offerID, customerID, billID)
	if err != nil {
		return fmt.Errorf("failed to mark offer used: %w", MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrOfferNotAvailable
	}

	return nil
}
