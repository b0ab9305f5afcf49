package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aykha18/tajir-loyalty/internal/domain/loyalty"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository is the append-only points ledger. Append is the only way
// points move; RemainingPoints/Active bookkeeping on positive entries is the
// sole post-insert mutation, done through Consume during FIFO allocation.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `
	entry_id, tenant_id, customer_id, kind, points_delta, remaining_points,
	currency_amount, bill_id, reward_id, reason, created_at, expires_at, active`

func scanEntry(row pgx.Row) (*loyalty.LedgerEntry, error) {
	var e loyalty.LedgerEntry
	err := row.Scan(
		&e.EntryID, &e.TenantID, &e.CustomerID, &e.Kind, &e.PointsDelta, &e.RemainingPoints,
		&e.CurrencyAmount, &e.BillID, &e.RewardID, &e.Reason, &e.CreatedAt, &e.ExpiresAt, &e.Active,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// AppendWithTx inserts one entry; the store assigns entry_id and created_at.
// Positive entries start with their full delta remaining.
func (r *LedgerRepository) AppendWithTx(ctx context.Context, tx pgx.Tx, e *loyalty.LedgerEntry) error {
	remaining := int64(0)
	if e.PointsDelta > 0 {
		remaining = e.PointsDelta
	}
	e.RemainingPoints = remaining
	e.Active = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO loyalty_ledger (
			tenant_id, customer_id, kind, points_delta, remaining_points,
			currency_amount, bill_id, reward_id, reason, created_at, expires_at, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true)
		RETURNING entry_id
	`

	if err := tx.QueryRow(ctx, query,
		e.TenantID, e.CustomerID, e.Kind, e.PointsDelta, remaining,
		e.CurrencyAmount, e.BillID, e.RewardID, e.Reason, e.CreatedAt, e.ExpiresAt,
	).Scan(&e.EntryID); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", MapError(err))
	}

	return nil
}

// ActivePositiveEntriesWithTx returns the customer's spendable entries in
// FIFO order: oldest-expiring first, never-expiring last, entry_id breaking
// ties within the same expiry.
func (r *LedgerRepository) ActivePositiveEntriesWithTx(ctx context.Context, tx pgx.Tx, tenantID, customerID int64, asOf time.Time) ([]loyalty.LedgerEntry, error) {
	query := `
		SELECT` + ledgerColumns + `
		FROM loyalty_ledger
		WHERE tenant_id = $1 AND customer_id = $2
		  AND points_delta > 0 AND active
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY expires_at ASC NULLS LAST, entry_id ASC
	`

	rows, err := tx.Query(ctx, query, tenantID, customerID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query active entries: %w", MapError(err))
	}
	defer rows.Close()

	entries := []loyalty.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

// ConsumeWithTx deducts points from a positive entry's remaining balance and
// flips it inactive once fully consumed.
func (r *LedgerRepository) ConsumeWithTx(ctx context.Context, tx pgx.Tx, entryID, points int64) error {
	query := `
		UPDATE loyalty_ledger
		SET remaining_points = remaining_points - $2,
		    active = (remaining_points - $2) > 0
		WHERE entry_id = $1 AND remaining_points >= $2
	`

	tag, err := tx.Exec(ctx, query, entryID, points)
	if err != nil {
		return fmt.Errorf("failed to consume entry %d: %w", entryID, MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %d has fewer than %d points remaining", entryID, points)
	}

	return nil
}

// SumsWithTx re-derives the customer's aggregates from the ledger as of the
// given instant. Available counts remaining points on live positive entries;
// lifetime counts positive earn/bonus/referral deltas net of bill reversals.
func (r *LedgerRepository) SumsWithTx(ctx context.Context, tx pgx.Tx, tenantID, customerID int64, asOf time.Time) (available, lifetime int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(remaining_points) FILTER (
				WHERE points_delta > 0 AND active AND (expires_at IS NULL OR expires_at > $3)
			), 0),
			COALESCE(SUM(CASE
				WHEN kind IN ('earn', 'bonus', 'referral') AND points_delta > 0 THEN points_delta
				WHEN kind = 'adjust' AND points_delta < 0 AND reason LIKE 'reversal:%' THEN points_delta
				ELSE 0
			END), 0)
		FROM loyalty_ledger
		WHERE tenant_id = $1 AND customer_id = $2
	`

	if err := tx.QueryRow(ctx, query, tenantID, customerID, asOf).Scan(&available, &lifetime); err != nil {
		return 0, 0, fmt.Errorf("failed to sum ledger: %w", MapError(err))
	}
	if lifetime < 0 {
		lifetime = 0
	}

	return available, lifetime, nil
}

// EntriesForBillWithTx returns every entry the given bill produced, for
// idempotency replay and reversal.
func (r *LedgerRepository) EntriesForBillWithTx(ctx context.Context, tx pgx.Tx, tenantID, billID int64) ([]loyalty.LedgerEntry, error) {
	query := `
		SELECT` + ledgerColumns + `
		FROM loyalty_ledger
		WHERE tenant_id = $1 AND bill_id = $2
		ORDER BY entry_id ASC
	`

	rows, err := tx.Query(ctx, query, tenantID, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill entries: %w", MapError(err))
	}
	defer rows.Close()

	entries := []loyalty.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

// HasBonusInYearWithTx guards once-per-calendar-year bonuses (birthday,
// anniversary) with a uniqueness query inside the enclosing transaction.
func (r *LedgerRepository) HasBonusInYearWithTx(ctx context.Context, tx pgx.Tx, tenantID, customerID int64, reason string, year int) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM loyalty_ledger
			WHERE tenant_id = $1 AND customer_id = $2 AND kind = 'bonus'
			  AND reason = $3 AND EXTRACT(YEAR FROM created_at) = $4
		)
	`

	var exists bool
	if err := tx.QueryRow(ctx, query, tenantID, customerID, reason, year).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check bonus guard: %w", MapError(err))
	}

	return exists, nil
}

// HasReferralForWithTx reports whether the customer already received their
// one-time referral welcome entry.
func (r *LedgerRepository) HasReferralForWithTx(ctx context.Context, tx pgx.Tx, tenantID, customerID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM loyalty_ledger
			WHERE tenant_id = $1 AND customer_id = $2 AND kind = 'referral' AND reason = $3
		)
	`

	var exists bool
	if err := tx.QueryRow(ctx, query, tenantID, customerID, loyalty.ReasonReferralWelcome).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check referral guard: %w", MapError(err))
	}

	return exists, nil
}

// ListPage returns a page of the customer's history, newest first.
func (r *LedgerRepository) ListPage(ctx context.Context, tenantID, customerID int64, limit, offset int) ([]loyalty.LedgerEntry, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT` + ledgerColumns + `
		FROM loyalty_ledger
		WHERE tenant_id = $1 AND customer_id = $2
		ORDER BY entry_id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, tenantID, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger page: %w", MapError(err))
	}
	defer rows.Close()

	entries := []loyalty.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

// CustomersWithExpiredWithTx lists customers of the tenant holding live
// positive entries whose expiry has passed, for the sweep job.
func (r *LedgerRepository) CustomersWithExpired(ctx context.Context, tenantID int64, asOf time.Time) ([]int64, error) {
	query := `
		SELECT DISTINCT customer_id FROM loyalty_ledger
		WHERE tenant_id = $1 AND points_delta > 0 AND active
		  AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY customer_id
	`

	rows, err := r.db.Query(ctx, query, tenantID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holders: %w", MapError(err))
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ExpiredPositiveEntriesWithTx returns the customer's live positive entries
// past expiry, FIFO-ordered, for the sweep to write explicit expire entries.
func (r *LedgerRepository) ExpiredPositiveEntriesWithTx(ctx context.Context, tx pgx.Tx, tenantID, customerID int64, asOf time.Time) ([]loyalty.LedgerEntry, error) {
	query := `
		SELECT` + ledgerColumns + `
		FROM loyalty_ledger
		WHERE tenant_id = $1 AND customer_id = $2
		  AND points_delta > 0 AND active
		  AND expires_at IS NOT NULL AND expires_at <= $3
		ORDER BY expires_at ASC, entry_id ASC
	`

	rows, err := tx.Query(ctx, query, tenantID, customerID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired entries: %w", MapError(err))
	}
	defer rows.Close()

	entries := []loyalty.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

// BillCustomers lists the customers touched by a bill's ledger entries (the
// buyer, plus the referrer when a referral bonus fired).
func (r *LedgerRepository) BillCustomers(ctx context.Context, tenantID, billID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT customer_id FROM loyalty_ledger
		WHERE tenant_id = $1 AND bill_id = $2
		ORDER BY customer_id
	`

	rows, err := r.db.Query(ctx, query, tenantID, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to find bill customers: %w", MapError(err))
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
