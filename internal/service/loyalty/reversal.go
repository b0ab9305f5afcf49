package loyalty

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReverseBillLoyalty compensates a voided or refunded bill. Earned points are
// clawed back only up to what is still unspent; redeemed points are restored
// as fresh positive entries. The original entries stay in the ledger, the
// reversal appends alongside them. Calling it twice is a no-op.
func (c *Coordinator) ReverseBillLoyalty(ctx context.Context, tenantID, billID int64, now time.Time) (*domain.ReversalSummary, error) {
	if now.IsZero() {
		now = time.Now()
	}

	summary := &domain.ReversalSummary{BillID: billID}

	customers, err := c.store.BillCustomers(ctx, tenantID, billID)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return summary, nil
	}

	tiers, err := c.tiers.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// The bill may have touched more than one customer (referral bonuses), so
	// each gets its own serialized transaction.
	for _, customerID := range customers {
		err := c.store.InCustomerTx(ctx, tenantID, customerID, func(ctx context.Context, tx Tx) error {
			return c.reverseForCustomer(ctx, tx, tiers, tenantID, customerID, billID, now, summary)
		})
		if err != nil {
			return nil, err
		}
	}

	c.logger.Info("bill loyalty reversed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("bill_id", billID),
		zap.Bool("already_reversed", summary.AlreadyReversed),
		zap.Int64("points_restored", summary.PointsRestored),
		zap.Int64("points_clawed_back", summary.PointsClawedBack),
	)

	return summary, nil
}

func (c *Coordinator) reverseForCustomer(ctx context.Context, tx Tx, tiers []domain.Tier, tenantID, customerID, billID int64, now time.Time, summary *domain.ReversalSummary) error {
	entries, err := tx.EntriesForBill(ctx, tenantID, billID)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if domain.IsReversalReason(e.Reason) {
			summary.AlreadyReversed = true
			return nil
		}
	}

	st, err := tx.State(ctx, tenantID, customerID)
	if err != nil {
		return err
	}

	reversed := 0
	for _, e := range entries {
		if e.CustomerID != customerID {
			continue
		}
		switch {
		case e.Kind == domain.EntryRedeem:
			// Give the spent points back. They return without an expiry since
			// the consumed entries' schedules are gone.
			restored := -e.PointsDelta
			adjust := &domain.LedgerEntry{
				TenantID:       tenantID,
				CustomerID:     customerID,
				Kind:           domain.EntryAdjust,
				PointsDelta:    restored,
				CurrencyAmount: e.CurrencyAmount,
				BillID:         sql.NullInt64{Int64: billID, Valid: true},
				Reason:         domain.ReasonReversal(billID),
				CreatedAt:      now,
			}
			if err := tx.Append(ctx, adjust); err != nil {
				return err
			}
			summary.PointsRestored += restored
			reversed++
		case (e.Kind == domain.EntryEarn || e.Kind == domain.EntryReferral) && e.PointsDelta > 0:
			// Claw back what is still unspent. Points already redeemed stay
			// redeemed; the customer keeps the benefit they consumed.
			clawback := e.RemainingPoints
			if e.Active && clawback > 0 {
				if err := tx.Consume(ctx, e.EntryID, clawback); err != nil {
					return err
				}
			} else {
				clawback = 0
			}
			adjust := &domain.LedgerEntry{
				TenantID:       tenantID,
				CustomerID:     customerID,
				Kind:           domain.EntryAdjust,
				PointsDelta:    -clawback,
				CurrencyAmount: e.CurrencyAmount,
				BillID:         sql.NullInt64{Int64: billID, Valid: true},
				Reason:         domain.ReasonReversal(billID),
				CreatedAt:      now,
			}
			if err := tx.Append(ctx, adjust); err != nil {
				return err
			}
			summary.PointsClawedBack += clawback
			reversed++

			if e.Kind == domain.EntryEarn && e.CurrencyAmount.Valid {
				st.TotalSpent = st.TotalSpent.Sub(e.CurrencyAmount.Decimal)
				if st.TotalSpent.IsNegative() {
					st.TotalSpent = decimal.Zero
				}
				if st.TotalPurchases > 0 {
					st.TotalPurchases--
				}
			}
		case e.Kind == domain.EntryBonus && e.Reason == domain.ReasonBillRecorded:
			// The bill earned nothing, but its purchase was counted. Undo the
			// aggregates and leave a reversal entry so a second call no-ops.
			adjust := &domain.LedgerEntry{
				TenantID:       tenantID,
				CustomerID:     customerID,
				Kind:           domain.EntryAdjust,
				PointsDelta:    0,
				CurrencyAmount: e.CurrencyAmount,
				BillID:         sql.NullInt64{Int64: billID, Valid: true},
				Reason:         domain.ReasonReversal(billID),
				CreatedAt:      now,
			}
			if err := tx.Append(ctx, adjust); err != nil {
				return err
			}
			reversed++

			if e.CurrencyAmount.Valid {
				st.TotalSpent = st.TotalSpent.Sub(e.CurrencyAmount.Decimal)
				if st.TotalSpent.IsNegative() {
					st.TotalSpent = decimal.Zero
				}
				if st.TotalPurchases > 0 {
					st.TotalPurchases--
				}
			}
		}
	}

	if reversed == 0 {
		return nil
	}
	summary.EntriesReversed += reversed
	summary.CustomersTouched = append(summary.CustomersTouched, customerID)

	available, lifetime, err := tx.Sums(ctx, tenantID, customerID, now)
	if err != nil {
		return err
	}
	st.AvailablePoints = available
	st.LifetimePoints = lifetime

	if err := c.applyTier(ctx, tx, tiers, st, now, sql.NullInt64{Int64: billID, Valid: true}); err != nil {
		return err
	}

	return tx.SaveState(ctx, st)
}
