package loyalty

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"go.uber.org/zap"
)

// RedeemRewardStandalone redeems a catalog reward with no bill attached, for
// counter pickups and free items. Unlike the bill path, an unsatisfiable
// request here is an error, not a warning.
func (c *Coordinator) RedeemRewardStandalone(ctx context.Context, tenantID, customerID, rewardID int64) (*reward.RedemptionRecord, error) {
	now := time.Now()

	var rec *reward.RedemptionRecord
	err := c.store.InCustomerTx(ctx, tenantID, customerID, func(ctx context.Context, tx Tx) error {
		st, err := tx.State(ctx, tenantID, customerID)
		if err != nil {
			return err
		}

		rw, err := tx.Reward(ctx, tenantID, rewardID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrRewardInactive
		}
		if err != nil {
			return err
		}

		cfg, err := c.config.Get(ctx, tenantID)
		if err != nil {
			return err
		}

		entries, err := tx.ActivePositiveEntries(ctx, tenantID, customerID, now)
		if err != nil {
			return err
		}

		plan, err := PlanStandaloneRedemption(cfg, SumRemaining(entries), rw, now)
		if err != nil {
			return err
		}

		rec, err = c.executeRedemption(ctx, tx, entries, plan, tenantID, customerID, sql.NullInt64{}, now)
		if err != nil {
			return err
		}

		available, lifetime, err := tx.Sums(ctx, tenantID, customerID, now)
		if err != nil {
			return err
		}
		st.AvailablePoints = available
		st.LifetimePoints = lifetime
		st.LastActivity = now

		return tx.SaveState(ctx, st)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("standalone reward redeemed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("customer_id", customerID),
		zap.Int64("reward_id", rewardID),
		zap.String("reference", rec.Reference),
	)

	return rec, nil
}

// SweepResult reports one expiry sweep over a tenant.
type SweepResult struct {
	CustomersSwept int   `json:"customers_swept"`
	EntriesExpired int   `json:"entries_expired"`
	PointsExpired  int64 `json:"points_expired"`
}

// SweepExpired zeroes out positive entries whose expiry has passed, appending
// an expire entry per consumed entry. Safe to run repeatedly; a swept entry is
// inactive and never picked up again.
func (c *Coordinator) SweepExpired(ctx context.Context, tenantID int64, now time.Time) (*SweepResult, error) {
	if now.IsZero() {
		now = time.Now()
	}

	customers, err := c.store.CustomersWithExpired(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, customerID := range customers {
		err := c.store.InCustomerTx(ctx, tenantID, customerID, func(ctx context.Context, tx Tx) error {
			return c.sweepCustomer(ctx, tx, tenantID, customerID, now, result)
		})
		if err != nil {
			return nil, err
		}
		result.CustomersSwept++
	}

	c.logger.Info("expired points swept",
		zap.Int64("tenant_id", tenantID),
		zap.Int("customers_swept", result.CustomersSwept),
		zap.Int64("points_expired", result.PointsExpired),
	)

	return result, nil
}

func (c *Coordinator) sweepCustomer(ctx context.Context, tx Tx, tenantID, customerID int64, now time.Time, result *SweepResult) error {
	entries, err := tx.ExpiredPositiveEntries(ctx, tenantID, customerID, now)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		if e.RemainingPoints <= 0 {
			continue
		}
		if err := tx.Consume(ctx, e.EntryID, e.RemainingPoints); err != nil {
			return err
		}
		expire := &domain.LedgerEntry{
			TenantID:    tenantID,
			CustomerID:  customerID,
			Kind:        domain.EntryExpire,
			PointsDelta: -e.RemainingPoints,
			Reason:      domain.ReasonExpired,
			CreatedAt:   now,
		}
		if err := tx.Append(ctx, expire); err != nil {
			return err
		}
		result.EntriesExpired++
		result.PointsExpired += e.RemainingPoints
	}

	st, err := tx.State(ctx, tenantID, customerID)
	if err != nil {
		return err
	}

	// Expiry reduces availability but never lifetime, so the tier holds.
	available, lifetime, err := tx.Sums(ctx, tenantID, customerID, now)
	if err != nil {
		return err
	}
	st.AvailablePoints = available
	st.LifetimePoints = lifetime

	return tx.SaveState(ctx, st)
}

// Recompute rebuilds one customer's aggregates and tier from the ledger. A
// repair operation; under normal operation every mutation already keeps the
// state in step.
func (c *Coordinator) Recompute(ctx context.Context, tenantID, customerID int64) (*domain.CustomerLoyaltyState, error) {
	now := time.Now()

	tiers, err := c.tiers.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var st *domain.CustomerLoyaltyState
	err = c.store.InCustomerTx(ctx, tenantID, customerID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.State(ctx, tenantID, customerID)
		if err != nil {
			return err
		}

		available, lifetime, err := tx.Sums(ctx, tenantID, customerID, now)
		if err != nil {
			return err
		}
		cur.AvailablePoints = available
		cur.LifetimePoints = lifetime

		if err := c.applyTier(ctx, tx, tiers, cur, now, sql.NullInt64{}); err != nil {
			return err
		}

		if err := tx.SaveState(ctx, cur); err != nil {
			return err
		}
		st = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	return st, nil
}
