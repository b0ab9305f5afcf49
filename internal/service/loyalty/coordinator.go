package loyalty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"
	"github.com/aykha18/tajir-loyalty/internal/pkg/refcode"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Coordinator is the single entry point for every loyalty mutation tied to a
// customer: bill application, reversal, enrollment, standalone redemption and
// the expiry sweep. Each operation runs inside one storage transaction
// serialized per (tenant, customer).
type Coordinator struct {
	store  Store
	config ConfigProvider
	tiers  TierProvider
	logger *zap.Logger
}

func NewCoordinator(store Store, config ConfigProvider, tiers TierProvider, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: store, config: config, tiers: tiers, logger: logger}
}

// Enroll creates the customer's loyalty row if absent and returns it. A
// presented referral code is honoured only on first enrollment; an
// unresolvable code is skipped, never fatal.
func (c *Coordinator) Enroll(ctx context.Context, tenantID, customerID int64, in domain.EnrollInput) (*domain.CustomerLoyaltyState, error) {
	var state *domain.CustomerLoyaltyState

	err := c.store.InCustomerTx(ctx, tenantID, customerID, func(ctx context.Context, tx Tx) error {
		existing, err := tx.State(ctx, tenantID, customerID)
		if err == nil {
			state = existing
			return nil
		}
		if !errors.Is(err, xerrors.ErrCustomerNotEnrolled) {
			return err
		}

		st, err := c.enroll(ctx, tx, tenantID, customerID, in, time.Now())
		if err != nil {
			return err
		}
		state = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

func (c *Coordinator) enroll(ctx context.Context, tx Tx, tenantID, customerID int64, in domain.EnrollInput, now time.Time) (*domain.CustomerLoyaltyState, error) {
	code, err := c.uniqueReferralCode(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}

	st := &domain.CustomerLoyaltyState{
		TenantID:     tenantID,
		CustomerID:   customerID,
		TotalSpent:   decimal.Zero,
		JoinDate:     now,
		LastActivity: now,
		ReferralCode: code,
		Active:       true,
	}
	if in.Birthday != nil {
		st.Birthday = sql.NullTime{Time: *in.Birthday, Valid: true}
	}
	if in.AnniversaryDate != nil {
		st.AnniversaryDate = sql.NullTime{Time: *in.AnniversaryDate, Valid: true}
	}

	if in.ReferralCode != "" {
		referrer, err := tx.StateByReferralCode(ctx, tenantID, in.ReferralCode)
		switch {
		case errors.Is(err, xerrors.ErrNotFound):
			c.logger.Info("referral code not found, skipping",
				zap.Int64("tenant_id", tenantID), zap.Int64("customer_id", customerID))
		case err != nil:
			return nil, err
		case referrer.CustomerID == customerID || !referrer.Active:
			c.logger.Info("referral code not applicable, skipping",
				zap.Int64("tenant_id", tenantID), zap.Int64("customer_id", customerID))
		default:
			st.ReferredBy = sql.NullInt64{Int64: referrer.CustomerID, Valid: true}
		}
	}

	tiers, err := c.tiers.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if entry, ok := domain.TierFor(0, tiers); ok {
		st.TierLevel = entry.Level
		st.TierPointsThreshold = domain.NextThreshold(entry, tiers)
	} else {
		st.TierLevel = domain.TierBronze
	}

	if err := tx.CreateState(ctx, st); err != nil {
		return nil, err
	}

	c.logger.Info("customer enrolled",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("customer_id", customerID),
		zap.Bool("referred", st.ReferredBy.Valid),
	)

	return st, nil
}

func (c *Coordinator) uniqueReferralCode(ctx context.Context, tx Tx, tenantID int64) (string, error) {
	for i := 0; i < refcode.MaxAttempts; i++ {
		code, err := refcode.Generate()
		if err != nil {
			return "", err
		}
		exists, err := tx.ReferralCodeExists(ctx, tenantID, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique referral code after %d attempts", refcode.MaxAttempts)
}

// Get returns the customer's state, current tier perks and a recent ledger
// page.
func (c *Coordinator) Get(ctx context.Context, tenantID, customerID int64) (*domain.CustomerLoyaltyView, error) {
	st, err := c.store.State(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	view := &domain.CustomerLoyaltyView{State: *st}

	tiers, err := c.tiers.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t, ok := domain.TierFor(st.LifetimePoints, tiers); ok {
		view.Tier = &t
	}

	entries, err := c.store.LedgerPage(ctx, tenantID, customerID, 20, 0)
	if err != nil {
		return nil, err
	}
	view.RecentEntries = entries

	return view, nil
}

// ApplyBillLoyalty applies redemption, earning and bonuses for one finalized
// bill atomically. Reapplying the same bill_id is a no-op that replays the
// stored effect.
func (c *Coordinator) ApplyBillLoyalty(ctx context.Context, req domain.BillLoyaltyRequest) (*domain.BillLoyaltyOutcome, error) {
	cfg, err := c.config.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	outcome := &domain.BillLoyaltyOutcome{CurrencyDiscount: decimal.Zero}
	if !cfg.Enabled {
		outcome.Warn(domain.WarnProgramDisabled)
		return outcome, nil
	}

	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	tiers, err := c.tiers.ListActive(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	err = c.store.InCustomerTx(ctx, req.TenantID, req.CustomerID, func(ctx context.Context, tx Tx) error {
		return c.applyBill(ctx, tx, cfg, tiers, req, outcome)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("bill loyalty applied",
		zap.Int64("tenant_id", req.TenantID),
		zap.Int64("customer_id", req.CustomerID),
		zap.Int64("bill_id", req.BillID),
		zap.Int64("points_earned", outcome.PointsEarned),
		zap.Int64("points_redeemed", outcome.PointsRedeemed),
		zap.String("tier_after", string(outcome.TierAfter)),
	)

	return outcome, nil
}

func (c *Coordinator) applyBill(ctx context.Context, tx Tx, cfg domain.LoyaltyConfig, tiers []domain.Tier, req domain.BillLoyaltyRequest, outcome *domain.BillLoyaltyOutcome) error {
	st, err := tx.State(ctx, req.TenantID, req.CustomerID)
	if errors.Is(err, xerrors.ErrCustomerNotEnrolled) {
		// Program enabled implies auto-enroll on first qualifying purchase.
		st, err = c.enroll(ctx, tx, req.TenantID, req.CustomerID, domain.EnrollInput{ReferralCode: req.ReferralCodePresented}, req.Now)
		if err != nil {
			return err
		}
		outcome.EnrolledNow = true
		if req.ReferralCodePresented != "" && !st.ReferredBy.Valid {
			outcome.Warn(domain.WarnReferralNotApplicable)
		}
	} else if err != nil {
		return err
	}

	// Idempotency: a bill that already produced entries is replayed, never
	// reapplied.
	prior, err := tx.EntriesForBill(ctx, req.TenantID, req.BillID)
	if err != nil {
		return err
	}
	if len(prior) > 0 {
		return c.replayOutcome(ctx, tx, st, prior, req, outcome)
	}

	tierBefore, haveTier := domain.TierFor(st.LifetimePoints, tiers)
	if haveTier {
		outcome.TierBefore = tierBefore.Level
	} else {
		outcome.TierBefore = st.TierLevel
	}

	// Redemption runs before earning so this bill's points are never
	// immediately spendable.
	if err := c.redeemForBill(ctx, tx, cfg, req, outcome); err != nil {
		return err
	}

	// Earning.
	base := EarnBase(cfg, req.BillTotal, outcome.CurrencyDiscount)
	if req.BillTotal.LessThan(cfg.MinPurchaseAmount) {
		outcome.Warn(domain.WarnBelowMinPurchase)
	} else {
		multiplier := decimal.NewFromInt(1)
		if haveTier {
			multiplier = tierBefore.BonusPointsMultiplier
		}
		earned := EarnPoints(cfg, multiplier, base)
		if earned > 0 {
			entry := &domain.LedgerEntry{
				TenantID:       req.TenantID,
				CustomerID:     req.CustomerID,
				Kind:           domain.EntryEarn,
				PointsDelta:    earned,
				CurrencyAmount: decimal.NullDecimal{Decimal: req.BillTotal, Valid: true},
				BillID:         sql.NullInt64{Int64: req.BillID, Valid: true},
				Reason:         domain.ReasonBillEarn,
				CreatedAt:      req.Now,
			}
			if cfg.PointsExpiryDays > 0 {
				entry.ExpiresAt = sql.NullTime{Time: req.Now.AddDate(0, 0, cfg.PointsExpiryDays), Valid: true}
			}
			if err := tx.Append(ctx, entry); err != nil {
				return err
			}
			outcome.PointsEarned = earned
		}
	}

	if err := c.applyBonuses(ctx, tx, cfg, st, req, outcome); err != nil {
		return err
	}

	// A bill that moved no points still has to pin its bill_id in the ledger,
	// otherwise retrying the same bill would count the purchase twice.
	applied, err := tx.EntriesForBill(ctx, req.TenantID, req.BillID)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		marker := &domain.LedgerEntry{
			TenantID:       req.TenantID,
			CustomerID:     req.CustomerID,
			Kind:           domain.EntryBonus,
			PointsDelta:    0,
			CurrencyAmount: decimal.NullDecimal{Decimal: req.BillTotal, Valid: true},
			BillID:         sql.NullInt64{Int64: req.BillID, Valid: true},
			Reason:         domain.ReasonBillRecorded,
			CreatedAt:      req.Now,
		}
		if err := tx.Append(ctx, marker); err != nil {
			return err
		}
	}

	// Recompute aggregates from the ledger and reassign the tier.
	available, lifetime, err := tx.Sums(ctx, req.TenantID, req.CustomerID, req.Now)
	if err != nil {
		return err
	}
	st.AvailablePoints = available
	st.LifetimePoints = lifetime

	if err := c.applyTier(ctx, tx, tiers, st, req.Now, sql.NullInt64{Int64: req.BillID, Valid: true}); err != nil {
		return err
	}

	st.TotalSpent = st.TotalSpent.Add(req.BillTotal)
	st.TotalPurchases++
	st.LastActivity = req.Now

	if err := tx.SaveState(ctx, st); err != nil {
		return err
	}

	outcome.TierAfter = st.TierLevel
	outcome.NewAvailablePoints = st.AvailablePoints
	outcome.NewLifetimePoints = st.LifetimePoints

	return nil
}

// redeemForBill resolves and executes the optional redemption step. A
// rejected redemption adds a warning and leaves the bill to earn normally.
func (c *Coordinator) redeemForBill(ctx context.Context, tx Tx, cfg domain.LoyaltyConfig, req domain.BillLoyaltyRequest, outcome *domain.BillLoyaltyOutcome) error {
	if req.RewardID == nil && req.RequestedRedeemPoints == nil {
		return nil
	}

	var rw *reward.Reward
	if req.RewardID != nil {
		found, err := tx.Reward(ctx, req.TenantID, *req.RewardID)
		if errors.Is(err, xerrors.ErrNotFound) {
			outcome.Warn(domain.WarnRewardInactive)
			return nil
		}
		if err != nil {
			return err
		}
		rw = found
	}

	entries, err := tx.ActivePositiveEntries(ctx, req.TenantID, req.CustomerID, req.Now)
	if err != nil {
		return err
	}

	plan := PlanRedemption(cfg, SumRemaining(entries), req.BillTotal, req.RequestedRedeemPoints, rw, req.Now)
	outcome.Warnings = append(outcome.Warnings, plan.Warnings...)
	if plan.Points == 0 {
		return nil
	}

	if _, err := c.executeRedemption(ctx, tx, entries, plan, req.TenantID, req.CustomerID, sql.NullInt64{Int64: req.BillID, Valid: true}, req.Now); err != nil {
		return err
	}

	outcome.PointsRedeemed = plan.Points
	outcome.CurrencyDiscount = plan.Discount

	return nil
}

// executeRedemption allocates the plan FIFO across positive entries, appends
// the negative ledger entry and writes the redemption trail.
func (c *Coordinator) executeRedemption(ctx context.Context, tx Tx, entries []domain.LedgerEntry, plan RedemptionPlan, tenantID, customerID int64, billID sql.NullInt64, now time.Time) (*reward.RedemptionRecord, error) {
	allocs, err := AllocateFIFO(entries, plan.Points)
	if err != nil {
		return nil, err
	}

	consumedIDs := make([]int64, len(allocs))
	for i, a := range allocs {
		if err := tx.Consume(ctx, a.EntryID, a.Points); err != nil {
			return nil, err
		}
		consumedIDs[i] = a.EntryID
	}

	entry := &domain.LedgerEntry{
		TenantID:       tenantID,
		CustomerID:     customerID,
		Kind:           domain.EntryRedeem,
		PointsDelta:    -plan.Points,
		CurrencyAmount: decimal.NullDecimal{Decimal: plan.Discount, Valid: true},
		BillID:         billID,
		Reason:         domain.ReasonRedeemAgainst(consumedIDs),
		CreatedAt:      now,
	}
	if plan.RewardID != nil {
		entry.RewardID = sql.NullInt64{Int64: *plan.RewardID, Valid: true}
	}
	if err := tx.Append(ctx, entry); err != nil {
		return nil, err
	}

	rec := &reward.RedemptionRecord{
		Reference:        ulid.Make().String(),
		TenantID:         tenantID,
		CustomerID:       customerID,
		BillID:           billID,
		PointsUsed:       plan.Points,
		CurrencyDiscount: plan.Discount,
		CreatedAt:        now,
	}
	if plan.RewardID != nil {
		rec.RewardID = sql.NullInt64{Int64: *plan.RewardID, Valid: true}
	}

	if err := tx.CreateRedemption(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyBonuses evaluates birthday, anniversary and referral bonuses, each
// guarded by a uniqueness query inside the same transaction.
func (c *Coordinator) applyBonuses(ctx context.Context, tx Tx, cfg domain.LoyaltyConfig, st *domain.CustomerLoyaltyState, req domain.BillLoyaltyRequest, outcome *domain.BillLoyaltyOutcome) error {
	billID := sql.NullInt64{Int64: req.BillID, Valid: true}

	type datedBonus struct {
		date   sql.NullTime
		points int64
		reason string
	}
	for _, b := range []datedBonus{
		{st.Birthday, cfg.BirthdayBonus, domain.ReasonBirthday},
		{st.AnniversaryDate, cfg.AnniversaryBonus, domain.ReasonAnniversary},
	} {
		if b.points <= 0 || !b.date.Valid || !SameMonthDay(b.date.Time, req.Now) {
			continue
		}
		granted, err := tx.HasBonusInYear(ctx, req.TenantID, req.CustomerID, b.reason, req.Now.Year())
		if err != nil {
			return err
		}
		if granted {
			continue
		}
		entry := &domain.LedgerEntry{
			TenantID:    req.TenantID,
			CustomerID:  req.CustomerID,
			Kind:        domain.EntryBonus,
			PointsDelta: b.points,
			BillID:      billID,
			Reason:      b.reason,
			CreatedAt:   req.Now,
		}
		if cfg.PointsExpiryDays > 0 {
			entry.ExpiresAt = sql.NullTime{Time: req.Now.AddDate(0, 0, cfg.PointsExpiryDays), Valid: true}
		}
		if err := tx.Append(ctx, entry); err != nil {
			return err
		}
	}

	// Referral bonus fires once, on the referred customer's first qualifying
	// purchase, rewarding both parties.
	if cfg.ReferralBonus <= 0 || !st.ReferredBy.Valid || outcome.PointsEarned == 0 {
		return nil
	}
	already, err := tx.HasReferralFor(ctx, req.TenantID, req.CustomerID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	var expires sql.NullTime
	if cfg.PointsExpiryDays > 0 {
		expires = sql.NullTime{Time: req.Now.AddDate(0, 0, cfg.PointsExpiryDays), Valid: true}
	}

	welcome := &domain.LedgerEntry{
		TenantID:    req.TenantID,
		CustomerID:  req.CustomerID,
		Kind:        domain.EntryReferral,
		PointsDelta: cfg.ReferralBonus,
		BillID:      billID,
		Reason:      domain.ReasonReferralWelcome,
		CreatedAt:   req.Now,
		ExpiresAt:   expires,
	}
	if err := tx.Append(ctx, welcome); err != nil {
		return err
	}

	rewardEntry := &domain.LedgerEntry{
		TenantID:    req.TenantID,
		CustomerID:  st.ReferredBy.Int64,
		Kind:        domain.EntryReferral,
		PointsDelta: cfg.ReferralBonus,
		BillID:      billID,
		Reason:      domain.ReasonReferralReward(req.CustomerID),
		CreatedAt:   req.Now,
		ExpiresAt:   expires,
	}
	if err := tx.Append(ctx, rewardEntry); err != nil {
		return err
	}

	// The referrer's aggregates must follow their ledger.
	return c.recomputeOther(ctx, tx, req.TenantID, st.ReferredBy.Int64, req.Now)
}

// applyTier reassigns the tier from lifetime points and records an audit
// entry on transitions.
func (c *Coordinator) applyTier(ctx context.Context, tx Tx, tiers []domain.Tier, st *domain.CustomerLoyaltyState, now time.Time, billID sql.NullInt64) error {
	t, ok := domain.TierFor(st.LifetimePoints, tiers)
	if !ok {
		return nil
	}

	if t.Level != st.TierLevel {
		audit := &domain.LedgerEntry{
			TenantID:    st.TenantID,
			CustomerID:  st.CustomerID,
			Kind:        domain.EntryBonus,
			PointsDelta: 0,
			BillID:      billID,
			Reason:      domain.ReasonTierUp,
			CreatedAt:   now,
		}
		if err := tx.Append(ctx, audit); err != nil {
			return err
		}
		c.logger.Info("tier transition",
			zap.Int64("tenant_id", st.TenantID),
			zap.Int64("customer_id", st.CustomerID),
			zap.String("from", string(st.TierLevel)),
			zap.String("to", string(t.Level)),
		)
	}

	st.TierLevel = t.Level
	st.TierPointsThreshold = domain.NextThreshold(t, tiers)

	return nil
}

// recomputeOther refreshes another customer's aggregates after their ledger
// changed inside this transaction (the referrer on a referral bonus).
func (c *Coordinator) recomputeOther(ctx context.Context, tx Tx, tenantID, customerID int64, now time.Time) error {
	other, err := tx.State(ctx, tenantID, customerID)
	if err != nil {
		return err
	}

	available, lifetime, err := tx.Sums(ctx, tenantID, customerID, now)
	if err != nil {
		return err
	}
	other.AvailablePoints = available
	other.LifetimePoints = lifetime

	tiers, err := c.tiers.ListActive(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := c.applyTier(ctx, tx, tiers, other, now, sql.NullInt64{}); err != nil {
		return err
	}

	return tx.SaveState(ctx, other)
}

// replayOutcome reconstructs the effect of an already-applied bill from its
// ledger entries.
func (c *Coordinator) replayOutcome(ctx context.Context, tx Tx, st *domain.CustomerLoyaltyState, prior []domain.LedgerEntry, req domain.BillLoyaltyRequest, outcome *domain.BillLoyaltyOutcome) error {
	for _, e := range prior {
		if e.CustomerID != req.CustomerID {
			continue
		}
		switch e.Kind {
		case domain.EntryEarn:
			outcome.PointsEarned += e.PointsDelta
		case domain.EntryRedeem:
			outcome.PointsRedeemed += -e.PointsDelta
			if e.CurrencyAmount.Valid {
				outcome.CurrencyDiscount = outcome.CurrencyDiscount.Add(e.CurrencyAmount.Decimal)
			}
		}
	}

	outcome.TierBefore = st.TierLevel
	outcome.TierAfter = st.TierLevel
	outcome.NewAvailablePoints = st.AvailablePoints
	outcome.NewLifetimePoints = st.LifetimePoints
	outcome.Warn(domain.WarnDuplicateBill)

	return nil
}
