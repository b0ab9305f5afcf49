package loyalty

import (
	"context"
	"testing"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubConfig struct {
	cfg domain.LoyaltyConfig
}

func (s *stubConfig) Get(ctx context.Context, tenantID int64) (domain.LoyaltyConfig, error) {
	cfg := s.cfg
	cfg.TenantID = tenantID
	return cfg, nil
}

type stubTiers struct {
	tiers []domain.Tier
}

func (s *stubTiers) ListActive(ctx context.Context, tenantID int64) ([]domain.Tier, error) {
	return s.tiers, nil
}

func testConfig() domain.LoyaltyConfig {
	cfg := domain.DefaultConfig(1)
	cfg.Enabled = true
	return cfg
}

func bronzeOnly() []domain.Tier {
	return []domain.Tier{
		{TenantID: 1, Level: domain.TierBronze, PointsThreshold: 0, BonusPointsMultiplier: decimal.NewFromInt(1), Active: true},
	}
}

func bronzeSilver() []domain.Tier {
	return []domain.Tier{
		{TenantID: 1, Level: domain.TierBronze, PointsThreshold: 0, BonusPointsMultiplier: decimal.NewFromInt(1), Active: true},
		{TenantID: 1, Level: domain.TierSilver, PointsThreshold: 1000, BonusPointsMultiplier: decimal.RequireFromString("1.2"), Active: true},
	}
}

func newTestCoordinator(cfg domain.LoyaltyConfig, tiers []domain.Tier) (*Coordinator, *memStore) {
	store := newMemStore()
	c := NewCoordinator(store, &stubConfig{cfg: cfg}, &stubTiers{tiers: tiers}, zap.NewNop())
	return c, store
}

func billReq(customerID, billID int64, total string, now time.Time) domain.BillLoyaltyRequest {
	return domain.BillLoyaltyRequest{
		TenantID:   1,
		CustomerID: customerID,
		BillID:     billID,
		BillTotal:  decimal.RequireFromString(total),
		Now:        now,
	}
}

func TestEnrollGetRoundTrip(t *testing.T) {
	c, _ := newTestCoordinator(testConfig(), bronzeOnly())
	ctx := context.Background()

	st, err := c.Enroll(ctx, 1, 7, domain.EnrollInput{})
	require.NoError(t, err)
	require.Equal(t, domain.TierBronze, st.TierLevel)
	require.Len(t, st.ReferralCode, 8)
	require.True(t, st.Active)

	view, err := c.Get(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, st.ReferralCode, view.State.ReferralCode)
	require.Equal(t, int64(0), view.State.AvailablePoints)

	// Re-enrolling returns the existing state.
	again, err := c.Enroll(ctx, 1, 7, domain.EnrollInput{})
	require.NoError(t, err)
	require.Equal(t, st.ReferralCode, again.ReferralCode)
}

func TestApplyBillBasicEarn(t *testing.T) {
	c, _ := newTestCoordinator(testConfig(), bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.Enroll(ctx, 1, 7, domain.EnrollInput{})
	require.NoError(t, err)

	out, err := c.ApplyBillLoyalty(ctx, billReq(7, 100, "150.00", now))
	require.NoError(t, err)

	require.Equal(t, int64(150), out.PointsEarned)
	require.Equal(t, int64(0), out.PointsRedeemed)
	require.Equal(t, int64(150), out.NewAvailablePoints)
	require.Equal(t, int64(150), out.NewLifetimePoints)
	require.Equal(t, domain.TierBronze, out.TierAfter)
	require.False(t, out.EnrolledNow)

	st, err := c.store.State(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(150), st.AvailablePoints)
	require.Equal(t, int64(1), st.TotalPurchases)
	require.True(t, st.TotalSpent.Equal(decimal.RequireFromString("150.00")))
}

func TestApplyBillAutoEnrolls(t *testing.T) {
	c, _ := newTestCoordinator(testConfig(), bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	out, err := c.ApplyBillLoyalty(ctx, billReq(9, 200, "40.00", now))
	require.NoError(t, err)
	require.True(t, out.EnrolledNow)
	require.Equal(t, int64(40), out.PointsEarned)

	st, err := c.store.State(ctx, 1, 9)
	require.NoError(t, err)
	require.Equal(t, int64(40), st.AvailablePoints)
}

func TestApplyBillDisabledProgram(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c, store := newTestCoordinator(cfg, bronzeOnly())

	out, err := c.ApplyBillLoyalty(context.Background(), billReq(7, 300, "150.00", time.Now()))
	require.NoError(t, err)
	require.Contains(t, out.Warnings, domain.WarnProgramDisabled)
	require.Equal(t, int64(0), out.PointsEarned)
	require.Empty(t, store.entries)
}

func TestApplyBillTierUpMultiplierTiming(t *testing.T) {
	c, _ := newTestCoordinator(testConfig(), bronzeSilver())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.Enroll(ctx, 1, 7, domain.EnrollInput{})
	require.NoError(t, err)

	out, err := c.ApplyBillLoyalty(ctx, billReq(7, 1, "990.00", now))
	require.NoError(t, err)
	require.Equal(t, int64(990), out.PointsEarned)
	require.Equal(t, domain.TierBronze, out.TierAfter)

	// Still Bronze at earn time: 20 points, then the commit promotes.
	out, err = c.ApplyBillLoyalty(ctx, billReq(7, 2, "20.00", now))
	require.NoError(t, err)
	require.Equal(t, int64(20), out.PointsEarned)
	require.Equal(t, domain.TierBronze, out.TierBefore)
	require.Equal(t, domain.TierSilver, out.TierAfter)
	require.Equal(t, int64(1010), out.NewLifetimePoints)

	// Silver multiplier applies from the next bill.
	out, err = c.ApplyBillLoyalty(ctx, billReq(7, 3, "100.00", now))
	require.NoError(t, err)
	require.Equal(t, int64(120), out.PointsEarned)
}

func TestApplyBillRedemptionCap(t *testing.T) {
	c, _ := newTestCoordinator(testConfig(), bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.ApplyBillLoyalty(ctx, billReq(7, 1, "5000.00", now))
	require.NoError(t, err)

	req := billReq(7, 2, "200.00", now)
	requested := int64(5000)
	req.RequestedRedeemPoints = &requested

	out, err := c.ApplyBillLoyalty(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(4000), out.PointsRedeemed)
	require.True(t, out.CurrencyDiscount.Equal(decimal.RequireFromString("40.00")))
	require.Contains(t, out.Warnings, domain.WarnCapApplied)

	// Earn still computes from the full bill total.
	require.Equal(t, int64(200), out.PointsEarned)
	require.Equal(t, int64(1200), out.NewAvailablePoints)
}

func TestApplyBillFIFOExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.PointsExpiryDays = 30
	cfg.MinPurchaseAmount = decimal.RequireFromString("50.00")
	c, store := newTestCoordinator(cfg, bronzeOnly())
	ctx := context.Background()

	day0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	day10 := day0.AddDate(0, 0, 10)
	day25 := day0.AddDate(0, 0, 25)
	day41 := day0.AddDate(0, 0, 41)

	_, err := c.ApplyBillLoyalty(ctx, billReq(7, 1, "100.00", day0))
	require.NoError(t, err)
	_, err = c.ApplyBillLoyalty(ctx, billReq(7, 2, "200.00", day10))
	require.NoError(t, err)

	// Redeem 150 on a bill too small to earn: 100 from the oldest batch,
	// 50 from the newer one.
	req := billReq(7, 3, "10.00", day25)
	requested := int64(150)
	req.RequestedRedeemPoints = &requested

	out, err := c.ApplyBillLoyalty(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(150), out.PointsRedeemed)
	require.Equal(t, int64(0), out.PointsEarned)
	require.Contains(t, out.Warnings, domain.WarnBelowMinPurchase)
	require.Equal(t, int64(150), out.NewAvailablePoints)

	require.Equal(t, int64(0), store.entries[0].RemainingPoints)
	require.False(t, store.entries[0].Active)
	require.Equal(t, int64(150), store.entries[1].RemainingPoints)
	require.True(t, store.entries[1].Active)

	// Day 41: the second batch (expiry day 40) sweeps out.
	swept, err := c.SweepExpired(ctx, 1, day41)
	require.NoError(t, err)
	require.Equal(t, 1, swept.CustomersSwept)
	require.Equal(t, int64(150), swept.PointsExpired)

	st, err := c.store.State(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), st.AvailablePoints)
	require.Equal(t, int64(300), st.LifetimePoints)
}

func TestApplyBillIdempotent(t *testing.T) {
	c, store := newTestCoordinator(testConfig(), bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first, err := c.ApplyBillLoyalty(ctx, billReq(7, 42, "150.00", now))
	require.NoError(t, err)
	entriesAfterFirst := len(store.entries)

	second, err := c.ApplyBillLoyalty(ctx, billReq(7, 42, "150.00", now))
	require.NoError(t, err)
	require.Contains(t, second.Warnings, domain.WarnDuplicateBill)
	require.Equal(t, first.PointsEarned, second.PointsEarned)
	require.Equal(t, first.NewAvailablePoints, second.NewAvailablePoints)
	require.Equal(t, entriesAfterFirst, len(store.entries))
}

func TestApplyBillZeroEffectIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.MinPurchaseAmount = decimal.RequireFromString("50.00")
	c, _ := newTestCoordinator(cfg, bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.Enroll(ctx, 1, 7, domain.EnrollInput{})
	require.NoError(t, err)

	// Below the earning minimum, no redemption, no bonus: the bill moves no
	// points but the purchase still counts, exactly once.
	first, err := c.ApplyBillLoyalty(ctx, billReq(7, 99, "10.00", now))
	require.NoError(t, err)
	require.Equal(t, int64(0), first.PointsEarned)
	require.Contains(t, first.Warnings, domain.WarnBelowMinPurchase)

	second, err := c.ApplyBillLoyalty(ctx, billReq(7, 99, "10.00", now))
	require.NoError(t, err)
	require.Contains(t, second.Warnings, domain.WarnDuplicateBill)
	require.Equal(t, int64(0), second.PointsEarned)

	st, err := c.store.State(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), st.TotalPurchases)
	require.True(t, st.TotalSpent.Equal(decimal.RequireFromString("10.00")))

	// Reversing the zero-effect bill undoes the aggregates, once.
	summary, err := c.ReverseBillLoyalty(ctx, 1, 99, now)
	require.NoError(t, err)
	require.False(t, summary.AlreadyReversed)

	st, err = c.store.State(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), st.TotalPurchases)
	require.True(t, st.TotalSpent.IsZero())

	summary, err = c.ReverseBillLoyalty(ctx, 1, 99, now)
	require.NoError(t, err)
	require.True(t, summary.AlreadyReversed)
}

func TestReferralBonusOnce(t *testing.T) {
	cfg := testConfig()
	cfg.ReferralBonus = 50
	c, store := newTestCoordinator(cfg, bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	a, err := c.Enroll(ctx, 1, 1, domain.EnrollInput{})
	require.NoError(t, err)

	b, err := c.Enroll(ctx, 1, 2, domain.EnrollInput{ReferralCode: a.ReferralCode})
	require.NoError(t, err)
	require.True(t, b.ReferredBy.Valid)
	require.Equal(t, int64(1), b.ReferredBy.Int64)

	out, err := c.ApplyBillLoyalty(ctx, billReq(2, 10, "100.00", now))
	require.NoError(t, err)
	require.Equal(t, int64(100), out.PointsEarned)
	require.Equal(t, int64(150), out.NewAvailablePoints) // 100 earned + 50 welcome

	var referralEntries int
	for _, e := range store.entries {
		if e.Kind == domain.EntryReferral {
			referralEntries++
		}
	}
	require.Equal(t, 2, referralEntries)

	// The referrer got their reward.
	stA, err := c.store.State(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), stA.AvailablePoints)

	// A second bill fires no further referral entries.
	_, err = c.ApplyBillLoyalty(ctx, billReq(2, 11, "100.00", now))
	require.NoError(t, err)

	referralEntries = 0
	for _, e := range store.entries {
		if e.Kind == domain.EntryReferral {
			referralEntries++
		}
	}
	require.Equal(t, 2, referralEntries)
}

func TestBirthdayBonusOncePerYear(t *testing.T) {
	cfg := testConfig()
	cfg.BirthdayBonus = 25
	c, _ := newTestCoordinator(cfg, bronzeOnly())
	ctx := context.Background()

	birthday := time.Date(1990, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.Enroll(ctx, 1, 7, domain.EnrollInput{Birthday: &birthday})
	require.NoError(t, err)

	out, err := c.ApplyBillLoyalty(ctx, billReq(7, 1, "100.00", now))
	require.NoError(t, err)
	require.Equal(t, int64(125), out.NewAvailablePoints)

	// Same day, second bill: no second birthday bonus.
	out, err = c.ApplyBillLoyalty(ctx, billReq(7, 2, "100.00", now))
	require.NoError(t, err)
	require.Equal(t, int64(225), out.NewAvailablePoints)
}

func TestReverseBillRestoresState(t *testing.T) {
	c, _ := newTestCoordinator(testConfig(), bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.ApplyBillLoyalty(ctx, billReq(7, 1, "1000.00", now))
	require.NoError(t, err)

	req := billReq(7, 2, "500.00", now)
	requested := int64(200)
	req.RequestedRedeemPoints = &requested

	out, err := c.ApplyBillLoyalty(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(200), out.PointsRedeemed)
	require.Equal(t, int64(500), out.PointsEarned)
	require.Equal(t, int64(1300), out.NewAvailablePoints)
	require.Equal(t, int64(1500), out.NewLifetimePoints)

	summary, err := c.ReverseBillLoyalty(ctx, 1, 2, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, summary.AlreadyReversed)
	require.Equal(t, int64(200), summary.PointsRestored)
	require.Equal(t, int64(500), summary.PointsClawedBack)

	st, err := c.store.State(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1000), st.AvailablePoints)
	require.Equal(t, int64(1000), st.LifetimePoints)
	require.Equal(t, int64(1), st.TotalPurchases)
	require.True(t, st.TotalSpent.Equal(decimal.RequireFromString("1000.00")))

	// Reversing again is a no-op.
	summary, err = c.ReverseBillLoyalty(ctx, 1, 2, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, summary.AlreadyReversed)
	require.Equal(t, int64(0), summary.PointsRestored)
}

func TestRedeemRewardStandalone(t *testing.T) {
	c, store := newTestCoordinator(testConfig(), bronzeOnly())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store.rewards[5] = &reward.Reward{
		RewardID:   5,
		TenantID:   1,
		Name:       "Free hemming",
		Type:       reward.TypeFreeItem,
		PointsCost: 300,
		Active:     true,
	}

	_, err := c.ApplyBillLoyalty(ctx, billReq(7, 1, "1000.00", now))
	require.NoError(t, err)

	rec, err := c.RedeemRewardStandalone(ctx, 1, 7, 5)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Reference)
	require.Equal(t, int64(300), rec.PointsUsed)
	require.False(t, rec.BillID.Valid)

	st, err := c.store.State(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(700), st.AvailablePoints)

	// Insufficient balance surfaces as an error, not a warning.
	store.rewards[6] = &reward.Reward{
		RewardID:   6,
		TenantID:   1,
		Name:       "Big spender",
		Type:       reward.TypeFreeItem,
		PointsCost: 5000,
		Active:     true,
	}
	_, err = c.RedeemRewardStandalone(ctx, 1, 7, 6)
	require.ErrorIs(t, err, xerrors.ErrInsufficientPoints)
}

func TestRecomputeRepairsDriftedState(t *testing.T) {
	c, store := newTestCoordinator(testConfig(), bronzeSilver())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.ApplyBillLoyalty(ctx, billReq(7, 1, "1500.00", now))
	require.NoError(t, err)

	// Corrupt the aggregate row.
	st := store.states[[2]int64{1, 7}]
	st.AvailablePoints = 1
	st.LifetimePoints = 1
	st.TierLevel = domain.TierBronze

	repaired, err := c.Recompute(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1500), repaired.AvailablePoints)
	require.Equal(t, int64(1500), repaired.LifetimePoints)
	require.Equal(t, domain.TierSilver, repaired.TierLevel)
}
