package loyalty

import (
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EarnBase selects the amount that earns points. The program historically
// earned on the pre-discount bill total; the config toggle flips that.
func EarnBase(cfg domain.LoyaltyConfig, billTotal, discount decimal.Decimal) decimal.Decimal {
	if cfg.EarnOnDiscountedTotal {
		base := billTotal.Sub(discount)
		if base.IsNegative() {
			return decimal.Zero
		}
		return base
	}
	return billTotal
}

// EarnPoints computes floor(floor(base × rate) × multiplier). The tier
// multiplier applies to the tier held at earn time, not the tier the earn
// may promote the customer into.
func EarnPoints(cfg domain.LoyaltyConfig, multiplier decimal.Decimal, base decimal.Decimal) int64 {
	points := base.Mul(cfg.PointsPerCurrencyUnit).Floor().IntPart()
	if points <= 0 {
		return 0
	}
	if multiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		return points
	}
	return decimal.NewFromInt(points).Mul(multiplier).Floor().IntPart()
}

// RedemptionPlan is the resolved redemption of one request: how many points
// to take off the ledger and the currency discount they buy. A zero Points
// plan means the redemption was rejected; Warnings carries why.
type RedemptionPlan struct {
	Points   int64
	Discount decimal.Decimal
	RewardID *int64
	Warnings []domain.Warning
}

func rejectedPlan(w domain.Warning) RedemptionPlan {
	return RedemptionPlan{Discount: decimal.Zero, Warnings: []domain.Warning{w}}
}

// PlanRedemption evaluates a bill-attached redemption request against config,
// available balance and the bill cap. When only the cap is exceeded the plan
// is clamped rather than rejected.
func PlanRedemption(cfg domain.LoyaltyConfig, available int64, billTotal decimal.Decimal, requestedPoints *int64, rw *reward.Reward, now time.Time) RedemptionPlan {
	var points int64
	var discount decimal.Decimal
	var rewardID *int64

	switch {
	case rw != nil:
		if !rw.Active {
			return rejectedPlan(domain.WarnRewardInactive)
		}
		if !rw.InWindow(now) {
			return rejectedPlan(domain.WarnRewardOutOfWindow)
		}
		points = rw.PointsCost
		discount = rewardDiscount(rw, billTotal)
		rewardID = &rw.RewardID
	case requestedPoints != nil:
		points = *requestedPoints
		discount = decimal.NewFromInt(points).Mul(cfg.CurrencyPerPoint).Round(2)
	default:
		return RedemptionPlan{Discount: decimal.Zero}
	}

	if points <= 0 {
		return RedemptionPlan{Discount: decimal.Zero}
	}
	if points < cfg.MinPointsToRedeem {
		return rejectedPlan(domain.WarnBelowMinRedeem)
	}
	if points > available {
		return rejectedPlan(domain.WarnInsufficientPoints)
	}

	plan := RedemptionPlan{Points: points, Discount: discount, RewardID: rewardID}

	cap := billTotal.Mul(decimal.NewFromInt(int64(cfg.MaxRedemptionPercent))).Div(hundred).Round(2)
	if discount.GreaterThan(cap) {
		if rw == nil {
			// Point redemptions scale: clamp the points to what the cap buys.
			clamped := int64(0)
			if cfg.CurrencyPerPoint.IsPositive() {
				clamped = cap.Div(cfg.CurrencyPerPoint).Floor().IntPart()
			}
			if clamped <= 0 {
				return rejectedPlan(domain.WarnCapApplied)
			}
			plan.Points = clamped
			plan.Discount = decimal.NewFromInt(clamped).Mul(cfg.CurrencyPerPoint).Round(2)
		} else {
			// Reward cost is fixed; only the discount is clamped.
			plan.Discount = cap
		}
		plan.Warnings = append(plan.Warnings, domain.WarnCapApplied)
	}

	return plan
}

// PlanStandaloneRedemption evaluates a reward redemption with no bill
// attached: the floor and balance checks apply, the bill cap does not.
func PlanStandaloneRedemption(cfg domain.LoyaltyConfig, available int64, rw *reward.Reward, now time.Time) (RedemptionPlan, error) {
	if !rw.Active {
		return RedemptionPlan{}, xerrors.ErrRewardInactive
	}
	if !rw.InWindow(now) {
		return RedemptionPlan{}, xerrors.ErrRewardOutOfWindow
	}
	if rw.PointsCost < cfg.MinPointsToRedeem {
		return RedemptionPlan{}, xerrors.ErrBelowMinRedeem
	}
	if rw.PointsCost > available {
		return RedemptionPlan{}, xerrors.ErrInsufficientPoints
	}

	discount := decimal.Zero
	if rw.Type == reward.TypeDiscountAmount {
		discount = rw.Value
	}

	return RedemptionPlan{Points: rw.PointsCost, Discount: discount, RewardID: &rw.RewardID}, nil
}

func rewardDiscount(rw *reward.Reward, billTotal decimal.Decimal) decimal.Decimal {
	switch rw.Type {
	case reward.TypeDiscountPercent:
		return billTotal.Mul(rw.Value).Div(hundred).Round(2)
	case reward.TypeDiscountAmount:
		return rw.Value
	default: // free_item confers the item, not a currency discount
		return decimal.Zero
	}
}

// Allocation records points taken from one positive ledger entry during FIFO
// consumption.
type Allocation struct {
	EntryID int64
	Points  int64
}

// AllocateFIFO spreads a deduction across the oldest-expiring positive
// entries first. Entries must already be in FIFO order. Returns
// xerrors.ErrInsufficientPoints when the entries cannot cover the deduction.
func AllocateFIFO(entries []domain.LedgerEntry, points int64) ([]Allocation, error) {
	allocs := []Allocation{}
	need := points
	for _, e := range entries {
		if need == 0 {
			break
		}
		take := e.RemainingPoints
		if take > need {
			take = need
		}
		if take <= 0 {
			continue
		}
		allocs = append(allocs, Allocation{EntryID: e.EntryID, Points: take})
		need -= take
	}
	if need > 0 {
		return nil, xerrors.ErrInsufficientPoints
	}
	return allocs, nil
}

// SumRemaining totals the spendable points across FIFO entries; this is the
// ledger-derived available balance as of the entries' query time.
func SumRemaining(entries []domain.LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.RemainingPoints
	}
	return total
}

// SameMonthDay reports whether two dates share month and day, the birthday
// and anniversary bonus trigger.
func SameMonthDay(a, b time.Time) bool {
	return a.Month() == b.Month() && a.Day() == b.Day()
}
