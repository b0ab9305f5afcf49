package loyalty

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type TierLevel string

const (
	TierBronze   TierLevel = "bronze"
	TierSilver   TierLevel = "silver"
	TierGold     TierLevel = "gold"
	TierPlatinum TierLevel = "platinum"
	TierDiamond  TierLevel = "diamond"
)

// tierOrder fixes the catalog ordering; thresholds must increase along it.
var tierOrder = map[TierLevel]int{
	TierBronze:   0,
	TierSilver:   1,
	TierGold:     2,
	TierPlatinum: 3,
	TierDiamond:  4,
}

// Rank returns the position of the level in the tier ordering, or -1 for an
// unknown level.
func (l TierLevel) Rank() int {
	r, ok := tierOrder[l]
	if !ok {
		return -1
	}
	return r
}

func (l TierLevel) Valid() bool {
	_, ok := tierOrder[l]
	return ok
}

type EntryKind string

const (
	EntryEarn     EntryKind = "earn"
	EntryRedeem   EntryKind = "redeem"
	EntryBonus    EntryKind = "bonus"
	EntryReferral EntryKind = "referral"
	EntryExpire   EntryKind = "expire"
	EntryAdjust   EntryKind = "adjust"
)

// LoyaltyConfig is the per-tenant program configuration. One row per tenant;
// absent rows behave as DefaultConfig without being persisted.
type LoyaltyConfig struct {
	TenantID              int64           `json:"tenant_id" db:"tenant_id"`
	Enabled               bool            `json:"enabled" db:"enabled"`
	ProgramName           string          `json:"program_name" db:"program_name"`
	PointsPerCurrencyUnit decimal.Decimal `json:"points_per_currency_unit" db:"points_per_currency_unit"`
	CurrencyPerPoint      decimal.Decimal `json:"currency_per_point" db:"currency_per_point"`
	MinPointsToRedeem     int64           `json:"min_points_to_redeem" db:"min_points_to_redeem"`
	MaxRedemptionPercent  int             `json:"max_redemption_percent" db:"max_redemption_percent"`
	BirthdayBonus         int64           `json:"birthday_bonus" db:"birthday_bonus"`
	AnniversaryBonus      int64           `json:"anniversary_bonus" db:"anniversary_bonus"`
	ReferralBonus         int64           `json:"referral_bonus" db:"referral_bonus"`
	MinPurchaseAmount     decimal.Decimal `json:"min_purchase_amount" db:"min_purchase_amount"`
	PointsExpiryDays      int             `json:"points_expiry_days" db:"points_expiry_days"`
	EarnOnDiscountedTotal bool            `json:"earn_on_discounted_total" db:"earn_on_discounted_total"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// DefaultConfig returns the configuration a tenant gets before ever saving one.
func DefaultConfig(tenantID int64) LoyaltyConfig {
	return LoyaltyConfig{
		TenantID:              tenantID,
		Enabled:               true,
		ProgramName:           "Loyalty Program",
		PointsPerCurrencyUnit: decimal.NewFromInt(1),
		CurrencyPerPoint:      decimal.RequireFromString("0.01"),
		MinPointsToRedeem:     100,
		MaxRedemptionPercent:  20,
		BirthdayBonus:         0,
		AnniversaryBonus:      0,
		ReferralBonus:         0,
		MinPurchaseAmount:     decimal.Zero,
		PointsExpiryDays:      0,
	}
}

type Tier struct {
	TenantID              int64           `json:"tenant_id" db:"tenant_id"`
	Level                 TierLevel       `json:"tier_level" db:"tier_level"`
	PointsThreshold       int64           `json:"points_threshold" db:"points_threshold"`
	DiscountPercent       decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	BonusPointsMultiplier decimal.Decimal `json:"bonus_points_multiplier" db:"bonus_points_multiplier"`
	FreeDelivery          bool            `json:"free_delivery" db:"free_delivery"`
	PriorityService       bool            `json:"priority_service" db:"priority_service"`
	ExclusiveOffers       bool            `json:"exclusive_offers" db:"exclusive_offers"`
	ColorCode             string          `json:"color_code" db:"color_code"`
	Active                bool            `json:"active" db:"active"`
}

// LedgerEntry is one immutable point movement. Corrections are additional
// entries, never mutations; RemainingPoints and Active are the only fields the
// store maintains after append (FIFO consumption bookkeeping).
type LedgerEntry struct {
	EntryID         int64               `json:"entry_id" db:"entry_id"`
	TenantID        int64               `json:"tenant_id" db:"tenant_id"`
	CustomerID      int64               `json:"customer_id" db:"customer_id"`
	Kind            EntryKind           `json:"kind" db:"kind"`
	PointsDelta     int64               `json:"points_delta" db:"points_delta"`
	RemainingPoints int64               `json:"remaining_points" db:"remaining_points"`
	CurrencyAmount  decimal.NullDecimal `json:"currency_amount,omitempty" db:"currency_amount"`
	BillID          sql.NullInt64       `json:"bill_id,omitempty" db:"bill_id"`
	RewardID        sql.NullInt64       `json:"reward_id,omitempty" db:"reward_id"`
	Reason          string              `json:"reason" db:"reason"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	ExpiresAt       sql.NullTime        `json:"expires_at,omitempty" db:"expires_at"`
	Active          bool                `json:"active" db:"active"`
}

// Positive reports whether the entry adds spendable points.
func (e *LedgerEntry) Positive() bool {
	return e.PointsDelta > 0
}

// Expired reports whether the entry's points are past their expiry as of now.
func (e *LedgerEntry) Expired(now time.Time) bool {
	return e.ExpiresAt.Valid && !e.ExpiresAt.Time.After(now)
}

// CountsTowardLifetime reports whether the entry's delta feeds lifetime_points.
func (e *LedgerEntry) CountsTowardLifetime() bool {
	switch e.Kind {
	case EntryEarn, EntryBonus, EntryReferral:
		return e.PointsDelta > 0
	}
	return false
}

// CustomerLoyaltyState is the derived per-customer aggregate row. It is
// created on enrollment and never deleted; deactivation flips Active.
type CustomerLoyaltyState struct {
	TenantID            int64           `json:"tenant_id" db:"tenant_id"`
	CustomerID          int64           `json:"customer_id" db:"customer_id"`
	AvailablePoints     int64           `json:"available_points" db:"available_points"`
	LifetimePoints      int64           `json:"lifetime_points" db:"lifetime_points"`
	TotalSpent          decimal.Decimal `json:"total_spent" db:"total_spent"`
	TotalPurchases      int64           `json:"total_purchases" db:"total_purchases"`
	TierLevel           TierLevel       `json:"tier_level" db:"tier_level"`
	TierPointsThreshold int64           `json:"tier_points_threshold" db:"tier_points_threshold"`
	JoinDate            time.Time       `json:"join_date" db:"join_date"`
	LastActivity        time.Time       `json:"last_activity" db:"last_activity"`
	Birthday            sql.NullTime    `json:"birthday,omitempty" db:"birthday"`
	AnniversaryDate     sql.NullTime    `json:"anniversary_date,omitempty" db:"anniversary_date"`
	ReferralCode        string          `json:"referral_code" db:"referral_code"`
	ReferredBy          sql.NullInt64   `json:"referred_by_customer_id,omitempty" db:"referred_by_customer_id"`
	Active              bool            `json:"active" db:"active"`
}
