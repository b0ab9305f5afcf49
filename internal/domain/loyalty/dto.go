package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// Warning flags a sub-step that was suppressed or reduced without failing the
// bill. Warnings ride on a successful outcome; they are not errors.
type Warning string

const (
	WarnProgramDisabled       Warning = "ProgramDisabled"
	WarnBelowMinPurchase      Warning = "BelowMinPurchase"
	WarnBelowMinRedeem        Warning = "BelowMinRedeem"
	WarnInsufficientPoints    Warning = "InsufficientPoints"
	WarnCapApplied            Warning = "CapApplied"
	WarnRewardInactive        Warning = "RewardInactive"
	WarnRewardOutOfWindow     Warning = "RewardOutOfWindow"
	WarnReferralNotApplicable Warning = "ReferralNotApplicable"
	WarnDuplicateBill         Warning = "DuplicateBill"
)

// BillLoyaltyRequest is the coordinator's input for one finalized bill.
type BillLoyaltyRequest struct {
	TenantID              int64           `json:"tenant_id"`
	CustomerID            int64           `json:"customer_id"`
	BillID                int64           `json:"bill_id"`
	BillSubtotal          decimal.Decimal `json:"bill_subtotal"`
	BillTotal             decimal.Decimal `json:"bill_total"`
	RequestedRedeemPoints *int64          `json:"requested_redeem_points,omitempty"`
	RewardID              *int64          `json:"reward_id,omitempty"`
	ReferralCodePresented string          `json:"referral_code,omitempty"`
	Now                   time.Time       `json:"now"`
}

// BillLoyaltyOutcome is the net effect of applying loyalty to one bill.
type BillLoyaltyOutcome struct {
	EnrolledNow         bool            `json:"enrolled_now"`
	PointsEarned        int64           `json:"points_earned"`
	PointsRedeemed      int64           `json:"points_redeemed"`
	CurrencyDiscount    decimal.Decimal `json:"currency_discount_applied"`
	TierBefore          TierLevel       `json:"tier_before"`
	TierAfter           TierLevel       `json:"tier_after"`
	NewAvailablePoints  int64           `json:"new_available_points"`
	NewLifetimePoints   int64           `json:"new_lifetime_points"`
	Warnings            []Warning       `json:"warnings,omitempty"`
}

func (o *BillLoyaltyOutcome) Warn(w Warning) {
	o.Warnings = append(o.Warnings, w)
}

// EnrollInput carries the optional enrollment attributes.
type EnrollInput struct {
	Birthday        *time.Time `json:"birthday,omitempty"`
	AnniversaryDate *time.Time `json:"anniversary_date,omitempty"`
	ReferralCode    string     `json:"referral_code,omitempty"`
}

// ConfigPatch is a partial update of LoyaltyConfig; nil fields keep their
// current values.
type ConfigPatch struct {
	Enabled               *bool            `json:"enabled,omitempty"`
	ProgramName           *string          `json:"program_name,omitempty"`
	PointsPerCurrencyUnit *decimal.Decimal `json:"points_per_currency_unit,omitempty"`
	CurrencyPerPoint      *decimal.Decimal `json:"currency_per_point,omitempty"`
	MinPointsToRedeem     *int64           `json:"min_points_to_redeem,omitempty"`
	MaxRedemptionPercent  *int             `json:"max_redemption_percent,omitempty"`
	BirthdayBonus         *int64           `json:"birthday_bonus,omitempty"`
	AnniversaryBonus      *int64           `json:"anniversary_bonus,omitempty"`
	ReferralBonus         *int64           `json:"referral_bonus,omitempty"`
	MinPurchaseAmount     *decimal.Decimal `json:"min_purchase_amount,omitempty"`
	PointsExpiryDays      *int             `json:"points_expiry_days,omitempty"`
	EarnOnDiscountedTotal *bool            `json:"earn_on_discounted_total,omitempty"`
}

// ReversalSummary reports the compensating entries appended for a voided bill.
type ReversalSummary struct {
	BillID           int64   `json:"bill_id"`
	AlreadyReversed  bool    `json:"already_reversed"`
	EntriesReversed  int     `json:"entries_reversed"`
	PointsRestored   int64   `json:"points_restored"`
	PointsClawedBack int64   `json:"points_clawed_back"`
	CustomersTouched []int64 `json:"customers_touched,omitempty"`
}

// CustomerLoyaltyView is the read model for the customer loyalty screen:
// state, the perks of the current tier and a recent ledger page.
type CustomerLoyaltyView struct {
	State         CustomerLoyaltyState `json:"state"`
	Tier          *Tier                `json:"tier,omitempty"`
	RecentEntries []LedgerEntry        `json:"recent_entries"`
}
