package loyalty

import (
	"fmt"
	"strings"
)

// Ledger entry reasons. Bonus guards and reversal detection match on these
// exact strings, so they are fixed here rather than free-typed at call sites.
const (
	ReasonBillEarn        = "bill_earn"
	ReasonBillRecorded    = "bill_recorded"
	ReasonRedeem          = "redeem"
	ReasonBirthday        = "birthday"
	ReasonAnniversary     = "anniversary"
	ReasonReferralWelcome = "referral_welcome"
	ReasonTierUp          = "tier_up"
	ReasonExpired         = "expired"

	reversalPrefix       = "reversal:"
	referralRewardPrefix = "referral_reward:"
)

// ReasonReferralReward marks the referrer's bonus entry with the referred
// customer it rewards.
func ReasonReferralReward(referredCustomerID int64) string {
	return fmt.Sprintf("%s%d", referralRewardPrefix, referredCustomerID)
}

// ReasonReversal marks a compensating adjust entry with the voided bill.
func ReasonReversal(billID int64) string {
	return fmt.Sprintf("%s%d", reversalPrefix, billID)
}

// IsReversalReason reports whether the entry reason marks a bill reversal.
func IsReversalReason(reason string) bool {
	return strings.HasPrefix(reason, reversalPrefix)
}

// ReasonRedeemAgainst records which positive entries a redemption consumed.
func ReasonRedeemAgainst(entryIDs []int64) string {
	if len(entryIDs) == 0 {
		return ReasonRedeem
	}
	parts := make([]string, len(entryIDs))
	for i, id := range entryIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return ReasonRedeem + ":" + strings.Join(parts, ",")
}
