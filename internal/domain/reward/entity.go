package reward

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type RewardType string

const (
	TypeDiscountPercent RewardType = "discount_percent"
	TypeDiscountAmount  RewardType = "discount_amount"
	TypeFreeItem        RewardType = "free_item"
)

func (t RewardType) Valid() bool {
	switch t {
	case TypeDiscountPercent, TypeDiscountAmount, TypeFreeItem:
		return true
	}
	return false
}

// Reward is a curated catalog item that costs points. Value holds the percent
// for discount_percent rewards and the currency amount for discount_amount
// rewards; free_item rewards carry the item name instead.
type Reward struct {
	RewardID   int64           `json:"reward_id" db:"reward_id"`
	TenantID   int64           `json:"tenant_id" db:"tenant_id"`
	Name       string          `json:"name" db:"name"`
	Type       RewardType      `json:"type" db:"reward_type"`
	PointsCost int64           `json:"points_cost" db:"points_cost"`
	Value      decimal.Decimal `json:"value" db:"value"`
	ItemName   sql.NullString  `json:"item_name,omitempty" db:"item_name"`
	Tags       []string        `json:"tags,omitempty" db:"tags"`
	Active     bool            `json:"active" db:"active"`
	ValidFrom  sql.NullTime    `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil sql.NullTime    `json:"valid_until,omitempty" db:"valid_until"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// InWindow reports whether the reward may be redeemed at the given instant.
func (r *Reward) InWindow(now time.Time) bool {
	if r.ValidFrom.Valid && now.Before(r.ValidFrom.Time) {
		return false
	}
	if r.ValidUntil.Valid && now.After(r.ValidUntil.Time) {
		return false
	}
	return true
}

// PersonalizedOffer targets one customer, or every customer of the tenant
// when CustomerID is null (broadcast).
type PersonalizedOffer struct {
	OfferID     int64           `json:"offer_id" db:"offer_id"`
	TenantID    int64           `json:"tenant_id" db:"tenant_id"`
	CustomerID  sql.NullInt64   `json:"customer_id,omitempty" db:"customer_id"`
	Title       string          `json:"title" db:"title"`
	Type        RewardType      `json:"type" db:"offer_type"`
	Discount    decimal.Decimal `json:"discount" db:"discount"`
	MinPurchase decimal.Decimal `json:"min_purchase" db:"min_purchase"`
	ValidFrom   time.Time       `json:"valid_from" db:"valid_from"`
	ValidUntil  time.Time       `json:"valid_until" db:"valid_until"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	IsUsed      bool            `json:"is_used" db:"is_used"`
	UsedBy      sql.NullInt64   `json:"used_by_customer_id,omitempty" db:"used_by_customer_id"`
	UsedBillID  sql.NullInt64   `json:"used_bill_id,omitempty" db:"used_bill_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// RedemptionRecord is the immutable trail of a reward being cashed in.
type RedemptionRecord struct {
	ID               int64           `json:"id" db:"id"`
	Reference        string          `json:"reference" db:"reference"`
	TenantID         int64           `json:"tenant_id" db:"tenant_id"`
	RewardID         sql.NullInt64   `json:"reward_id,omitempty" db:"reward_id"`
	CustomerID       int64           `json:"customer_id" db:"customer_id"`
	BillID           sql.NullInt64   `json:"bill_id,omitempty" db:"bill_id"`
	PointsUsed       int64           `json:"points_used" db:"points_used"`
	CurrencyDiscount decimal.Decimal `json:"currency_discount" db:"currency_discount"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}
