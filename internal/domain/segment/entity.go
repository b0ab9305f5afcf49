package segment

import (
	"time"

	"github.com/google/uuid"
)

type Label string

const (
	LabelLoyalVIPs        Label = "Loyal VIPs"
	LabelRegularCustomers Label = "Regular Customers"
	LabelAtRiskCustomers  Label = "At-Risk Customers"
	LabelNewCustomers     Label = "New Customers"
	LabelOccasionalBuyers Label = "Occasional Buyers"
)

// RankedLabels is the closed label set in value order: clusters ranked by
// mean customer-value score descending receive these labels in sequence.
var RankedLabels = []Label{
	LabelLoyalVIPs,
	LabelRegularCustomers,
	LabelAtRiskCustomers,
	LabelNewCustomers,
	LabelOccasionalBuyers,
}

// Recommendations is the fixed, curated action list per label.
var Recommendations = map[Label][]string{
	LabelLoyalVIPs: {
		"Offer exclusive loyalty programs",
		"Provide early access to new collections",
		"Assign a dedicated account manager",
		"Send invitations to special events",
	},
	LabelRegularCustomers: {
		"Enroll in the loyalty program",
		"Promote product bundles",
		"Request feedback and reviews",
	},
	LabelAtRiskCustomers: {
		"Send re-engagement offers",
		"Run win-back promotions",
	},
	LabelNewCustomers: {
		"Send a welcome package",
		"Offer first-time purchase discounts",
		"Guide through onboarding",
	},
	LabelOccasionalBuyers: {
		"Promote seasonal campaigns",
		"Cross-sell related products",
		"Add to the newsletter",
		"Encourage referrals",
	},
}

type CustomerType string

const (
	CustomerIndividual CustomerType = "individual"
	CustomerBusiness   CustomerType = "business"
)

// neverOrderedSentinel stands in for recency and order gaps when a customer
// has too little history to measure them.
const NeverOrderedSentinel = 999

// CustomerFeatures is the raw per-customer input extracted from bills.
type CustomerFeatures struct {
	CustomerID         int64        `json:"customer_id" db:"customer_id"`
	TotalOrders        int64        `json:"total_orders" db:"total_orders"`
	TotalSpent         float64      `json:"total_spent" db:"total_spent"`
	AvgOrderValue      float64      `json:"avg_order_value" db:"avg_order_value"`
	DaysSinceLastOrder float64      `json:"days_since_last_order" db:"days_since_last_order"`
	LifetimeDays       float64      `json:"customer_lifetime_days" db:"customer_lifetime_days"`
	CustomerType       CustomerType `json:"customer_type" db:"customer_type"`
}

// Assignment is one customer's computed segment.
type Assignment struct {
	CustomerID int64   `json:"customer_id"`
	Label      Label   `json:"segment_label"`
	Cluster    int     `json:"cluster"`
	ValueScore float64 `json:"customer_value_score"`
	Recency    float64 `json:"recency"`
	Frequency  float64 `json:"frequency"`
	Monetary   float64 `json:"monetary"`
}

// Insight aggregates one segment.
type Insight struct {
	Label           Label    `json:"segment_label"`
	Count           int      `json:"count"`
	TotalMonetary   float64  `json:"total_monetary"`
	AvgOrderValue   float64  `json:"avg_order_value"`
	AvgFrequency    float64  `json:"avg_frequency"`
	AvgRecency      float64  `json:"avg_recency"`
	Recommendations []string `json:"recommendations"`
}

// Model is the fitted scaler and centroids, kept per tenant so single-customer
// predictions reuse the exact fit that produced the cached assignments.
type Model struct {
	Mean      []float64   `json:"mean"`
	Std       []float64   `json:"std"`
	Centroids [][]float64 `json:"centroids"`
	Labels    []Label     `json:"labels"`
}

// Result is one completed segmentation run.
type Result struct {
	TenantID    int64        `json:"tenant_id"`
	RunID       uuid.UUID    `json:"run_id"`
	Fingerprint string       `json:"fingerprint"`
	GeneratedAt time.Time    `json:"generated_at"`
	Assignments []Assignment `json:"assignments"`
	Insights    []Insight    `json:"insights"`
	Model       Model        `json:"model"`
}
