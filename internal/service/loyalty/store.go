package loyalty

import (
	"context"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
)

// Tx is the transactional slice of storage the coordinator works against.
// Every method runs inside one REPEATABLE READ transaction already holding
// the per-(tenant, customer) advisory lock.
type Tx interface {
	// Customer state
	State(ctx context.Context, tenantID, customerID int64) (*domain.CustomerLoyaltyState, error)
	CreateState(ctx context.Context, st *domain.CustomerLoyaltyState) error
	SaveState(ctx context.Context, st *domain.CustomerLoyaltyState) error
	StateByReferralCode(ctx context.Context, tenantID int64, code string) (*domain.CustomerLoyaltyState, error)
	ReferralCodeExists(ctx context.Context, tenantID int64, code string) (bool, error)

	// Ledger
	Append(ctx context.Context, e *domain.LedgerEntry) error
	ActivePositiveEntries(ctx context.Context, tenantID, customerID int64, asOf time.Time) ([]domain.LedgerEntry, error)
	ExpiredPositiveEntries(ctx context.Context, tenantID, customerID int64, asOf time.Time) ([]domain.LedgerEntry, error)
	Consume(ctx context.Context, entryID, points int64) error
	Sums(ctx context.Context, tenantID, customerID int64, asOf time.Time) (available, lifetime int64, err error)
	EntriesForBill(ctx context.Context, tenantID, billID int64) ([]domain.LedgerEntry, error)
	HasBonusInYear(ctx context.Context, tenantID, customerID int64, reason string, year int) (bool, error)
	HasReferralFor(ctx context.Context, tenantID, customerID int64) (bool, error)

	// Rewards
	Reward(ctx context.Context, tenantID, rewardID int64) (*reward.Reward, error)
	CreateRedemption(ctx context.Context, rec *reward.RedemptionRecord) error
}

// Store opens coordinator transactions and serves the read-only paths that
// need no locking.
type Store interface {
	State(ctx context.Context, tenantID, customerID int64) (*domain.CustomerLoyaltyState, error)
	LedgerPage(ctx context.Context, tenantID, customerID int64, limit, offset int) ([]domain.LedgerEntry, error)
	BillCustomers(ctx context.Context, tenantID, billID int64) ([]int64, error)
	CustomersWithExpired(ctx context.Context, tenantID int64, asOf time.Time) ([]int64, error)

	// InCustomerTx runs fn inside one storage transaction serialized per
	// (tenant, customer). On error the transaction rolls back and no ledger
	// entry is persisted.
	InCustomerTx(ctx context.Context, tenantID, customerID int64, fn func(ctx context.Context, tx Tx) error) error
}

// ConfigProvider and TierProvider are the read-mostly catalogs the
// coordinator consults; both may serve cached snapshots.
type ConfigProvider interface {
	Get(ctx context.Context, tenantID int64) (domain.LoyaltyConfig, error)
}

type TierProvider interface {
	ListActive(ctx context.Context, tenantID int64) ([]domain.Tier, error)
}
