package postgres

import (
	"context"
	"time"

	"github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	loyaltysvc "github.com/aykha18/tajir-loyalty/internal/service/loyalty"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LoyaltyStore bundles the loyalty repositories behind the coordinator's
// storage interface. InCustomerTx owns the transaction lifecycle; everything
// the callback touches rides the same pgx.Tx.
type LoyaltyStore struct {
	db      *DB
	states  *CustomerStateRepository
	ledger  *LedgerRepository
	rewards *RewardRepository
}

func NewLoyaltyStore(pool *pgxpool.Pool) *LoyaltyStore {
	return &LoyaltyStore{
		db:      NewDB(pool),
		states:  NewCustomerStateRepository(pool),
		ledger:  NewLedgerRepository(pool),
		rewards: NewRewardRepository(pool),
	}
}

func (s *LoyaltyStore) State(ctx context.Context, tenantID, customerID int64) (*loyalty.CustomerLoyaltyState, error) {
	return s.states.Find(ctx, tenantID, customerID)
}

func (s *LoyaltyStore) LedgerPage(ctx context.Context, tenantID, customerID int64, limit, offset int) ([]loyalty.LedgerEntry, error) {
	return s.ledger.ListPage(ctx, tenantID, customerID, limit, offset)
}

func (s *LoyaltyStore) BillCustomers(ctx context.Context, tenantID, billID int64) ([]int64, error) {
	return s.ledger.BillCustomers(ctx, tenantID, billID)
}

func (s *LoyaltyStore) CustomersWithExpired(ctx context.Context, tenantID int64, asOf time.Time) ([]int64, error) {
	return s.ledger.CustomersWithExpired(ctx, tenantID, asOf)
}

// InCustomerTx runs fn inside one REPEATABLE READ transaction holding the
// per-(tenant, customer) advisory lock. Rollback on error, commit otherwise.
func (s *LoyaltyStore) InCustomerTx(ctx context.Context, tenantID, customerID int64, fn func(ctx context.Context, tx loyaltysvc.Tx) error) error {
	tx, err := s.db.BeginCustomerTx(ctx, tenantID, customerID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &storeTx{store: s, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return MapError(err)
	}

	return nil
}

// storeTx adapts one open pgx.Tx to the coordinator's transactional interface.
type storeTx struct {
	store *LoyaltyStore
	tx    pgx.Tx
}

func (t *storeTx) State(ctx context.Context, tenantID, customerID int64) (*loyalty.CustomerLoyaltyState, error) {
	return t.store.states.FindForUpdateWithTx(ctx, t.tx, tenantID, customerID)
}

func (t *storeTx) CreateState(ctx context.Context, st *loyalty.CustomerLoyaltyState) error {
	return t.store.states.CreateWithTx(ctx, t.tx, st)
}

func (t *storeTx) SaveState(ctx context.Context, st *loyalty.CustomerLoyaltyState) error {
	return t.store.states.SaveWithTx(ctx, t.tx, st)
}

func (t *storeTx) StateByReferralCode(ctx context.Context, tenantID int64, code string) (*loyalty.CustomerLoyaltyState, error) {
	return t.store.states.FindByReferralCodeWithTx(ctx, t.tx, tenantID, code)
}

func (t *storeTx) ReferralCodeExists(ctx context.Context, tenantID int64, code string) (bool, error) {
	return t.store.states.ReferralCodeExistsWithTx(ctx, t.tx, tenantID, code)
}

func (t *storeTx) Append(ctx context.Context, e *loyalty.LedgerEntry) error {
	return t.store.ledger.AppendWithTx(ctx, t.tx, e)
}

func (t *storeTx) ActivePositiveEntries(ctx context.Context, tenantID, customerID int64, asOf time.Time) ([]loyalty.LedgerEntry, error) {
	return t.store.ledger.ActivePositiveEntriesWithTx(ctx, t.tx, tenantID, customerID, asOf)
}

func (t *storeTx) ExpiredPositiveEntries(ctx context.Context, tenantID, customerID int64, asOf time.Time) ([]loyalty.LedgerEntry, error) {
	return t.store.ledger.ExpiredPositiveEntriesWithTx(ctx, t.tx, tenantID, customerID, asOf)
}

func (t *storeTx) Consume(ctx context.Context, entryID, points int64) error {
	return t.store.ledger.ConsumeWithTx(ctx, t.tx, entryID, points)
}

func (t *storeTx) Sums(ctx context.Context, tenantID, customerID int64, asOf time.Time) (int64, int64, error) {
	return t.store.ledger.SumsWithTx(ctx, t.tx, tenantID, customerID, asOf)
}

func (t *storeTx) EntriesForBill(ctx context.Context, tenantID, billID int64) ([]loyalty.LedgerEntry, error) {
	return t.store.ledger.EntriesForBillWithTx(ctx, t.tx, tenantID, billID)
}

func (t *storeTx) HasBonusInYear(ctx context.Context, tenantID, customerID int64, reason string, year int) (bool, error) {
	return t.store.ledger.HasBonusInYearWithTx(ctx, t.tx, tenantID, customerID, reason, year)
}

func (t *storeTx) HasReferralFor(ctx context.Context, tenantID, customerID int64) (bool, error) {
	return t.store.ledger.HasReferralForWithTx(ctx, t.tx, tenantID, customerID)
}

func (t *storeTx) Reward(ctx context.Context, tenantID, rewardID int64) (*reward.Reward, error) {
	return t.store.rewards.FindByIDWithTx(ctx, t.tx, tenantID, rewardID)
}

func (t *storeTx) CreateRedemption(ctx context.Context, rec *reward.RedemptionRecord) error {
	return t.store.rewards.CreateRedemptionWithTx(ctx, t.tx, rec)
}
