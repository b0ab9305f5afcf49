package loyalty

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	"github.com/aykha18/tajir-loyalty/internal/domain/reward"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"
)

// memStore is an in-memory Store/Tx used by the coordinator tests. The mutex
// stands in for the per-customer serialization; entries follow the same
// remaining/active bookkeeping as the SQL store.
type memStore struct {
	mu          sync.Mutex
	states      map[[2]int64]*domain.CustomerLoyaltyState
	entries     []*domain.LedgerEntry
	nextEntryID int64
	rewards     map[int64]*reward.Reward
	redemptions []*reward.RedemptionRecord
}

func newMemStore() *memStore {
	return &memStore{
		states:  make(map[[2]int64]*domain.CustomerLoyaltyState),
		rewards: make(map[int64]*reward.Reward),
	}
}

func copyState(st *domain.CustomerLoyaltyState) *domain.CustomerLoyaltyState {
	cp := *st
	return &cp
}

func (m *memStore) State(ctx context.Context, tenantID, customerID int64) (*domain.CustomerLoyaltyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findState(tenantID, customerID)
}

func (m *memStore) findState(tenantID, customerID int64) (*domain.CustomerLoyaltyState, error) {
	st, ok := m.states[[2]int64{tenantID, customerID}]
	if !ok {
		return nil, xerrors.ErrCustomerNotEnrolled
	}
	return copyState(st), nil
}

func (m *memStore) LedgerPage(ctx context.Context, tenantID, customerID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.LedgerEntry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		if e.TenantID == tenantID && e.CustomerID == customerID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) BillCustomers(ctx context.Context, tenantID, billID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[int64]bool{}
	ids := []int64{}
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.BillID.Valid && e.BillID.Int64 == billID && !seen[e.CustomerID] {
			seen[e.CustomerID] = true
			ids = append(ids, e.CustomerID)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

func (m *memStore) CustomersWithExpired(ctx context.Context, tenantID int64, asOf time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[int64]bool{}
	ids := []int64{}
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.PointsDelta > 0 && e.Active && e.Expired(asOf) && !seen[e.CustomerID] {
			seen[e.CustomerID] = true
			ids = append(ids, e.CustomerID)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

func (m *memStore) InCustomerTx(ctx context.Context, tenantID, customerID int64, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memTx{store: m})
}

type memTx struct {
	store *memStore
}

func (t *memTx) State(ctx context.Context, tenantID, customerID int64) (*domain.CustomerLoyaltyState, error) {
	return t.store.findState(tenantID, customerID)
}

func (t *memTx) CreateState(ctx context.Context, st *domain.CustomerLoyaltyState) error {
	key := [2]int64{st.TenantID, st.CustomerID}
	if _, ok := t.store.states[key]; ok {
		return xerrors.ErrDuplicateEntry
	}
	t.store.states[key] = copyState(st)
	return nil
}

func (t *memTx) SaveState(ctx context.Context, st *domain.CustomerLoyaltyState) error {
	key := [2]int64{st.TenantID, st.CustomerID}
	if _, ok := t.store.states[key]; !ok {
		return xerrors.ErrCustomerNotEnrolled
	}
	t.store.states[key] = copyState(st)
	return nil
}

func (t *memTx) StateByReferralCode(ctx context.Context, tenantID int64, code string) (*domain.CustomerLoyaltyState, error) {
	for _, st := range t.store.states {
		if st.TenantID == tenantID && st.ReferralCode == code {
			return copyState(st), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (t *memTx) ReferralCodeExists(ctx context.Context, tenantID int64, code string) (bool, error) {
	for _, st := range t.store.states {
		if st.TenantID == tenantID && st.ReferralCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Append(ctx context.Context, e *domain.LedgerEntry) error {
	t.store.nextEntryID++
	e.EntryID = t.store.nextEntryID
	if e.PointsDelta > 0 {
		e.RemainingPoints = e.PointsDelta
	} else {
		e.RemainingPoints = 0
	}
	e.Active = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	t.store.entries = append(t.store.entries, &cp)
	return nil
}

func (t *memTx) ActivePositiveEntries(ctx context.Context, tenantID, customerID int64, asOf time.Time) ([]domain.LedgerEntry, error) {
	out := []domain.LedgerEntry{}
	for _, e := range t.store.entries {
		if e.TenantID == tenantID && e.CustomerID == customerID &&
			e.PointsDelta > 0 && e.Active && !e.Expired(asOf) {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		ea, eb := out[a], out[b]
		switch {
		case ea.ExpiresAt.Valid && eb.ExpiresAt.Valid && !ea.ExpiresAt.Time.Equal(eb.ExpiresAt.Time):
			return ea.ExpiresAt.Time.Before(eb.ExpiresAt.Time)
		case ea.ExpiresAt.Valid != eb.ExpiresAt.Valid:
			return ea.ExpiresAt.Valid
		}
		return ea.EntryID < eb.EntryID
	})
	return out, nil
}

func (t *memTx) ExpiredPositiveEntries(ctx context.Context, tenantID, customerID int64, asOf time.Time) ([]domain.LedgerEntry, error) {
	out := []domain.LedgerEntry{}
	for _, e := range t.store.entries {
		if e.TenantID == tenantID && e.CustomerID == customerID &&
			e.PointsDelta > 0 && e.Active && e.Expired(asOf) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (t *memTx) Consume(ctx context.Context, entryID, points int64) error {
	for _, e := range t.store.entries {
		if e.EntryID != entryID {
			continue
		}
		if e.RemainingPoints < points {
			return fmt.Errorf("entry %d has fewer than %d points remaining", entryID, points)
		}
		e.RemainingPoints -= points
		e.Active = e.RemainingPoints > 0
		return nil
	}
	return xerrors.ErrNotFound
}

func (t *memTx) Sums(ctx context.Context, tenantID, customerID int64, asOf time.Time) (int64, int64, error) {
	var available, lifetime int64
	for _, e := range t.store.entries {
		if e.TenantID != tenantID || e.CustomerID != customerID {
			continue
		}
		if e.PointsDelta > 0 && e.Active && !e.Expired(asOf) {
			available += e.RemainingPoints
		}
		if e.CountsTowardLifetime() {
			lifetime += e.PointsDelta
		}
		if e.Kind == domain.EntryAdjust && e.PointsDelta < 0 && domain.IsReversalReason(e.Reason) {
			lifetime += e.PointsDelta
		}
	}
	if lifetime < 0 {
		lifetime = 0
	}
	return available, lifetime, nil
}

func (t *memTx) EntriesForBill(ctx context.Context, tenantID, billID int64) ([]domain.LedgerEntry, error) {
	out := []domain.LedgerEntry{}
	for _, e := range t.store.entries {
		if e.TenantID == tenantID && e.BillID.Valid && e.BillID.Int64 == billID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (t *memTx) HasBonusInYear(ctx context.Context, tenantID, customerID int64, reason string, year int) (bool, error) {
	for _, e := range t.store.entries {
		if e.TenantID == tenantID && e.CustomerID == customerID &&
			e.Kind == domain.EntryBonus && e.Reason == reason && e.CreatedAt.Year() == year {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) HasReferralFor(ctx context.Context, tenantID, customerID int64) (bool, error) {
	for _, e := range t.store.entries {
		if e.TenantID == tenantID && e.CustomerID == customerID &&
			e.Kind == domain.EntryReferral && e.Reason == domain.ReasonReferralWelcome {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Reward(ctx context.Context, tenantID, rewardID int64) (*reward.Reward, error) {
	rw, ok := t.store.rewards[rewardID]
	if !ok || rw.TenantID != tenantID || !rw.Active {
		return nil, xerrors.ErrNotFound
	}
	cp := *rw
	return &cp, nil
}

func (t *memTx) CreateRedemption(ctx context.Context, rec *reward.RedemptionRecord) error {
	cp := *rec
	t.store.redemptions = append(t.store.redemptions, &cp)
	return nil
}
