package loyalty

import (
	"context"
	"fmt"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/loyalty"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TierRepository is the persistence slice TierService needs.
type TierRepository interface {
	ListByTenant(ctx context.Context, tenantID int64, activeOnly bool) ([]domain.Tier, error)
	Upsert(ctx context.Context, t *domain.Tier) error
}

// TierService manages the per-tenant tier catalog.
type TierService struct {
	repo   TierRepository
	logger *zap.Logger
}

func NewTierService(repo TierRepository, logger *zap.Logger) *TierService {
	return &TierService{repo: repo, logger: logger}
}

// List returns all tiers of the tenant ascending by threshold.
func (s *TierService) List(ctx context.Context, tenantID int64) ([]domain.Tier, error) {
	return s.repo.ListByTenant(ctx, tenantID, false)
}

// ListActive returns the active tiers, the set tier assignment runs against.
func (s *TierService) ListActive(ctx context.Context, tenantID int64) ([]domain.Tier, error) {
	return s.repo.ListByTenant(ctx, tenantID, true)
}

// Upsert validates that the catalog invariants hold after the proposed
// change, then persists it. The validation runs against the would-be catalog,
// so an upsert that removes the entry tier or reorders thresholds is refused
// before anything is written.
func (s *TierService) Upsert(ctx context.Context, t domain.Tier) error {
	if !t.Level.Valid() {
		return fmt.Errorf("%w: unknown tier level %q", xerrors.ErrInvalidInput, t.Level)
	}
	if t.BonusPointsMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: bonus_points_multiplier must be >= 1", xerrors.ErrInvalidInput)
	}
	if t.PointsThreshold < 0 {
		return fmt.Errorf("%w: points_threshold must be >= 0", xerrors.ErrInvalidInput)
	}

	current, err := s.repo.ListByTenant(ctx, t.TenantID, false)
	if err != nil {
		return err
	}

	proposed := make([]domain.Tier, 0, len(current)+1)
	replaced := false
	for _, existing := range current {
		if existing.Level == t.Level {
			proposed = append(proposed, t)
			replaced = true
			continue
		}
		proposed = append(proposed, existing)
	}
	if !replaced {
		proposed = append(proposed, t)
	}

	if err := domain.ValidateCatalog(proposed); err != nil {
		return err
	}

	if err := s.repo.Upsert(ctx, &t); err != nil {
		return err
	}

	s.logger.Info("tier upserted",
		zap.Int64("tenant_id", t.TenantID),
		zap.String("tier_level", string(t.Level)),
		zap.Int64("points_threshold", t.PointsThreshold),
	)

	return nil
}
