package loyalty

import (
	"testing"

	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func catalog(thresholds map[TierLevel]int64) []Tier {
	tiers := make([]Tier, 0, len(thresholds))
	for level, threshold := range thresholds {
		tiers = append(tiers, Tier{
			Level:                 level,
			PointsThreshold:       threshold,
			BonusPointsMultiplier: decimal.NewFromInt(1),
			Active:                true,
		})
	}
	return tiers
}

func TestTierFor(t *testing.T) {
	tiers := catalog(map[TierLevel]int64{
		TierBronze: 0,
		TierSilver: 1000,
		TierGold:   5000,
	})

	cases := []struct {
		lifetime int64
		want     TierLevel
	}{
		{0, TierBronze},
		{999, TierBronze},
		{1000, TierSilver},
		{4999, TierSilver},
		{5000, TierGold},
		{100000, TierGold},
	}
	for _, tc := range cases {
		got, ok := TierFor(tc.lifetime, tiers)
		require.True(t, ok)
		require.Equal(t, tc.want, got.Level, "lifetime %d", tc.lifetime)
	}
}

func TestTierForSkipsInactive(t *testing.T) {
	tiers := catalog(map[TierLevel]int64{TierBronze: 0, TierSilver: 1000})
	for i := range tiers {
		if tiers[i].Level == TierSilver {
			tiers[i].Active = false
		}
	}

	got, ok := TierFor(2000, tiers)
	require.True(t, ok)
	require.Equal(t, TierBronze, got.Level)
}

func TestTierForEmptyCatalog(t *testing.T) {
	_, ok := TierFor(100, nil)
	require.False(t, ok)
}

func TestNextThreshold(t *testing.T) {
	tiers := catalog(map[TierLevel]int64{
		TierBronze: 0,
		TierSilver: 1000,
		TierGold:   5000,
	})

	bronze, _ := TierFor(0, tiers)
	require.Equal(t, int64(1000), NextThreshold(bronze, tiers))

	silver, _ := TierFor(1500, tiers)
	require.Equal(t, int64(5000), NextThreshold(silver, tiers))

	// Top of the catalog points at itself.
	gold, _ := TierFor(9000, tiers)
	require.Equal(t, int64(5000), NextThreshold(gold, tiers))
}

func TestValidateCatalog(t *testing.T) {
	require.NoError(t, ValidateCatalog(catalog(map[TierLevel]int64{
		TierBronze: 0,
		TierSilver: 1000,
		TierGold:   5000,
	})))

	// Thresholds must increase along the tier order.
	err := ValidateCatalog(catalog(map[TierLevel]int64{
		TierBronze: 0,
		TierSilver: 5000,
		TierGold:   1000,
	}))
	require.ErrorIs(t, err, xerrors.ErrInvalidTierCatalog)

	// Exactly one entry tier at threshold zero.
	err = ValidateCatalog(catalog(map[TierLevel]int64{
		TierBronze: 100,
		TierSilver: 1000,
	}))
	require.ErrorIs(t, err, xerrors.ErrInvalidTierCatalog)

	// An empty catalog is allowed (the tenant has not configured tiers yet).
	require.NoError(t, ValidateCatalog(nil))
}

func TestSortTiers(t *testing.T) {
	tiers := catalog(map[TierLevel]int64{
		TierGold:   5000,
		TierBronze: 0,
		TierSilver: 1000,
	})
	SortTiers(tiers)

	require.Equal(t, TierBronze, tiers[0].Level)
	require.Equal(t, TierSilver, tiers[1].Level)
	require.Equal(t, TierGold, tiers[2].Level)
}
