package segment

import (
	"context"
	"testing"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/segment"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	feats []domain.CustomerFeatures
}

func (f *fakeSource) CustomerFeatures(ctx context.Context, tenantID int64, now time.Time) ([]domain.CustomerFeatures, error) {
	return f.feats, nil
}

func seedCustomers(n int) []domain.CustomerFeatures {
	feats := make([]domain.CustomerFeatures, n)
	for i := range feats {
		orders := int64(i%10) + 1
		spent := float64((i*37)%700) + 50
		feats[i] = domain.CustomerFeatures{
			CustomerID:         int64(i + 1),
			TotalOrders:        orders,
			TotalSpent:         spent,
			AvgOrderValue:      spent / float64(orders),
			DaysSinceLastOrder: float64((i * 11) % 200),
			LifetimeDays:       float64(100 + i*7),
			CustomerType:       domain.CustomerIndividual,
		}
	}
	return feats
}

func newTestEngine(feats []domain.CustomerFeatures) *Engine {
	return NewEngine(&fakeSource{feats: feats}, nil, time.Hour, zap.NewNop())
}

func TestRunDeterministic(t *testing.T) {
	e := newTestEngine(seedCustomers(50))
	ctx := context.Background()

	first, err := e.Run(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first.Assignments, 50)
	require.NotEmpty(t, first.Insights)

	second, err := e.Run(ctx, 1)
	require.NoError(t, err)

	require.Equal(t, first.Fingerprint, second.Fingerprint)
	require.Equal(t, first.Assignments, second.Assignments)
	require.Equal(t, first.Insights, second.Insights)
	require.Equal(t, first.Model.Centroids, second.Model.Centroids)
}

func TestRunAssignsClosedLabelSet(t *testing.T) {
	e := newTestEngine(seedCustomers(50))

	result, err := e.Run(context.Background(), 1)
	require.NoError(t, err)

	valid := map[domain.Label]bool{}
	for _, l := range domain.RankedLabels {
		valid[l] = true
	}
	for _, a := range result.Assignments {
		require.True(t, valid[a.Label], "unexpected label %q", a.Label)
	}

	for _, ins := range result.Insights {
		require.Positive(t, ins.Count)
		require.NotEmpty(t, ins.Recommendations)
	}
}

func TestRunPredictRoundTrip(t *testing.T) {
	feats := seedCustomers(50)
	e := newTestEngine(feats)
	ctx := context.Background()

	result, err := e.Run(ctx, 1)
	require.NoError(t, err)

	scores := valueScores(feats)
	for i, f := range feats {
		label, err := e.Predict(ctx, 1, featureVector(f, scores[i]))
		require.NoError(t, err)
		require.Equal(t, result.Assignments[i].Label, label, "customer %d", f.CustomerID)
	}
}

func TestRunSmallPopulationFallsBack(t *testing.T) {
	e := newTestEngine(seedCustomers(3))

	result, err := e.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, result.Assignments, 3)
	require.Len(t, result.Model.Centroids, 3)
}

func TestRunEmptyTenant(t *testing.T) {
	e := newTestEngine(nil)

	result, err := e.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, result.Assignments)
	require.Empty(t, result.Insights)
}

func TestPredictWithoutModel(t *testing.T) {
	e := newTestEngine(nil)

	_, err := e.Predict(context.Background(), 1, make([]float64, featureDim))
	require.ErrorIs(t, err, xerrors.ErrNotFound)

	_, err = e.Predict(context.Background(), 1, []float64{1, 2})
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestPercentileRanks(t *testing.T) {
	pct := percentileRanks([]float64{10, 20, 20, 40}, true)
	require.InDelta(t, 0.25, pct[0], 1e-9)
	require.InDelta(t, 0.625, pct[1], 1e-9)
	require.InDelta(t, 0.625, pct[2], 1e-9)
	require.InDelta(t, 1.0, pct[3], 1e-9)

	// Descending flips the ordering: the largest value ranks first.
	pct = percentileRanks([]float64{10, 40}, false)
	require.InDelta(t, 1.0, pct[0], 1e-9)
	require.InDelta(t, 0.5, pct[1], 1e-9)
}

func TestNeverOrderedSentinel(t *testing.T) {
	f := domain.CustomerFeatures{CustomerID: 1, TotalOrders: 0}
	require.Equal(t, float64(domain.NeverOrderedSentinel), recency(f))

	vec := featureVector(f, 0.5)
	require.Equal(t, float64(domain.NeverOrderedSentinel), vec[5]) // cadence
}
