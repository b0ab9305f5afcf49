package segment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/aykha18/tajir-loyalty/internal/domain/segment"
	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/stat"
)

// FeatureSource supplies per-customer purchase history, ordered by customer id.
type FeatureSource interface {
	CustomerFeatures(ctx context.Context, tenantID int64, now time.Time) ([]domain.CustomerFeatures, error)
}

// Engine fits RFM-based k-means segments per tenant. Fitting is CPU-bound, so
// concurrent runs for the same tenant collapse into one and results are cached
// by input fingerprint; the fitted scaler and centroids stay in memory for
// single-customer prediction.
type Engine struct {
	source FeatureSource
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.RWMutex
	models map[int64]*domain.Model
	group  singleflight.Group
}

func NewEngine(source FeatureSource, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		models: make(map[int64]*domain.Model),
	}
}

func resultCacheKey(tenantID int64) string {
	return fmt.Sprintf("segment:result:%d", tenantID)
}

// Run segments every customer of the tenant with purchase history. Unchanged
// input returns the cached run.
func (e *Engine) Run(ctx context.Context, tenantID int64) (*domain.Result, error) {
	v, err, _ := e.group.Do(fmt.Sprintf("run:%d", tenantID), func() (interface{}, error) {
		return e.run(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Result), nil
}

func (e *Engine) run(ctx context.Context, tenantID int64) (*domain.Result, error) {
	now := time.Now()

	feats, err := e.source.CustomerFeatures(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	fingerprint := fingerprintFeatures(feats)

	if cached := e.cachedResult(ctx, tenantID); cached != nil && cached.Fingerprint == fingerprint {
		e.storeModel(tenantID, &cached.Model)
		return cached, nil
	}

	result := e.fit(tenantID, feats, fingerprint, now)
	e.storeModel(tenantID, &result.Model)
	e.cacheResult(ctx, result)

	e.logger.Info("segmentation run complete",
		zap.Int64("tenant_id", tenantID),
		zap.String("run_id", result.RunID.String()),
		zap.Int("customers", len(result.Assignments)),
		zap.Int("segments", len(result.Insights)),
	)

	return result, nil
}

func (e *Engine) fit(tenantID int64, feats []domain.CustomerFeatures, fingerprint string, now time.Time) *domain.Result {
	result := &domain.Result{
		TenantID:    tenantID,
		RunID:       uuid.New(),
		Fingerprint: fingerprint,
		GeneratedAt: now,
		Assignments: []domain.Assignment{},
		Insights:    []domain.Insight{},
	}
	if len(feats) == 0 {
		return result
	}

	scores := valueScores(feats)

	rows := make([][]float64, len(feats))
	for i, f := range feats {
		rows[i] = featureVector(f, scores[i])
	}

	mean, std := fitScaler(rows)
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		scaled[i] = applyScaler(row, mean, std)
	}

	k := 5
	if len(feats) < k {
		k = len(feats)
	}

	centroids, clusters := fitKMeans(scaled, k)
	labels := rankClusters(k, clusters, scores, feats)

	result.Model = domain.Model{Mean: mean, Std: std, Centroids: centroids, Labels: labels}

	for i, f := range feats {
		result.Assignments = append(result.Assignments, domain.Assignment{
			CustomerID: f.CustomerID,
			Label:      labels[clusters[i]],
			Cluster:    clusters[i],
			ValueScore: scores[i],
			Recency:    recency(f),
			Frequency:  float64(f.TotalOrders),
			Monetary:   f.TotalSpent,
		})
	}

	result.Insights = buildInsights(result.Assignments)

	return result
}

// Predict standardizes a raw feature vector with the tenant's stored scaler
// and assigns it to the nearest centroid. Requires a prior Run.
func (e *Engine) Predict(ctx context.Context, tenantID int64, vec []float64) (domain.Label, error) {
	if len(vec) != featureDim {
		return "", fmt.Errorf("%w: feature vector must have %d values", xerrors.ErrInvalidInput, featureDim)
	}

	model := e.model(tenantID)
	if model == nil {
		if cached := e.cachedResult(ctx, tenantID); cached != nil && len(cached.Model.Centroids) > 0 {
			e.storeModel(tenantID, &cached.Model)
			model = &cached.Model
		}
	}
	if model == nil || len(model.Centroids) == 0 {
		return "", fmt.Errorf("%w: no segmentation model for tenant", xerrors.ErrNotFound)
	}

	scaled := applyScaler(vec, model.Mean, model.Std)
	c := nearestCentroid(scaled, model.Centroids)

	return model.Labels[c], nil
}

func (e *Engine) model(tenantID int64) *domain.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.models[tenantID]
}

func (e *Engine) storeModel(tenantID int64, m *domain.Model) {
	e.mu.Lock()
	e.models[tenantID] = m
	e.mu.Unlock()
}

func (e *Engine) cachedResult(ctx context.Context, tenantID int64) *domain.Result {
	if e.rdb == nil {
		return nil
	}
	raw, err := e.rdb.Get(ctx, resultCacheKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			e.logger.Warn("segment cache read failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
		}
		return nil
	}
	var result domain.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return &result
}

func (e *Engine) cacheResult(ctx context.Context, result *domain.Result) {
	if e.rdb == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.rdb.Set(ctx, resultCacheKey(result.TenantID), raw, e.ttl).Err(); err != nil {
		e.logger.Warn("segment cache write failed", zap.Int64("tenant_id", result.TenantID), zap.Error(err))
	}
}

const featureDim = 7

func recency(f domain.CustomerFeatures) float64 {
	if f.TotalOrders == 0 {
		return domain.NeverOrderedSentinel
	}
	return f.DaysSinceLastOrder
}

// featureVector composes the clustering row: order counts, spend, recency,
// the composite value score, order cadence and a business-type weight.
func featureVector(f domain.CustomerFeatures, valueScore float64) []float64 {
	cadence := float64(domain.NeverOrderedSentinel)
	if f.TotalOrders > 1 {
		div := float64(f.TotalOrders - 1)
		if div < 1 {
			div = 1
		}
		cadence = f.LifetimeDays / div
	}

	typeScore := 1.0
	if f.CustomerType == domain.CustomerBusiness {
		typeScore = 1.2
	}

	return []float64{
		float64(f.TotalOrders),
		f.TotalSpent,
		f.AvgOrderValue,
		f.DaysSinceLastOrder,
		valueScore,
		cadence,
		typeScore,
	}
}

// valueScores computes the composite customer-value score from percentile
// ranks: recent, frequent, high-spend customers score near 1.
func valueScores(feats []domain.CustomerFeatures) []float64 {
	n := len(feats)
	rec := make([]float64, n)
	freq := make([]float64, n)
	mon := make([]float64, n)
	for i, f := range feats {
		rec[i] = recency(f)
		freq[i] = float64(f.TotalOrders)
		mon[i] = f.TotalSpent
	}

	recPct := percentileRanks(rec, false)
	freqPct := percentileRanks(freq, true)
	monPct := percentileRanks(mon, true)

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 0.2*recPct[i] + 0.4*freqPct[i] + 0.4*monPct[i]
	}
	return scores
}

// percentileRanks maps values to (average rank)/n, ties sharing their mean
// rank. ascending=false ranks the largest value lowest.
func percentileRanks(vals []float64, ascending bool) []float64 {
	n := len(vals)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if ascending {
			return vals[idx[a]] < vals[idx[b]]
		}
		return vals[idx[a]] > vals[idx[b]]
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		// 1-based ranks i+1..j+1 share their average.
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg / float64(n)
		}
		i = j + 1
	}

	return ranks
}

func fitScaler(rows [][]float64) (mean, std []float64) {
	dim := len(rows[0])
	mean = make([]float64, dim)
	std = make([]float64, dim)

	col := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		mean[j] = stat.Mean(col, nil)
		std[j] = stat.PopStdDev(col, nil)
		if std[j] == 0 {
			std[j] = 1
		}
	}

	return mean, std
}

func applyScaler(row, mean, std []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - mean[j]) / std[j]
	}
	return out
}

// rankClusters assigns the ordered label set to clusters ranked by mean value
// score descending, mean monetary breaking ties.
func rankClusters(k int, clusters []int, scores []float64, feats []domain.CustomerFeatures) []domain.Label {
	scoreSum := make([]float64, k)
	monSum := make([]float64, k)
	counts := make([]int, k)
	for i, c := range clusters {
		scoreSum[c] += scores[i]
		monSum[c] += feats[i].TotalSpent
		counts[c]++
	}

	order := make([]int, k)
	for c := range order {
		order[c] = c
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := order[a], order[b]
		var sa, sb, ma, mb float64
		if counts[ca] > 0 {
			sa, ma = scoreSum[ca]/float64(counts[ca]), monSum[ca]/float64(counts[ca])
		}
		if counts[cb] > 0 {
			sb, mb = scoreSum[cb]/float64(counts[cb]), monSum[cb]/float64(counts[cb])
		}
		if sa != sb {
			return sa > sb
		}
		return ma > mb
	})

	labels := make([]domain.Label, k)
	for rank, c := range order {
		labels[c] = domain.RankedLabels[rank]
	}
	return labels
}

func buildInsights(assignments []domain.Assignment) []domain.Insight {
	byLabel := make(map[domain.Label]*domain.Insight)
	for _, a := range assignments {
		ins, ok := byLabel[a.Label]
		if !ok {
			ins = &domain.Insight{Label: a.Label, Recommendations: domain.Recommendations[a.Label]}
			byLabel[a.Label] = ins
		}
		ins.Count++
		ins.TotalMonetary += a.Monetary
		ins.AvgFrequency += a.Frequency
		ins.AvgRecency += a.Recency
		if a.Frequency > 0 {
			ins.AvgOrderValue += a.Monetary / a.Frequency
		}
	}

	insights := []domain.Insight{}
	for _, label := range domain.RankedLabels {
		ins, ok := byLabel[label]
		if !ok {
			continue
		}
		n := float64(ins.Count)
		ins.AvgOrderValue /= n
		ins.AvgFrequency /= n
		ins.AvgRecency /= n
		insights = append(insights, *ins)
	}

	return insights
}

// fingerprintFeatures hashes the ordered input so unchanged history maps to
// the same cached run.
func fingerprintFeatures(feats []domain.CustomerFeatures) string {
	h := sha256.New()
	for _, f := range feats {
		fmt.Fprintf(h, "%d|%d|%.6f|%.6f|%.6f|%.6f|%s\n",
			f.CustomerID, f.TotalOrders, f.TotalSpent, f.AvgOrderValue,
			f.DaysSinceLastOrder, f.LifetimeDays, f.CustomerType)
	}
	return hex.EncodeToString(h.Sum(nil))
}
