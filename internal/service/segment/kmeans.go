package segment

import (
	"math"
	"math/rand"
)

const (
	kmeansMaxIter = 300
	kmeansRuns    = 10
	kmeansSeed    = 42
)

// fitKMeans clusters rows into k groups with k-means++ seeding and Lloyd
// iterations. Runs kmeansRuns restarts from a fixed seed and keeps the fit
// with the lowest inertia, so identical input always yields identical
// clusters.
func fitKMeans(rows [][]float64, k int) (centroids [][]float64, labels []int) {
	if len(rows) == 0 || k <= 0 {
		return nil, nil
	}
	if k > len(rows) {
		k = len(rows)
	}

	best := math.Inf(1)
	for run := 0; run < kmeansRuns; run++ {
		rng := rand.New(rand.NewSource(kmeansSeed + int64(run)))
		c, l, inertia := kmeansOnce(rows, k, rng)
		if inertia < best {
			best = inertia
			centroids, labels = c, l
		}
	}

	return centroids, labels
}

func kmeansOnce(rows [][]float64, k int, rng *rand.Rand) (centroids [][]float64, labels []int, inertia float64) {
	centroids = seedPlusPlus(rows, k, rng)
	labels = make([]int, len(rows))

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, row := range rows {
			c := nearestCentroid(row, centroids)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}

		next := recomputeCentroids(rows, labels, k, centroids)
		centroids = next

		if !changed && iter > 0 {
			break
		}
	}

	for i, row := range rows {
		inertia += sqDist(row, centroids[labels[i]])
	}

	return centroids, labels, inertia
}

// seedPlusPlus picks initial centroids with probability proportional to the
// squared distance from the nearest already-chosen centroid.
func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneRow(rows[rng.Intn(len(rows))]))

	dists := make([]float64, len(rows))
	for len(centroids) < k {
		var total float64
		for i, row := range rows {
			d := math.Inf(1)
			for _, c := range centroids {
				if sd := sqDist(row, c); sd < d {
					d = sd
				}
			}
			dists[i] = d
			total += d
		}

		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, cloneRow(rows[rng.Intn(len(rows))]))
			continue
		}

		target := rng.Float64() * total
		var cum float64
		pick := len(rows) - 1
		for i, d := range dists {
			cum += d
			if cum >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, cloneRow(rows[pick]))
	}

	return centroids
}

func recomputeCentroids(rows [][]float64, labels []int, k int, prev [][]float64) [][]float64 {
	dim := len(rows[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}

	for i, row := range rows {
		c := labels[i]
		counts[c]++
		for j, v := range row {
			sums[c][j] += v
		}
	}

	next := make([][]float64, k)
	for c := range next {
		if counts[c] == 0 {
			// Empty cluster keeps its previous centroid.
			next[c] = cloneRow(prev[c])
			continue
		}
		next[c] = sums[c]
		for j := range next[c] {
			next[c][j] /= float64(counts[c])
		}
	}

	return next
}

func nearestCentroid(row []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func cloneRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
