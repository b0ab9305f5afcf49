package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFitKMeansSeparatesObviousClusters(t *testing.T) {
	rows := [][]float64{
		{0.0, 0.1}, {0.2, 0.0}, {0.1, 0.2},
		{10.0, 10.1}, {10.2, 9.9}, {9.8, 10.0},
		{20.1, 0.0}, {19.9, 0.2}, {20.0, 0.1},
	}

	centroids, labels := fitKMeans(rows, 3)
	require.Len(t, centroids, 3)
	require.Len(t, labels, 9)

	// Points of the same group land in the same cluster, different groups in
	// different ones.
	require.Equal(t, labels[0], labels[1])
	require.Equal(t, labels[0], labels[2])
	require.Equal(t, labels[3], labels[4])
	require.Equal(t, labels[6], labels[8])
	require.NotEqual(t, labels[0], labels[3])
	require.NotEqual(t, labels[3], labels[6])
	require.NotEqual(t, labels[0], labels[6])
}

func TestFitKMeansDeterministic(t *testing.T) {
	rows := make([][]float64, 40)
	for i := range rows {
		rows[i] = []float64{float64(i % 7), float64((i * 13) % 11), float64(i) / 3}
	}

	c1, l1 := fitKMeans(rows, 5)
	c2, l2 := fitKMeans(rows, 5)

	require.Equal(t, l1, l2)
	require.Equal(t, c1, c2)
}

func TestFitKMeansClampsK(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}}

	centroids, labels := fitKMeans(rows, 5)
	require.Len(t, centroids, 2)
	require.Len(t, labels, 2)

	centroids, labels = fitKMeans(nil, 5)
	require.Nil(t, centroids)
	require.Nil(t, labels)
}
