package watchlist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func rotated(dim, axis int, cos float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(cos)
	v[axis] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func TestClassifyReturnsBestAboveThreshold(t *testing.T) {
	snap := NewSnapshot(
		[]Record{
			{ID: 1, Name: "low"},
			{ID: 2, Name: "high"},
			{ID: 3, Name: "below"},
		},
		[][]float32{
			rotated(8, 1, 0.6),
			rotated(8, 1, 0.9),
			rotated(8, 1, 0.2),
		},
	)

	matches := snap.Classify(vec(8, 0), 2, 0.45)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(2), matches[0].Record.ID)
	assert.InDelta(t, 0.9, float64(matches[0].Score), 1e-6)
	assert.Equal(t, int64(1), matches[1].Record.ID)
}

func TestClassifyTopKOne(t *testing.T) {
	snap := NewSnapshot(
		[]Record{{ID: 1}, {ID: 2}},
		[][]float32{rotated(8, 1, 0.7), rotated(8, 1, 0.8)},
	)

	matches := snap.Classify(vec(8, 0), 1, 0.45)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(2), matches[0].Record.ID)
}

func TestClassifyEmptySnapshotIsClean(t *testing.T) {
	snap := NewSnapshot(nil, nil)
	assert.Nil(t, snap.Classify(vec(8, 0), 1, 0.45))
	assert.Equal(t, 0, snap.Len())
}

func TestClassifyThresholdExcludesAll(t *testing.T) {
	snap := NewSnapshot(
		[]Record{{ID: 1}},
		[][]float32{rotated(8, 1, 0.3)},
	)
	assert.Empty(t, snap.Classify(vec(8, 0), 1, 0.45))
}

func TestSnapshotNormalizesOnIngest(t *testing.T) {
	// Stored embeddings are not required to arrive unit-norm; scores must
	// behave as if they were.
	big := make([]float32, 8)
	big[0] = 42
	snap := NewSnapshot([]Record{{ID: 1}}, [][]float32{big})

	matches := snap.Classify(vec(8, 0), 1, 0.45)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-6)
}

func TestClassifyDefaultsTopK(t *testing.T) {
	snap := NewSnapshot(
		[]Record{{ID: 1}, {ID: 2}},
		[][]float32{rotated(8, 1, 0.7), rotated(8, 1, 0.8)},
	)
	matches := snap.Classify(vec(8, 0), 0, 0.45)
	assert.Len(t, matches, 1)
}
