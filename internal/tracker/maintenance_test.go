package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/watchlist"
)

func TestConsolidateMergesSimilarPair(t *testing.T) {
	tr := New(DefaultConfig(), nil)

	a := unit(0)
	b := mix(a, 1, 0.7) // cos(a,b) = 0.7, above the 0.65 floor

	seedIdentity(tr, 0, a, BBox{0, 0, 10, 10}, at(100), "s1")
	seedIdentity(tr, 1, b, BBox{500, 500, 510, 510}, at(100), "s1")

	merged := tr.Consolidate(at(100))
	require.Equal(t, 1, merged)

	require.Contains(t, tr.identities, uint64(0))
	require.NotContains(t, tr.identities, uint64(1))

	want := blend(a, normalized(b), 0.7, 0.3)
	got := tr.identities[0].emb
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6)
	}

	assert.Equal(t, []uint64{0}, tr.index.IDs())
	requireConsistent(t, tr)
}

func TestConsolidateSuspiciousCarry(t *testing.T) {
	tr := New(DefaultConfig(), nil)

	a := unit(0)
	m1 := &watchlist.Match{Record: watchlist.Record{ID: 1, Name: "first"}, Score: 0.9}
	m2 := &watchlist.Match{Record: watchlist.Record{ID: 2, Name: "second"}, Score: 0.6}

	seedIdentity(tr, 0, a, BBox{0, 0, 10, 10}, at(100), "s1")
	i1 := seedIdentity(tr, 1, mix(a, 1, 0.8), BBox{500, 500, 510, 510}, at(100), "s1")
	i1.suspicious = true
	i1.match = m1
	i2 := seedIdentity(tr, 2, mix(a, 2, 0.8), BBox{800, 800, 810, 810}, at(100), "s1")
	i2.suspicious = true
	i2.match = m2

	merged := tr.Consolidate(at(100))
	require.Equal(t, 2, merged)

	primary := tr.identities[0]
	require.True(t, primary.suspicious, "suspicious sticks through merge")
	// The last-merged donor's record wins.
	require.NotNil(t, primary.match)
	assert.Equal(t, int64(2), primary.match.Record.ID)
	requireConsistent(t, tr)
}

func TestConsolidateIoUMergeIgnoresSimilarity(t *testing.T) {
	tr := New(DefaultConfig(), nil)

	// Orthogonal embeddings, but the boxes overlap heavily.
	seedIdentity(tr, 0, unit(0), BBox{0, 0, 100, 100}, at(100), "s1")
	seedIdentity(tr, 1, unit(1), BBox{0, 0, 100, 80}, at(200), "s2")

	merged := tr.Consolidate(at(200))
	require.Equal(t, 1, merged)
	assert.NotContains(t, tr.identities, uint64(1))
	requireConsistent(t, tr)
}

func TestConsolidateKeepsDistinctIdentities(t *testing.T) {
	tr := New(DefaultConfig(), nil)

	// cos = 0, no overlap, seen far apart in time: nothing to merge.
	seedIdentity(tr, 0, unit(0), BBox{0, 0, 100, 100}, at(100), "s1")
	seedIdentity(tr, 1, unit(1), BBox{500, 500, 600, 600}, at(150), "s1")

	merged := tr.Consolidate(at(150))
	assert.Equal(t, 0, merged)
	assert.Len(t, tr.identities, 2)
	requireConsistent(t, tr)
}

func TestConsolidateLowSimilarityWithoutCoActivityStaysSplit(t *testing.T) {
	tr := New(DefaultConfig(), nil)

	// A pair below the 0.65 floor, with no box overlap and last-seen times
	// 300s apart, meets none of the merge conditions and stays split.
	a := unit(0)
	seedIdentity(tr, 0, a, BBox{0, 0, 100, 100}, at(0), "s1")
	seedIdentity(tr, 1, mix(a, 1, 0.6), BBox{500, 500, 600, 600}, at(300), "s1")

	merged := tr.Consolidate(at(300))
	assert.Equal(t, 0, merged, "cos 0.6 below every merge condition")
}

func TestCleanupEvictsStaleAndExpiresPending(t *testing.T) {
	tr := New(DefaultConfig(), nil)

	seedIdentity(tr, 0, unit(0), BBox{0, 0, 100, 100}, at(0), "s1")
	seedIdentity(tr, 1, unit(1), BBox{500, 0, 600, 100}, at(95), "s1")

	// A young pending track and a silent one.
	tr.Process(unit(2), BBox{0, 500, 100, 600}, "s2", at(50))
	tr.Process(unit(3), BBox{500, 500, 600, 600}, "s2", at(99))

	evicted := tr.Cleanup(at(100))
	assert.Equal(t, 1, evicted)
	assert.NotContains(t, tr.identities, uint64(0), "unseen for 100s > face_timeout")
	assert.Contains(t, tr.identities, uint64(1), "seen 5s ago stays")

	assert.Len(t, tr.pending, 1, "silent pending track expired, fresh one kept")
	requireConsistent(t, tr)
}

func TestCleanupInvariantAllRemainFresh(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	for i := 0; i < 10; i++ {
		seedIdentity(tr, uint64(i), unit(i%testDim), BBox{i * 200, 0, i*200 + 50, 50}, at(float64(i*10)), "s1")
	}

	now := at(95)
	tr.Cleanup(now)
	for _, ident := range tr.identities {
		assert.LessOrEqual(t, now.Sub(ident.lastSeen).Seconds(), tr.cfg.FaceTimeout)
	}
	requireConsistent(t, tr)
}

func TestRebuildRestoresIndexDomain(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	seedIdentity(tr, 0, unit(0), BBox{0, 0, 100, 100}, at(0), "s1")
	seedIdentity(tr, 1, unit(1), BBox{200, 0, 300, 100}, at(0), "s1")

	// Poison the index with an entry the registry doesn't hold.
	tr.index.Add(99, unit(7))

	tr.rebuildLocked()
	assert.ElementsMatch(t, []uint64{0, 1}, tr.index.IDs())
	requireConsistent(t, tr)
}

func TestPeriodicConsolidationTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsolidationInterval = 2
	tr := New(cfg, nil)

	// First promotion: lifetime 1, no trigger. Second promotion: lifetime 2
	// and the pass runs; the two identities are orthogonal and far apart,
	// so the trigger only has to leave them alone.
	for i := 0; i < 3; i++ {
		tr.Process(unit(0), BBox{0, 0, 100, 100}, "s1", at(float64(i)*0.1))
	}
	for i := 0; i < 3; i++ {
		tr.Process(unit(1), BBox{600, 600, 700, 700}, "s2", at(float64(i)*0.1))
	}
	assert.Equal(t, 2, tr.Stats().LifetimeFaces)
	assert.Equal(t, 2, tr.Stats().ActiveFaces)
	requireConsistent(t, tr)
}
