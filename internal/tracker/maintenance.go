package tracker

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/your-org/facewatch/internal/observability"
)

// maintain runs the periodic triggers after a new-identity creation. Caller
// holds the lock.
func (t *Tracker) maintain(now time.Time) {
	if t.cfg.ConsolidationInterval > 0 && t.lifetime%t.cfg.ConsolidationInterval == 0 {
		t.consolidateLocked(now)
	}
	if t.sinceRebuild >= t.cfg.RebuildInterval {
		t.cleanupLocked(now)
		t.consolidateLocked(now)
		t.rebuildLocked()
		t.sinceRebuild = 0
	}
}

// Consolidate merges active identities that plausibly represent the same
// person. Returns the number of identities removed.
func (t *Tracker) Consolidate(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consolidateLocked(now)
}

func (t *Tracker) consolidateLocked(now time.Time) int {
	ids := make([]uint64, 0, len(t.identities))
	for id := range t.identities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	merged := make(map[uint64]bool)
	removed := 0

	for i, aID := range ids {
		if merged[aID] {
			continue
		}
		a := t.identities[aID]
		for _, bID := range ids[i+1:] {
			if merged[bID] {
				continue
			}
			b := t.identities[bID]

			sim := dot(a.emb, b.emb)
			seenClose := math.Abs(a.lastSeen.Sub(b.lastSeen).Seconds()) <= t.cfg.ImmediateMergeTimeWindow
			iou := IoU(a.lastBBox, b.lastBBox)

			mergeable := (sim >= t.cfg.ImmediateMergeThreshold && seenClose) ||
				iou >= t.cfg.ImmediateMergeIoU ||
				sim > t.cfg.ConsolidationThreshold
			if !mergeable {
				continue
			}

			a.emb = blend(a.emb, b.emb, 0.7, 0.3)
			if b.suspicious {
				a.suspicious = true
				a.match = b.match
			}
			t.removeIdentityLocked(bID)
			merged[bID] = true
			removed++

			t.index.Remove(aID)
			t.index.Add(aID, a.emb)

			slog.Info("identities consolidated", "primary", aID, "merged", bID, "sim", sim)
		}
	}

	if removed > 0 {
		observability.IdentitiesMerged.Add(float64(removed))
		observability.ActiveIdentities.Set(float64(len(t.identities)))
	}
	return removed
}

// Cleanup evicts identities unseen for longer than FaceTimeout and expires
// silent pending tracks and re-link probations. Returns the number of
// identities evicted.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleanupLocked(now)
}

func (t *Tracker) cleanupLocked(now time.Time) int {
	evicted := 0
	for id, ident := range t.identities {
		if now.Sub(ident.lastSeen).Seconds() > t.cfg.FaceTimeout {
			t.removeIdentityLocked(id)
			evicted++
			slog.Info("stale identity evicted", "identity", id)
		}
	}

	for key, pt := range t.pending {
		if now.Sub(pt.lastTS).Seconds() > t.cfg.PendingTimeout {
			delete(t.pending, key)
		}
	}
	for id, p := range t.relink {
		if now.Sub(p.last).Seconds() > t.cfg.PendingTimeout {
			delete(t.relink, id)
		}
	}

	if evicted > 0 {
		observability.IdentitiesEvicted.Add(float64(evicted))
		observability.ActiveIdentities.Set(float64(len(t.identities)))
	}
	return evicted
}

// removeIdentityLocked drops an identity from the registry, the vector
// index, and any probation record. Its ID is never reused.
func (t *Tracker) removeIdentityLocked(id uint64) {
	delete(t.identities, id)
	delete(t.relink, id)
	t.index.Remove(id)
}

// rebuildLocked replaces the vector index with a fresh one built from the
// current registry.
func (t *Tracker) rebuildLocked() {
	entries := make(map[uint64][]float32, len(t.identities))
	for id, ident := range t.identities {
		entries[id] = ident.emb
	}
	t.index.Rebuild(entries)
	slog.Debug("vector index rebuilt", "entries", len(entries))
}
