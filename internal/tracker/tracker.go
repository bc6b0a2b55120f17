// Package tracker maintains the global face identity registry shared by all
// stream workers: it assigns stable integer identities to face observations,
// resists duplicate creation under occlusion and appearance drift, and
// classifies newly stable identities against the suspect watchlist.
package tracker

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/watchlist"
)

// Matcher classifies an embedding against the suspect watchlist.
type Matcher interface {
	Match(emb []float32) (watchlist.Match, bool)
	Entries() int
}

// Config holds the assignment-policy thresholds. Zero values are filled in
// from DefaultConfig by New.
type Config struct {
	MinFaceSize              int     // observations smaller than this are rejected
	TrackingThreshold        float32 // index candidate floor with spatial support
	SimilarityReuseThreshold float32 // broadcast floor that blocks new-identity creation
	ImmediateMergeThreshold  float32 // broadcast similarity that reuses outright
	ImmediateMergeTimeWindow float64 // seconds, co-activity window for merge
	ImmediateMergeIoU        float64 // spatial-overlap merge floor
	ConsolidationThreshold   float32 // unconditional merge floor
	ReuseTimeWindow          float64 // seconds, spatial-temporal reuse window
	ReuseDistancePx          float64 // same-stream center-distance reuse radius
	MinAppearancesForID      int     // pending-track promotion count
	PendingTimeout           float64 // seconds of silence before pending/probation expiry
	RelinkDuration           float64 // seconds of sustained evidence before re-link
	RelinkMinConfidence      float32 // best-sim floor for re-link
	FaceTimeout              float64 // seconds before stale eviction
	MaxIdentities            int     // registry capacity
	ConsolidationInterval    int     // creations between consolidation passes
	RebuildInterval          int     // creations between full index rebuilds
	PendingCellSize          int     // pending-track grid cell, pixels
	SearchK                  int     // vector-index candidates per observation
}

func DefaultConfig() Config {
	return Config{
		MinFaceSize:              24,
		TrackingThreshold:        0.50,
		SimilarityReuseThreshold: 0.65,
		ImmediateMergeThreshold:  0.80,
		ImmediateMergeTimeWindow: 2.0,
		ImmediateMergeIoU:        0.45,
		ConsolidationThreshold:   0.65,
		ReuseTimeWindow:          3.0,
		ReuseDistancePx:          120,
		MinAppearancesForID:      3,
		PendingTimeout:           3.0,
		RelinkDuration:           3.0,
		RelinkMinConfidence:      0.35,
		FaceTimeout:              30.0,
		MaxIdentities:            1000,
		ConsolidationInterval:    20,
		RebuildInterval:          100,
		PendingCellSize:          64,
		SearchK:                  10,
	}
}

// nominalReuseSim feeds the embedding EMA when an assignment came from a
// spatial rule rather than a similarity score.
const nominalReuseSim = 0.6

// Result is the outcome of one Process call. OK is false when the
// observation was rejected (size gate, pending track not yet promoted,
// probation, duplicate guard, or capacity); BBox always carries the box to
// render. NewMatch is set only on
// the call where the identity first matched the watchlist.
type Result struct {
	ID         uint64
	OK         bool
	Suspicious bool
	BBox       BBox
	NewMatch   *watchlist.Match
}

type identity struct {
	id         uint64
	emb        []float32 // unit norm
	lastBBox   BBox
	lastSeen   time.Time
	streamID   string
	checked    bool
	suspicious bool
	match      *watchlist.Match
}

type pendingKey struct {
	streamID string
	cx, cy   int
}

type pendingTrack struct {
	key     pendingKey
	count   int
	firstTS time.Time
	lastTS  time.Time
	emb     []float32 // running average, unit norm
	bbox    BBox
}

type probation struct {
	start   time.Time
	last    time.Time
	bestSim float32
}

// Tracker is the shared identity registry. All state is guarded by one
// exclusive lock; Process and the maintenance entry points are safe for
// concurrent use from any number of stream workers.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	matcher Matcher

	identities map[uint64]*identity
	index      *flatIndex
	pending    map[pendingKey]*pendingTrack
	relink     map[uint64]*probation

	nextID       uint64
	lifetime     int // identities ever created
	sinceRebuild int // creations since the last index rebuild
}

// New creates an empty tracker. matcher may be nil (no watchlist).
func New(cfg Config, matcher Matcher) *Tracker {
	def := DefaultConfig()
	if cfg.MinFaceSize == 0 {
		cfg.MinFaceSize = def.MinFaceSize
	}
	if cfg.TrackingThreshold == 0 {
		cfg.TrackingThreshold = def.TrackingThreshold
	}
	if cfg.SimilarityReuseThreshold == 0 {
		cfg.SimilarityReuseThreshold = def.SimilarityReuseThreshold
	}
	if cfg.ImmediateMergeThreshold == 0 {
		cfg.ImmediateMergeThreshold = def.ImmediateMergeThreshold
	}
	if cfg.ImmediateMergeTimeWindow == 0 {
		cfg.ImmediateMergeTimeWindow = def.ImmediateMergeTimeWindow
	}
	if cfg.ImmediateMergeIoU == 0 {
		cfg.ImmediateMergeIoU = def.ImmediateMergeIoU
	}
	if cfg.ConsolidationThreshold == 0 {
		cfg.ConsolidationThreshold = def.ConsolidationThreshold
	}
	if cfg.ReuseTimeWindow == 0 {
		cfg.ReuseTimeWindow = def.ReuseTimeWindow
	}
	if cfg.ReuseDistancePx == 0 {
		cfg.ReuseDistancePx = def.ReuseDistancePx
	}
	if cfg.MinAppearancesForID == 0 {
		cfg.MinAppearancesForID = def.MinAppearancesForID
	}
	if cfg.PendingTimeout == 0 {
		cfg.PendingTimeout = def.PendingTimeout
	}
	if cfg.RelinkDuration == 0 {
		cfg.RelinkDuration = def.RelinkDuration
	}
	if cfg.RelinkMinConfidence == 0 {
		cfg.RelinkMinConfidence = def.RelinkMinConfidence
	}
	if cfg.FaceTimeout == 0 {
		cfg.FaceTimeout = def.FaceTimeout
	}
	if cfg.MaxIdentities == 0 {
		cfg.MaxIdentities = def.MaxIdentities
	}
	if cfg.ConsolidationInterval == 0 {
		cfg.ConsolidationInterval = def.ConsolidationInterval
	}
	if cfg.RebuildInterval == 0 {
		cfg.RebuildInterval = def.RebuildInterval
	}
	if cfg.PendingCellSize == 0 {
		cfg.PendingCellSize = def.PendingCellSize
	}
	if cfg.SearchK == 0 {
		cfg.SearchK = def.SearchK
	}

	return &Tracker{
		cfg:        cfg,
		matcher:    matcher,
		identities: make(map[uint64]*identity),
		index:      newFlatIndex(),
		pending:    make(map[pendingKey]*pendingTrack),
		relink:     make(map[uint64]*probation),
	}
}

// Process handles one face observation. The decision pipeline runs under the
// registry lock; the first rule that fires wins.
func (t *Tracker) Process(embedding []float32, box BBox, streamID string, now time.Time) Result {
	start := time.Now()
	defer func() {
		observability.ProcessDuration.Observe(time.Since(start).Seconds())
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Size gate.
	if box.Width() < t.cfg.MinFaceSize || box.Height() < t.cfg.MinFaceSize {
		return Result{BBox: box}
	}

	q := normalized(embedding)

	// Spatial-temporal reuse: within one camera a head only moves so far in
	// a few seconds, so a redetection near a fresh identity is that identity.
	if ident := t.spatialReuse(box, streamID, now); ident != nil {
		return t.commit(ident, q, box, streamID, nominalReuseSim, now)
	}

	// Vector-index re-identification under re-link probation.
	if ident, sim := t.indexRelink(q, box, now); ident != nil {
		return t.commit(ident, q, box, streamID, sim, now)
	}

	// Pending-track update and its two assignment shortcuts.
	pt := t.touchPending(q, box, streamID, now)

	if ident, sim := t.recentBroadcastReuse(q, now); ident != nil {
		return t.commit(ident, q, box, streamID, sim, now)
	}

	if pt.count >= t.cfg.MinAppearancesForID {
		return t.promote(pt, q, box, streamID, now)
	}

	// Occlusion reuse: last-resort nearby identity on the same stream.
	if ident := t.nearbyIdentity(box, streamID, now); ident != nil {
		return t.commit(ident, q, box, streamID, nominalReuseSim, now)
	}

	return Result{BBox: box}
}

// spatialReuse finds the nearest same-stream identity seen within the reuse
// window whose last box center is within ReuseDistancePx.
func (t *Tracker) spatialReuse(box BBox, streamID string, now time.Time) *identity {
	var best *identity
	bestDist := t.cfg.ReuseDistancePx
	for _, ident := range t.identities {
		if ident.streamID != streamID {
			continue
		}
		if now.Sub(ident.lastSeen).Seconds() > t.cfg.ReuseTimeWindow {
			continue
		}
		if d := centerDistance(box, ident.lastBBox); d <= bestDist {
			bestDist = d
			best = ident
		}
	}
	return best
}

// indexRelink walks the top index candidates in similarity order. Every
// qualifying candidate advances its re-link probation; a candidate is
// assigned only once its probation has both aged past RelinkDuration and
// accumulated RelinkMinConfidence.
func (t *Tracker) indexRelink(q []float32, box BBox, now time.Time) (*identity, float32) {
	for _, hit := range t.index.Search(q, t.cfg.SearchK) {
		ident, ok := t.identities[hit.ID]
		if !ok {
			continue
		}
		iou := IoU(box, ident.lastBBox)

		qualified := (iou > 0.3 && hit.Sim > t.cfg.TrackingThreshold) ||
			hit.Sim > t.cfg.TrackingThreshold+0.15 ||
			hit.Sim > 0.8
		if !qualified {
			continue
		}

		if t.advanceProbation(hit.ID, hit.Sim, now) {
			delete(t.relink, hit.ID)
			return ident, hit.Sim
		}
	}
	return nil, 0
}

// advanceProbation records or updates the candidate's probation and reports
// whether the re-link criterion is now satisfied.
func (t *Tracker) advanceProbation(id uint64, sim float32, now time.Time) bool {
	p := t.relink[id]
	if p == nil {
		p = &probation{start: now, bestSim: sim}
		t.relink[id] = p
	}
	p.last = now
	if sim > p.bestSim {
		p.bestSim = sim
	}
	return now.Sub(p.start).Seconds() >= t.cfg.RelinkDuration &&
		p.bestSim >= t.cfg.RelinkMinConfidence
}

// touchPending updates or creates the pending track for the observation's
// (stream, grid cell).
func (t *Tracker) touchPending(q []float32, box BBox, streamID string, now time.Time) *pendingTrack {
	cx, cy := box.Center()
	key := pendingKey{
		streamID: streamID,
		cx:       int(cx) / t.cfg.PendingCellSize,
		cy:       int(cy) / t.cfg.PendingCellSize,
	}

	pt := t.pending[key]
	if pt == nil {
		pt = &pendingTrack{
			key:     key,
			count:   1,
			firstTS: now,
			lastTS:  now,
			emb:     append([]float32(nil), q...),
			bbox:    box,
		}
		t.pending[key] = pt
		return pt
	}

	pt.emb = blend(pt.emb, q, 0.7, 0.3)
	pt.bbox = box
	pt.count++
	pt.lastTS = now
	return pt
}

// recentBroadcastReuse scans every identity seen within the reuse window and
// reuses the most similar one if it clears the immediate-merge similarity.
// Stale identities are excluded here: they must earn a re-link through
// probation instead.
func (t *Tracker) recentBroadcastReuse(q []float32, now time.Time) (*identity, float32) {
	var best *identity
	var bestSim float32
	for _, ident := range t.identities {
		if now.Sub(ident.lastSeen).Seconds() > t.cfg.ReuseTimeWindow {
			continue
		}
		if sim := dot(q, ident.emb); sim > bestSim {
			bestSim = sim
			best = ident
		}
	}
	if best != nil && bestSim >= t.cfg.ImmediateMergeThreshold {
		return best, bestSim
	}
	return nil, 0
}

// bestBroadcast returns the most similar identity across the whole registry.
func (t *Tracker) bestBroadcast(q []float32) (*identity, float32) {
	var best *identity
	var bestSim float32
	for _, ident := range t.identities {
		if sim := dot(q, ident.emb); sim > bestSim {
			bestSim = sim
			best = ident
		}
	}
	return best, bestSim
}

// nearbyIdentity finds a same-stream identity seen within the reuse window
// that overlaps the observation (IoU > 0.2) or sits within ReuseDistancePx.
func (t *Tracker) nearbyIdentity(box BBox, streamID string, now time.Time) *identity {
	for _, ident := range t.identities {
		if ident.streamID != streamID {
			continue
		}
		if now.Sub(ident.lastSeen).Seconds() > t.cfg.ReuseTimeWindow {
			continue
		}
		if IoU(box, ident.lastBBox) > 0.2 || centerDistance(box, ident.lastBBox) <= t.cfg.ReuseDistancePx {
			return ident
		}
	}
	return nil
}

// promote creates a new identity from a matured pending track, unless one of
// the duplicate guards fires first.
func (t *Tracker) promote(pt *pendingTrack, q []float32, box BBox, streamID string, now time.Time) Result {
	// A near-duplicate of an existing identity must reuse it, never fork it.
	if best, sim := t.bestBroadcast(q); best != nil && sim >= t.cfg.SimilarityReuseThreshold {
		if t.advanceProbation(best.id, sim, now) {
			delete(t.relink, best.id)
			return t.commit(best, q, box, streamID, sim, now)
		}
		return Result{BBox: box}
	}

	// A still-active identity nearby on the same stream means this pending
	// track is likely a fragment of it.
	if t.nearbyIdentity(box, streamID, now) != nil {
		return Result{BBox: box}
	}

	if len(t.identities) >= t.cfg.MaxIdentities {
		slog.Warn("identity capacity reached, observation dropped",
			"capacity", t.cfg.MaxIdentities, "stream_id", streamID)
		return Result{BBox: box}
	}

	ident := &identity{
		id:       t.nextID,
		emb:      append([]float32(nil), pt.emb...),
		lastBBox: box,
		lastSeen: now,
		streamID: streamID,
	}
	t.nextID++
	t.identities[ident.id] = ident
	t.index.Add(ident.id, ident.emb)
	delete(t.pending, pt.key)

	t.lifetime++
	t.sinceRebuild++
	observability.IdentitiesCreated.Inc()
	observability.ActiveIdentities.Set(float64(len(t.identities)))
	slog.Info("new identity", "identity", ident.id, "stream_id", streamID)

	match := t.checkWatchlist(ident)
	t.maintain(now)

	return Result{
		ID:         ident.id,
		OK:         true,
		Suspicious: ident.suspicious,
		BBox:       box,
		NewMatch:   match,
	}
}

// commit applies the post-assignment updates: embedding EMA, bbox smoothing,
// recency, ownership, probation clearing, and the one-time watchlist check.
func (t *Tracker) commit(ident *identity, q []float32, box BBox, streamID string, sim float32, now time.Time) Result {
	w := sim * 0.3
	if w > 0.5 {
		w = 0.5
	}
	ident.emb = blend(ident.emb, q, 1-w, w)
	t.index.Remove(ident.id)
	t.index.Add(ident.id, ident.emb)

	smoothed := smoothBBox(box, ident.lastBBox)
	ident.lastBBox = smoothed
	ident.lastSeen = now
	ident.streamID = streamID
	delete(t.relink, ident.id)

	match := t.checkWatchlist(ident)

	return Result{
		ID:         ident.id,
		OK:         true,
		Suspicious: ident.suspicious,
		BBox:       smoothed,
		NewMatch:   match,
	}
}

// checkWatchlist runs the one-time classification. The checked flag is set
// even when the watchlist is empty; a later reload does not reclassify.
func (t *Tracker) checkWatchlist(ident *identity) *watchlist.Match {
	if ident.checked {
		return nil
	}
	ident.checked = true

	if t.matcher == nil || t.matcher.Entries() == 0 {
		return nil
	}
	m, ok := t.matcher.Match(ident.emb)
	if !ok {
		slog.Info("identity clean", "identity", ident.id)
		return nil
	}

	ident.suspicious = true
	ident.match = &m
	observability.SuspiciousIdentities.Inc()
	slog.Info("watchlist match", "identity", ident.id, "name", m.Record.Name, "score", m.Score)
	return &m
}

// SuspectRecord pairs a suspicious identity with its attached match.
type SuspectRecord struct {
	IdentityID uint64          `json:"identity_id"`
	Match      watchlist.Match `json:"match"`
}

// SuspiciousMatches returns the match records of all currently suspicious
// identities, ordered by identity.
func (t *Tracker) SuspiciousMatches() []SuspectRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []SuspectRecord
	for _, ident := range t.identities {
		if ident.suspicious && ident.match != nil {
			out = append(out, SuspectRecord{IdentityID: ident.id, Match: *ident.match})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out
}

// Stats is the shared-stats snapshot served by the control API.
type Stats struct {
	TotalFaces                 int      `json:"total_faces"`
	LifetimeFaces              int      `json:"lifetime_faces"`
	ActiveFaces                int      `json:"active_faces"`
	SuspiciousFaces            int      `json:"suspicious_faces"`
	CleanFaces                 int      `json:"clean_faces"`
	DatabaseEntries            int      `json:"database_entries"`
	SuspiciousIDs              []uint64 `json:"suspicious_ids"`
	TrackingThreshold          float32  `json:"tracking_threshold"`
	ConsolidationThreshold     float32  `json:"consolidation_threshold"`
	FaceTimeout                float64  `json:"face_timeout"`
	NextID                     uint64   `json:"next_id"`
	ConsolidationCheckInterval int      `json:"consolidation_check_interval"`
}

// Stats reports a consistent snapshot of the registry counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	suspicious := 0
	ids := []uint64{}
	for _, ident := range t.identities {
		if ident.suspicious {
			suspicious++
			ids = append(ids, ident.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := 0
	if t.matcher != nil {
		entries = t.matcher.Entries()
	}

	return Stats{
		TotalFaces:                 len(t.identities),
		LifetimeFaces:              t.lifetime,
		ActiveFaces:                len(t.identities),
		SuspiciousFaces:            suspicious,
		CleanFaces:                 len(t.identities) - suspicious,
		DatabaseEntries:            entries,
		SuspiciousIDs:              ids,
		TrackingThreshold:          t.cfg.TrackingThreshold,
		ConsolidationThreshold:     t.cfg.ConsolidationThreshold,
		FaceTimeout:                t.cfg.FaceTimeout,
		NextID:                     t.nextID,
		ConsolidationCheckInterval: t.cfg.ConsolidationInterval,
	}
}
