package tracker

import "sort"

// Hit is one vector-index search result.
type Hit struct {
	Sim float32
	ID  uint64
}

// flatIndex is an exact inner-product index over unit vectors. At the
// registry's working-set size (≤ ~1000 identities) a flat O(N·d) scan beats
// an ANN structure and keeps remove/rebuild semantics trivial. Callers hold
// the tracker lock; the index itself is not synchronized.
type flatIndex struct {
	ids  []uint64
	vecs [][]float32
	pos  map[uint64]int
}

func newFlatIndex() *flatIndex {
	return &flatIndex{pos: make(map[uint64]int)}
}

func (x *flatIndex) Len() int { return len(x.ids) }

// Add inserts id with the given unit-norm embedding, replacing any
// existing entry for the same id.
func (x *flatIndex) Add(id uint64, emb []float32) {
	if i, ok := x.pos[id]; ok {
		x.vecs[i] = emb
		return
	}
	x.pos[id] = len(x.ids)
	x.ids = append(x.ids, id)
	x.vecs = append(x.vecs, emb)
}

// Remove deletes id from the index. Unknown ids are ignored.
func (x *flatIndex) Remove(id uint64) {
	i, ok := x.pos[id]
	if !ok {
		return
	}
	last := len(x.ids) - 1
	if i != last {
		x.ids[i] = x.ids[last]
		x.vecs[i] = x.vecs[last]
		x.pos[x.ids[i]] = i
	}
	x.ids = x.ids[:last]
	x.vecs = x.vecs[:last]
	delete(x.pos, id)
}

// Search returns up to k entries ordered by decreasing inner product with q.
func (x *flatIndex) Search(q []float32, k int) []Hit {
	if k <= 0 || len(x.ids) == 0 {
		return nil
	}
	hits := make([]Hit, 0, len(x.ids))
	for i, v := range x.vecs {
		hits = append(hits, Hit{Sim: dot(q, v), ID: x.ids[i]})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Sim != hits[j].Sim {
			return hits[i].Sim > hits[j].Sim
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Rebuild replaces the backing arrays with exactly the provided entries.
func (x *flatIndex) Rebuild(entries map[uint64][]float32) {
	x.ids = x.ids[:0]
	x.vecs = x.vecs[:0]
	x.pos = make(map[uint64]int, len(entries))
	for id, emb := range entries {
		x.pos[id] = len(x.ids)
		x.ids = append(x.ids, id)
		x.vecs = append(x.vecs, emb)
	}
}

// IDs returns the current index domain, unordered.
func (x *flatIndex) IDs() []uint64 {
	out := make([]uint64, len(x.ids))
	copy(out, x.ids)
	return out
}
