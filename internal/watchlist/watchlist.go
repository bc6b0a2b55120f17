// Package watchlist loads known-suspect embeddings from PostgreSQL and
// classifies tracked identities against them.
package watchlist

import (
	"math"
	"sort"
)

// Record is one row of the criminal_records table, minus the embedding.
type Record struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	Age         int    `json:"age"`
	Station     string `json:"police_station"`
	Crime       string `json:"crime_and_section"`
	HeadOfCrime string `json:"head_of_crime"`
	ArrestDate  string `json:"arrested_date"`
	ImageURL    string `json:"img_url"`
}

// Match is a watchlist hit: the record plus its cosine score.
type Match struct {
	Record Record  `json:"record"`
	Score  float32 `json:"score"`
}

// Snapshot is an immutable watchlist epoch: metadata rows and their
// embeddings, index-aligned. A reload produces a fresh Snapshot; readers
// keep classifying against whichever one they hold.
type Snapshot struct {
	records    []Record
	embeddings [][]float32
}

// NewSnapshot builds a snapshot from aligned records and embeddings.
// Embeddings are L2-normalized on ingest so classification is a plain
// inner product.
func NewSnapshot(records []Record, embeddings [][]float32) *Snapshot {
	norm := make([][]float32, len(embeddings))
	for i, emb := range embeddings {
		norm[i] = normalized(emb)
	}
	return &Snapshot{records: records, embeddings: norm}
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Classify computes cosine similarity of emb against every record and
// returns the top-k matches scoring above threshold, best first. An empty
// snapshot returns nothing.
func (s *Snapshot) Classify(emb []float32, topK int, threshold float32) []Match {
	if s.Len() == 0 {
		return nil
	}
	if topK <= 0 {
		topK = 1
	}

	scored := make([]Match, 0, len(s.records))
	for i, ref := range s.embeddings {
		score := dot(emb, ref)
		if score > threshold {
			scored = append(scored, Match{Record: s.records[i], Score: score})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(math.Min(1.0, math.Max(-1.0, sum)))
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
