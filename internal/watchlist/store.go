package watchlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/observability"
)

// Store owns the criminal_records connection pool and the current watchlist
// snapshot. Reload swaps the snapshot atomically; the tracker classifies
// against whichever snapshot was current when it looked.
type Store struct {
	pool      *pgxpool.Pool
	snapshot  atomic.Pointer[Snapshot]
	topK      int
	threshold float32
}

// NewStore connects to PostgreSQL. A connection failure is returned so the
// caller can decide to run with an empty watchlist.
func NewStore(cfg config.WatchlistConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, topK: cfg.TopK, threshold: float32(cfg.Threshold)}
	s.snapshot.Store(NewSnapshot(nil, nil))
	return s, nil
}

// Empty returns a Store with no database behind it; Reload and Ping return
// an error and classification always yields clean.
func Empty(cfg config.WatchlistConfig) *Store {
	s := &Store{topK: cfg.TopK, threshold: float32(cfg.Threshold)}
	s.snapshot.Store(NewSnapshot(nil, nil))
	return s
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("watchlist database not configured")
	}
	return s.pool.Ping(ctx)
}

// Reload fetches every criminal_records row and swaps in a new snapshot.
func (s *Store) Reload(ctx context.Context) (int, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("watchlist database not configured")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, nickname, age, police_station, crime_and_section,
		       head_of_crime, arrested_date, img_url, embedding
		FROM criminal_records`)
	if err != nil {
		return 0, fmt.Errorf("query criminal_records: %w", err)
	}
	defer rows.Close()

	var records []Record
	var embeddings [][]float32
	for rows.Next() {
		var r Record
		var vec pgvector.Vector
		if err := rows.Scan(&r.ID, &r.Name, &r.Nickname, &r.Age, &r.Station,
			&r.Crime, &r.HeadOfCrime, &r.ArrestDate, &r.ImageURL, &vec); err != nil {
			return 0, fmt.Errorf("scan criminal record: %w", err)
		}
		records = append(records, r)
		embeddings = append(embeddings, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read criminal_records: %w", err)
	}

	s.snapshot.Store(NewSnapshot(records, embeddings))
	observability.WatchlistEntries.Set(float64(len(records)))
	slog.Info("watchlist loaded", "entries", len(records))
	return len(records), nil
}

// Entries reports the size of the current snapshot.
func (s *Store) Entries() int {
	return s.snapshot.Load().Len()
}

// Match classifies an embedding against the current snapshot and returns
// the best hit, if any scores above the configured threshold.
func (s *Store) Match(emb []float32) (Match, bool) {
	matches := s.snapshot.Load().Classify(emb, s.topK, s.threshold)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}
