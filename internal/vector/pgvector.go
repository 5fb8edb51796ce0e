package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVectorIndex stores points in a PostgreSQL table using the pgvector extension.
// The table is named after the collection.
type PGVectorIndex struct {
	db       *sqlx.DB
	table    string
	distance Distance
	mu       sync.RWMutex
}

// NewPGVectorIndex connects to dsn. The collection table is created by ResetCollection.
func NewPGVectorIndex(ctx context.Context, dsn, collection string, distance Distance) (*PGVectorIndex, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PGVectorIndex{db: db, table: collection, distance: distance}, nil
}

func (p *PGVectorIndex) current() (string, Distance) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pq.QuoteIdentifier(p.table), p.distance
}

// distanceOperator returns the pgvector operator for d and a function turning its result into a score.
func distanceOperator(d Distance) (string, func(float64) float64) {
	switch d {
	case Dot:
		// <#> is the negated inner product.
		return "<#>", func(v float64) float64 { return -v }
	case Euclid:
		return "<->", func(v float64) float64 { return -v }
	default:
		return "<=>", func(v float64) float64 { return 1 - v }
	}
}

// ResetCollection drops and recreates the collection table inside one transaction.
func (p *PGVectorIndex) ResetCollection(ctx context.Context, name string, dimensions int, distance Distance) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	p.mu.Lock()
	if name != "" {
		p.table = name
	}
	p.distance = distance
	p.mu.Unlock()
	table, _ := p.current()

	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	create := fmt.Sprintf(`CREATE TABLE %s (
		id BIGINT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb
	)`, table, dimensions)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return tx.Commit()
}

// Upsert inserts or replaces the point with the given id.
func (p *PGVectorIndex) Upsert(ctx context.Context, id uint64, vector []float32, metadata map[string]string) error {
	table, _ := p.current()
	md, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `INSERT INTO ` + table + ` (id, embedding, metadata) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`
	if _, err := p.db.ExecContext(ctx, query, int64(id), pgvector.NewVector(vector), md); err != nil {
		return fmt.Errorf("upsert point %d: %w", id, err)
	}
	return nil
}

type pgHit struct {
	ID       int64   `db:"id"`
	Metadata []byte  `db:"metadata"`
	Distance float64 `db:"distance"`
}

// Search orders rows by the collection's distance operator, ties broken by ascending id.
func (p *PGVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	table, distance := p.current()
	op, toScore := distanceOperator(distance)
	query := fmt.Sprintf(`SELECT id, metadata, embedding %s $1 AS distance FROM %s ORDER BY distance, id LIMIT $2`, op, table)
	var rows []pgHit
	if err := p.db.SelectContext(ctx, &rows, query, pgvector.NewVector(vector), topK); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		md := map[string]string{}
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &md); err != nil {
				return nil, fmt.Errorf("decode metadata for point %d: %w", r.ID, err)
			}
		}
		hits = append(hits, Hit{ID: uint64(r.ID), Metadata: md, Score: toScore(r.Distance)})
	}
	return hits, nil
}

// Count returns the number of rows in the collection table.
func (p *PGVectorIndex) Count(ctx context.Context) (int, error) {
	table, _ := p.current()
	var n int
	if err := p.db.GetContext(ctx, &n, `SELECT count(*) FROM `+table); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Close closes the database pool.
func (p *PGVectorIndex) Close() error {
	return p.db.Close()
}
