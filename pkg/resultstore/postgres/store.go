// Package postgres provides a PostgreSQL-backed [resultstore.Store].
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS. Similarity
// search uses an HNSW index with the cosine distance operator.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Save(ctx, rec)
//	similar, _ := store.Similar(ctx, embedding, 5)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/classlens/classlens/pkg/resultstore"
)

// Compile-time interface check.
var _ resultstore.Store = (*Store)(nil)

// Store is the PostgreSQL-backed analysis history. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure the analyses table and extensions exist.
//
// embeddingDimensions must match the output dimension of the embeddings
// provider used to produce [resultstore.Record.Embedding] values (e.g., 1536
// for OpenAI text-embedding-3-small). Changing this value after the first
// migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres resultstore: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres resultstore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres resultstore: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres resultstore: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Save implements [resultstore.Store]. A record with the same ID is
// completely replaced.
func (s *Store) Save(ctx context.Context, rec resultstore.Record) error {
	const q = `
		INSERT INTO analyses
		    (id, video_path, language, duration_ns, total_score, percentage,
		     grade, word_count, document, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
		    video_path  = EXCLUDED.video_path,
		    language    = EXCLUDED.language,
		    duration_ns = EXCLUDED.duration_ns,
		    total_score = EXCLUDED.total_score,
		    percentage  = EXCLUDED.percentage,
		    grade       = EXCLUDED.grade,
		    word_count  = EXCLUDED.word_count,
		    document    = EXCLUDED.document,
		    embedding   = EXCLUDED.embedding,
		    created_at  = EXCLUDED.created_at`

	// Records without an embedding store SQL NULL so the HNSW index and
	// similarity queries skip them.
	var emb any
	if len(rec.Embedding) > 0 {
		emb = pgvector.NewVector(rec.Embedding)
	}

	doc := rec.Document
	if len(doc) == 0 {
		doc = []byte("{}")
	}

	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.VideoPath,
		rec.Language,
		rec.Duration.Nanoseconds(),
		rec.TotalScore,
		rec.Percentage,
		rec.Grade,
		rec.WordCount,
		doc,
		emb,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres resultstore: save: %w", err)
	}
	return nil
}

// Get implements [resultstore.Store].
func (s *Store) Get(ctx context.Context, id string) (resultstore.Record, error) {
	const q = `
		SELECT id, video_path, language, duration_ns, total_score, percentage,
		       grade, word_count, document, embedding, created_at
		FROM   analyses
		WHERE  id = $1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return resultstore.Record{}, resultstore.ErrNotFound
	}
	if err != nil {
		return resultstore.Record{}, fmt.Errorf("postgres resultstore: get: %w", err)
	}
	return rec, nil
}

// List implements [resultstore.Store]. Results are ordered newest first.
func (s *Store) List(ctx context.Context, opts resultstore.ListOpts) ([]resultstore.Record, error) {
	var (
		args []any
		next = func(v any) string {
			args = append(args, v)
			return fmt.Sprintf("$%d", len(args))
		}
		conditions []string
	)
	if opts.Grade != "" {
		conditions = append(conditions, "grade = "+next(opts.Grade))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "created_at < "+next(opts.Before))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	limitArg := next(limit)

	q := fmt.Sprintf(`
		SELECT id, video_path, language, duration_ns, total_score, percentage,
		       grade, word_count, document, embedding, created_at
		FROM   analyses
		%s
		ORDER  BY created_at DESC, id
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres resultstore: list: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (resultstore.Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres resultstore: scan rows: %w", err)
	}
	if records == nil {
		records = []resultstore.Record{}
	}
	return records, nil
}

// Similar implements [resultstore.Store]. It finds the topK records whose
// embeddings are closest (cosine distance) to the supplied query embedding.
// Records stored without an embedding are excluded.
func (s *Store) Similar(ctx context.Context, embedding []float32, topK int) ([]resultstore.SimilarResult, error) {
	const q = `
		SELECT id, video_path, language, duration_ns, total_score, percentage,
		       grade, word_count, document, embedding, created_at,
		       embedding <=> $1 AS distance
		FROM   analyses
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres resultstore: similar: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (resultstore.SimilarResult, error) {
		var (
			sr  resultstore.SimilarResult
			vec *pgvector.Vector
		)
		if err := row.Scan(
			&sr.Record.ID,
			&sr.Record.VideoPath,
			&sr.Record.Language,
			&sr.Record.Duration,
			&sr.Record.TotalScore,
			&sr.Record.Percentage,
			&sr.Record.Grade,
			&sr.Record.WordCount,
			&sr.Record.Document,
			&vec,
			&sr.Record.CreatedAt,
			&sr.Distance,
		); err != nil {
			return resultstore.SimilarResult{}, err
		}
		if vec != nil {
			sr.Record.Embedding = vec.Slice()
		}
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres resultstore: scan rows: %w", err)
	}
	if results == nil {
		results = []resultstore.SimilarResult{}
	}
	return results, nil
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}

// scanRecord scans one analyses row in SELECT column order. The duration_ns
// column scans directly into time.Duration (an int64).
func scanRecord(row pgx.Row) (resultstore.Record, error) {
	var (
		rec resultstore.Record
		vec *pgvector.Vector
	)
	err := row.Scan(
		&rec.ID,
		&rec.VideoPath,
		&rec.Language,
		&rec.Duration,
		&rec.TotalScore,
		&rec.Percentage,
		&rec.Grade,
		&rec.WordCount,
		&rec.Document,
		&vec,
		&rec.CreatedAt,
	)
	if err != nil {
		return resultstore.Record{}, err
	}
	if vec != nil {
		rec.Embedding = vec.Slice()
	}
	return rec, nil
}
