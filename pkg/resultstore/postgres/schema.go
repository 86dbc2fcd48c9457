package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlAnalyses returns the analyses DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlAnalyses(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS analyses (
    id          TEXT              PRIMARY KEY,
    video_path  TEXT              NOT NULL,
    language    TEXT              NOT NULL DEFAULT '',
    duration_ns BIGINT            NOT NULL DEFAULT 0,
    total_score INTEGER           NOT NULL,
    percentage  DOUBLE PRECISION  NOT NULL,
    grade       TEXT              NOT NULL,
    word_count  INTEGER           NOT NULL DEFAULT 0,
    document    JSONB             NOT NULL DEFAULT '{}',
    embedding   vector(%d),
    created_at  TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_created_at
    ON analyses (created_at);

CREATE INDEX IF NOT EXISTS idx_analyses_grade
    ON analyses (grade);

CREATE INDEX IF NOT EXISTS idx_analyses_embedding
    ON analyses USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the analyses table, its indexes, and the pgvector
// extension exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX
// IF NOT EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the embeddings provider configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires a
// manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlAnalyses(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
