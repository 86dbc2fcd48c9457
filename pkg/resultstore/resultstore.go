// Package resultstore defines persistence for completed lesson analyses.
//
// A [Record] is the stored summary of one analysed lesson video: identifying
// metadata, the headline score, the full result document as JSON, and an
// optional transcript embedding. The embedding powers "similar past lessons"
// search via vector distance.
//
// The package itself is storage-agnostic. Two implementations ship with
// ClassLens:
//
//   - [MemStore]: in-process, for tests and deployments without a database
//   - postgres.Store: PostgreSQL with pgvector for durable history and
//     approximate nearest-neighbour search
//
// Every implementation must be safe for concurrent use.
package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by [Store.Get] when no record exists for the
// requested ID.
var ErrNotFound = errors.New("resultstore: record not found")

// Record is the stored form of one completed lesson analysis.
type Record struct {
	// ID is the unique identifier for this analysis (a UUID).
	ID string

	// VideoPath is the path or URL of the analysed lesson video.
	VideoPath string

	// Language is the detected or configured transcript language (BCP 47).
	Language string

	// Duration is the length of the analysed video.
	Duration time.Duration

	// TotalScore is the overall score on the 0–1000 scale.
	TotalScore int

	// Percentage is TotalScore expressed as 0–100.
	Percentage float64

	// Grade is the letter grade derived from TotalScore.
	Grade string

	// WordCount is the number of transcript words that entered scoring.
	WordCount int

	// Document is the complete analysis result serialised as JSON,
	// including per-category scores, sampling stats, and the narrative
	// report when one was produced.
	Document json.RawMessage

	// Embedding is the transcript embedding used for similar-lesson search.
	// Empty when no embeddings provider was configured for the run.
	// Dimension must match the store configuration.
	Embedding []float32

	// CreatedAt is when the analysis completed.
	CreatedAt time.Time
}

// ListOpts narrows a [Store.List] query. All non-zero fields are applied as
// AND conditions.
type ListOpts struct {
	// Grade restricts results to records with this letter grade.
	Grade string

	// Before filters records created before this instant (exclusive).
	// A zero Time disables the bound. Used for created_at pagination.
	Before time.Time

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// SimilarResult pairs a retrieved record with its vector-space distance from
// the query embedding. Lower Distance values indicate higher similarity.
type SimilarResult struct {
	// Record is the retrieved analysis.
	Record Record

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// Store persists analysis records and supports retrieval by ID, listing in
// reverse chronological order, and embedding-based similarity search.
type Store interface {
	// Save upserts a record. A record with the same ID is completely replaced.
	Save(ctx context.Context, rec Record) error

	// Get returns the record with the given ID, or [ErrNotFound].
	Get(ctx context.Context, id string) (Record, error)

	// List returns records matching opts, newest first.
	List(ctx context.Context, opts ListOpts) ([]Record, error)

	// Similar returns the topK records whose embeddings are closest to the
	// supplied query embedding, most similar first. Records stored without
	// an embedding are never returned.
	Similar(ctx context.Context, embedding []float32, topK int) ([]SimilarResult, error)

	// Close releases any resources held by the store.
	Close()
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
