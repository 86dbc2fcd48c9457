package resultstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is an in-process [Store]. It keeps all records in a map guarded by
// a mutex and performs similarity search by exhaustive cosine distance, which
// is fine for tests and small single-node deployments.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

// Save implements [Store].
func (s *MemStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// List implements [Store].
func (s *MemStore) List(_ context.Context, opts ListOpts) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if opts.Grade != "" && rec.Grade != opts.Grade {
			continue
		}
		if !opts.Before.IsZero() && !rec.CreatedAt.Before(opts.Before) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Similar implements [Store].
func (s *MemStore) Similar(_ context.Context, embedding []float32, topK int) ([]SimilarResult, error) {
	if topK <= 0 {
		return []SimilarResult{}, nil
	}

	s.mu.RLock()
	results := make([]SimilarResult, 0, len(s.records))
	for _, rec := range s.records {
		if len(rec.Embedding) == 0 || len(rec.Embedding) != len(embedding) {
			continue
		}
		results = append(results, SimilarResult{
			Record:   cloneRecord(rec),
			Distance: cosineDistance(embedding, rec.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Close implements [Store]. It is a no-op for the in-memory store.
func (s *MemStore) Close() {}

// cloneRecord copies rec so callers cannot mutate stored state through the
// shared Document and Embedding slices.
func cloneRecord(rec Record) Record {
	out := rec
	if rec.Document != nil {
		out.Document = append([]byte(nil), rec.Document...)
	}
	if rec.Embedding != nil {
		out.Embedding = append([]float32(nil), rec.Embedding...)
	}
	return out
}

// cosineDistance returns 1 - cosine similarity, matching the ordering of the
// pgvector <=> operator. Zero vectors are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
