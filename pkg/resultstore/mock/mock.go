// Package mock provides a configurable test double for [resultstore.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use
// via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{}
//	store.GetResult = resultstore.Record{ID: "abc", Grade: "A"}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("Save"); got != 1 {
//	    t.Errorf("expected 1 Save call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/classlens/classlens/pkg/resultstore"
)

// Compile-time interface check.
var _ resultstore.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [resultstore.Store]. All exported
// *Err fields default to nil (success); slice-valued *Result fields default
// to nil (empty non-nil slice returned).
type Store struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// SaveErr is returned by [Store.Save] when non-nil.
	SaveErr error

	// GetResult is returned by [Store.Get] when GetErr is nil.
	GetResult resultstore.Record

	// GetErr is returned by [Store.Get] when non-nil.
	// Defaults to nil; set to resultstore.ErrNotFound to simulate a miss.
	GetErr error

	// ListResult is returned by [Store.List].
	ListResult []resultstore.Record

	// ListErr is returned by [Store.List] when non-nil.
	ListErr error

	// SimilarResult is returned by [Store.Similar].
	SimilarResult []resultstore.SimilarResult

	// SimilarErr is returned by [Store.Similar] when non-nil.
	SimilarErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// record appends a call under the lock.
func (m *Store) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Save implements [resultstore.Store].
func (m *Store) Save(_ context.Context, rec resultstore.Record) error {
	m.record("Save", rec)
	return m.SaveErr
}

// Get implements [resultstore.Store].
func (m *Store) Get(_ context.Context, id string) (resultstore.Record, error) {
	m.record("Get", id)
	if m.GetErr != nil {
		return resultstore.Record{}, m.GetErr
	}
	return m.GetResult, nil
}

// List implements [resultstore.Store].
func (m *Store) List(_ context.Context, opts resultstore.ListOpts) ([]resultstore.Record, error) {
	m.record("List", opts)
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if m.ListResult == nil {
		return []resultstore.Record{}, nil
	}
	return m.ListResult, nil
}

// Similar implements [resultstore.Store].
func (m *Store) Similar(_ context.Context, embedding []float32, topK int) ([]resultstore.SimilarResult, error) {
	m.record("Similar", embedding, topK)
	if m.SimilarErr != nil {
		return nil, m.SimilarErr
	}
	if m.SimilarResult == nil {
		return []resultstore.SimilarResult{}, nil
	}
	return m.SimilarResult, nil
}

// Close implements [resultstore.Store].
func (m *Store) Close() {
	m.record("Close")
}
