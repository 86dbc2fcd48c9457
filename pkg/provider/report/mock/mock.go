// Package mock provides a scripted report.Writer for tests.
package mock

import (
	"context"
	"sync"

	"github.com/classlens/classlens/pkg/provider/report"
)

// Writer is a scripted report.Writer. Configure Result or Err before use;
// Calls records every request received.
type Writer struct {
	mu sync.Mutex

	// Result is returned by WriteReport when Err is nil. When both are
	// unset, a minimal canned report is returned.
	Result *report.Report

	// Err, when set, is returned by every WriteReport call.
	Err error

	// Calls records the requests passed to WriteReport.
	Calls []report.Request
}

var _ report.Writer = (*Writer)(nil)

// WriteReport implements report.Writer.
func (w *Writer) WriteReport(ctx context.Context, req report.Request) (*report.Report, error) {
	w.mu.Lock()
	w.Calls = append(w.Calls, req)
	w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.Err != nil {
		return nil, w.Err
	}
	if w.Result != nil {
		return w.Result, nil
	}
	return &report.Report{Narrative: "mock report", Model: "mock"}, nil
}
