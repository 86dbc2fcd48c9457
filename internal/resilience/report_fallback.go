package resilience

import (
	"context"

	"github.com/classlens/classlens/pkg/provider/report"
)

// ReportFallback implements [report.Writer] with automatic failover across
// multiple narrative backends, typically a hosted model with a local one
// behind it.
type ReportFallback struct {
	group *FallbackGroup[report.Writer]
}

// Compile-time interface assertion.
var _ report.Writer = (*ReportFallback)(nil)

// NewReportFallback creates a [ReportFallback] with primary as the preferred
// backend.
func NewReportFallback(primary report.Writer, primaryName string, cfg FallbackConfig) *ReportFallback {
	return &ReportFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional report writer as a fallback.
func (f *ReportFallback) AddFallback(name string, w report.Writer) {
	f.group.AddFallback(name, w)
}

// WriteReport produces the narrative via the first healthy backend.
func (f *ReportFallback) WriteReport(ctx context.Context, req report.Request) (*report.Report, error) {
	return ExecuteWithResult(f.group, func(w report.Writer) (*report.Report, error) {
		return w.WriteReport(ctx, req)
	})
}
