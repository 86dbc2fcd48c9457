package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/classlens/classlens/pkg/provider/report"
	reportmock "github.com/classlens/classlens/pkg/provider/report/mock"
)

func TestReportFallback_PrimarySuccess(t *testing.T) {
	primary := &reportmock.Writer{
		Result: &report.Report{Narrative: "primary narrative", Model: "gpt-4o"},
	}
	secondary := &reportmock.Writer{}

	fb := NewReportFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.WriteReport(context.Background(), report.Request{Grade: "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Narrative != "primary narrative" {
		t.Fatalf("unexpected report: %+v", got)
	}
	if len(secondary.Calls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestReportFallback_Failover(t *testing.T) {
	primary := &reportmock.Writer{Err: errors.New("rate limited")}
	secondary := &reportmock.Writer{
		Result: &report.Report{Narrative: "local narrative", Model: "llama3.1"},
	}

	fb := NewReportFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.WriteReport(context.Background(), report.Request{Grade: "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Narrative != "local narrative" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestReportFallback_AllFail(t *testing.T) {
	primary := &reportmock.Writer{Err: errors.New("primary down")}
	secondary := &reportmock.Writer{Err: errors.New("secondary down")}

	fb := NewReportFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.WriteReport(context.Background(), report.Request{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
