package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// EnqueueAnalysis queues an analysis task keyed by its analysis ID, so the
// same analysis cannot run twice concurrently.
func (q *Queue) EnqueueAnalysis(p AnalyzePayload) (string, error) {
	return q.EnqueueUnique(TaskAnalyzeVideo, p, p.AnalysisID)
}

// Inline runs analyses in-process, for deployments without Redis. It feeds
// the same [AnalyzeHandler] the queue worker uses, bounded by a semaphore,
// and satisfies the server's enqueuer dependency.
type Inline struct {
	handler *AnalyzeHandler
	sem     chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewInline creates an inline runner executing at most concurrency analyses
// at a time. concurrency <= 0 selects the queue default.
func NewInline(handler *AnalyzeHandler, concurrency int) *Inline {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inline{
		handler: handler,
		sem:     make(chan struct{}, concurrency),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// EnqueueAnalysis starts the analysis in a background goroutine and returns
// immediately with the analysis ID as the task ID.
func (i *Inline) EnqueueAnalysis(p AnalyzePayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("jobs: marshal payload: %w", err)
	}
	task := asynq.NewTask(TaskAnalyzeVideo, data)

	go func() {
		select {
		case i.sem <- struct{}{}:
		case <-i.baseCtx.Done():
			return
		}
		defer func() { <-i.sem }()

		if err := i.handler.ProcessTask(i.baseCtx, task); err != nil {
			slog.Error("jobs: inline analysis failed", "analysis_id", p.AnalysisID, "err", err)
		}
	}()
	return p.AnalysisID, nil
}

// Stop cancels all running and pending inline analyses.
func (i *Inline) Stop() {
	i.cancel()
}
