package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/classlens/classlens/internal/analysis"
	"github.com/classlens/classlens/pkg/provider/embeddings"
	"github.com/classlens/classlens/pkg/provider/transcribe"
	"github.com/classlens/classlens/pkg/resultstore"
)

// progressInterval throttles progress broadcasts so a fast-moving pipeline
// does not flood WebSocket subscribers.
const progressInterval = 500 * time.Millisecond

// maxEmbedChars caps the transcript text submitted for embedding. Provider
// token limits vary; this keeps the request well under all of them.
const maxEmbedChars = 8000

// Analyzer runs one video through the analysis pipeline. *analysis.Pipeline
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, videoPath string, onProgress analysis.ProgressFunc) (*analysis.Result, error)
}

// AnalyzeHandler processes [TaskAnalyzeVideo] tasks: it runs the pipeline,
// embeds the transcript for similarity search, persists the record, and
// broadcasts lifecycle events.
type AnalyzeHandler struct {
	analyzer Analyzer
	store    resultstore.Store
	embedder embeddings.Provider
	notifier EventNotifier
}

// AnalyzeHandlerOption configures an [AnalyzeHandler].
type AnalyzeHandlerOption func(*AnalyzeHandler)

// WithStore persists finished analyses to store. Without it results are
// computed and broadcast but not stored.
func WithStore(store resultstore.Store) AnalyzeHandlerOption {
	return func(h *AnalyzeHandler) { h.store = store }
}

// WithEmbedder embeds real transcripts so stored records support
// similar-lesson search.
func WithEmbedder(p embeddings.Provider) AnalyzeHandlerOption {
	return func(h *AnalyzeHandler) { h.embedder = p }
}

// WithNotifier broadcasts start, progress, complete, and failed events.
func WithNotifier(n EventNotifier) AnalyzeHandlerOption {
	return func(h *AnalyzeHandler) { h.notifier = n }
}

// NewAnalyzeHandler creates a handler running analyses through analyzer.
func NewAnalyzeHandler(analyzer Analyzer, opts ...AnalyzeHandlerOption) *AnalyzeHandler {
	h := &AnalyzeHandler{analyzer: analyzer}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessTask implements [asynq.Handler]. Returning an error makes asynq
// retry the task, so only failures worth re-running the pipeline for are
// returned; embedding failures degrade to a record without an embedding.
func (h *AnalyzeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AnalyzePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("jobs: unmarshal analyze payload: %w", err)
	}

	slog.Info("jobs: analysis task starting", "analysis_id", p.AnalysisID, "video", p.VideoPath)
	h.broadcast("analysis:start", map[string]any{
		"analysis_id": p.AnalysisID,
		"video_path":  p.VideoPath,
	})

	res, err := h.analyzer.Analyze(ctx, p.VideoPath, h.progressFunc(p.AnalysisID))
	if err != nil {
		h.broadcast("analysis:failed", map[string]any{
			"analysis_id": p.AnalysisID,
			"error":       err.Error(),
		})
		return fmt.Errorf("jobs: analyze %q: %w", p.VideoPath, err)
	}

	if h.store != nil {
		rec, err := h.buildRecord(ctx, p, res)
		if err != nil {
			return err
		}
		if err := h.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("jobs: save analysis %q: %w", p.AnalysisID, err)
		}
	}

	h.broadcast("analysis:complete", map[string]any{
		"analysis_id": p.AnalysisID,
		"total_score": res.Score.TotalScore,
		"grade":       string(res.Score.Grade),
	})
	return nil
}

// progressFunc returns a throttled pipeline progress callback that broadcasts
// at most every progressInterval, plus always on completion.
func (h *AnalyzeHandler) progressFunc(analysisID string) analysis.ProgressFunc {
	if h.notifier == nil {
		return nil
	}
	var lastBroadcast time.Time
	return func(pr analysis.Progress) {
		now := time.Now()
		if now.Sub(lastBroadcast) < progressInterval && pr.Percent < 100 {
			return
		}
		lastBroadcast = now
		h.broadcast("analysis:progress", map[string]any{
			"analysis_id": analysisID,
			"stage":       string(pr.Stage),
			"percent":     pr.Percent,
		})
	}
}

// buildRecord converts a finished analysis into its stored form, embedding
// the transcript when an embedder is configured and the transcript is real.
func (h *AnalyzeHandler) buildRecord(ctx context.Context, p AnalyzePayload, res *analysis.Result) (resultstore.Record, error) {
	doc, err := json.Marshal(res)
	if err != nil {
		return resultstore.Record{}, fmt.Errorf("jobs: marshal analysis %q: %w", p.AnalysisID, err)
	}

	language := res.Transcript.Language
	if language == "" {
		language = p.Language
	}

	rec := resultstore.Record{
		ID:         p.AnalysisID,
		VideoPath:  p.VideoPath,
		Language:   language,
		Duration:   res.Sampling.Duration,
		TotalScore: res.Score.TotalScore,
		Percentage: res.Score.Percentage,
		Grade:      string(res.Score.Grade),
		WordCount:  res.Lexical.Vocabulary.TotalWords,
		Document:   doc,
		CreatedAt:  res.StartedAt.Add(res.Elapsed),
	}

	if h.embedder != nil && res.Transcript.Source == transcribe.SourceReal {
		if text := transcriptText(res.Transcript); text != "" {
			vec, err := h.embedder.Embed(ctx, text)
			if err != nil {
				slog.Warn("jobs: transcript embedding failed, storing without", "analysis_id", p.AnalysisID, "err", err)
			} else {
				rec.Embedding = vec
			}
		}
	}
	return rec, nil
}

// broadcast sends an event when a notifier is configured.
func (h *AnalyzeHandler) broadcast(event string, data any) {
	if h.notifier != nil {
		h.notifier.Broadcast(event, data)
	}
}

// transcriptText joins the transcript's words into the text submitted for
// embedding, truncated at a word boundary to maxEmbedChars.
func transcriptText(tr transcribe.Transcript) string {
	var b strings.Builder
	for _, w := range tr.Words {
		if b.Len() > 0 {
			if b.Len()+1+len(w.Text) > maxEmbedChars {
				break
			}
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
	}
	return b.String()
}
