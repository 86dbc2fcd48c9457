package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/classlens/classlens/internal/analysis"
	"github.com/classlens/classlens/internal/jobs"
	"github.com/classlens/classlens/internal/sampler"
	"github.com/classlens/classlens/internal/scoring"
	embmock "github.com/classlens/classlens/pkg/provider/embeddings/mock"
	"github.com/classlens/classlens/pkg/provider/transcribe"
	"github.com/classlens/classlens/pkg/resultstore"
	storemock "github.com/classlens/classlens/pkg/resultstore/mock"
)

// stubAnalyzer returns a canned result, optionally emitting progress first.
type stubAnalyzer struct {
	result   *analysis.Result
	err      error
	progress []analysis.Progress

	mu    sync.Mutex
	calls []string
}

func (s *stubAnalyzer) Analyze(_ context.Context, videoPath string, onProgress analysis.ProgressFunc) (*analysis.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, videoPath)
	s.mu.Unlock()
	if onProgress != nil {
		for _, pr := range s.progress {
			onProgress(pr)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// recordingNotifier collects broadcast events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (n *recordingNotifier) Broadcast(event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.data = append(n.data, data)
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func testResult(source transcribe.Source, words ...string) *analysis.Result {
	tr := transcribe.Transcript{Language: "en", Source: source}
	for i, text := range words {
		tr.Words = append(tr.Words, transcribe.Word{
			Text:  text,
			Start: time.Duration(i) * time.Second,
			End:   time.Duration(i)*time.Second + 400*time.Millisecond,
		})
	}
	return &analysis.Result{
		VideoPath:  "/videos/lesson.mp4",
		Sampling:   &sampler.Result{Duration: 10 * time.Minute},
		Transcript: tr,
		Score: &scoring.Result{
			TotalScore: 815,
			Percentage: 81.5,
			Grade:      scoring.GradeFor(81.5),
		},
		StartedAt: time.Now().Add(-time.Minute),
		Elapsed:   time.Minute,
	}
}

func analyzeTask(t *testing.T, p jobs.AnalyzePayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(jobs.TaskAnalyzeVideo, data)
}

func TestProcessTask_SavesRecord(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{}
	an := &stubAnalyzer{result: testResult(transcribe.SourceReal, "hello", "class")}
	h := jobs.NewAnalyzeHandler(an, jobs.WithStore(store))

	p := jobs.AnalyzePayload{AnalysisID: jobs.NewAnalysisID(), VideoPath: "/videos/lesson.mp4"}
	if err := h.ProcessTask(context.Background(), analyzeTask(t, p)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	calls := store.Calls()
	if len(calls) != 1 || calls[0].Method != "Save" {
		t.Fatalf("expected exactly one Save call, got %v", calls)
	}
	rec, ok := calls[0].Args[0].(resultstore.Record)
	if !ok {
		t.Fatalf("Save arg is not a Record: %T", calls[0].Args[0])
	}
	if rec.ID != p.AnalysisID {
		t.Errorf("record ID: want %q, got %q", p.AnalysisID, rec.ID)
	}
	if rec.TotalScore != 815 {
		t.Errorf("record TotalScore: want 815, got %d", rec.TotalScore)
	}
	if rec.Duration != 10*time.Minute {
		t.Errorf("record Duration: want 10m, got %s", rec.Duration)
	}
	if len(rec.Document) == 0 {
		t.Error("record Document should carry the serialised result")
	}
}

func TestProcessTask_EmbedsRealTranscript(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{}
	embedder := &embmock.Provider{EmbedResult: []float32{0.1, 0.2}}
	an := &stubAnalyzer{result: testResult(transcribe.SourceReal, "hello", "class")}
	h := jobs.NewAnalyzeHandler(an, jobs.WithStore(store), jobs.WithEmbedder(embedder))

	p := jobs.AnalyzePayload{AnalysisID: jobs.NewAnalysisID(), VideoPath: "/videos/lesson.mp4"}
	if err := h.ProcessTask(context.Background(), analyzeTask(t, p)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if len(embedder.EmbedCalls) != 1 {
		t.Fatalf("expected 1 Embed call, got %d", len(embedder.EmbedCalls))
	}
	if got := embedder.EmbedCalls[0].Text; got != "hello class" {
		t.Errorf("embedded text: want %q, got %q", "hello class", got)
	}
	rec := store.Calls()[0].Args[0].(resultstore.Record)
	if len(rec.Embedding) != 2 {
		t.Errorf("record Embedding: want 2 dims, got %d", len(rec.Embedding))
	}
}

func TestProcessTask_FallbackTranscriptNotEmbedded(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{}
	embedder := &embmock.Provider{EmbedResult: []float32{0.1}}
	an := &stubAnalyzer{result: testResult(transcribe.SourceFallback)}
	h := jobs.NewAnalyzeHandler(an, jobs.WithStore(store), jobs.WithEmbedder(embedder))

	p := jobs.AnalyzePayload{AnalysisID: jobs.NewAnalysisID(), VideoPath: "/videos/lesson.mp4"}
	if err := h.ProcessTask(context.Background(), analyzeTask(t, p)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if len(embedder.EmbedCalls) != 0 {
		t.Errorf("fallback transcript must not be embedded, got %d Embed calls", len(embedder.EmbedCalls))
	}
	rec := store.Calls()[0].Args[0].(resultstore.Record)
	if rec.Embedding != nil {
		t.Error("record Embedding should be nil for a fallback transcript")
	}
}

func TestProcessTask_EmbeddingFailureStoresWithout(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{}
	embedder := &embmock.Provider{EmbedErr: errors.New("provider down")}
	an := &stubAnalyzer{result: testResult(transcribe.SourceReal, "hello")}
	h := jobs.NewAnalyzeHandler(an, jobs.WithStore(store), jobs.WithEmbedder(embedder))

	p := jobs.AnalyzePayload{AnalysisID: jobs.NewAnalysisID(), VideoPath: "/videos/lesson.mp4"}
	if err := h.ProcessTask(context.Background(), analyzeTask(t, p)); err != nil {
		t.Fatalf("ProcessTask should not fail on embedding errors: %v", err)
	}
	rec := store.Calls()[0].Args[0].(resultstore.Record)
	if rec.Embedding != nil {
		t.Error("record Embedding should be nil after an embedding failure")
	}
}

func TestProcessTask_AnalyzerFailureBroadcastsAndErrors(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	wantErr := errors.New("no frames")
	an := &stubAnalyzer{err: wantErr}
	h := jobs.NewAnalyzeHandler(an, jobs.WithNotifier(notifier))

	p := jobs.AnalyzePayload{AnalysisID: jobs.NewAnalysisID(), VideoPath: "/videos/broken.mp4"}
	err := h.ProcessTask(context.Background(), analyzeTask(t, p))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected analyzer error, got %v", err)
	}
	if !notifier.has("analysis:failed") {
		t.Error("expected analysis:failed broadcast")
	}
	if notifier.has("analysis:complete") {
		t.Error("analysis:complete must not be broadcast on failure")
	}
}

func TestProcessTask_BroadcastsLifecycle(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	an := &stubAnalyzer{
		result: testResult(transcribe.SourceReal, "hello"),
		progress: []analysis.Progress{
			{Stage: analysis.StageSampling, Percent: 30},
			{Stage: analysis.StageDone, Percent: 100},
		},
	}
	h := jobs.NewAnalyzeHandler(an, jobs.WithNotifier(notifier))

	p := jobs.AnalyzePayload{AnalysisID: jobs.NewAnalysisID(), VideoPath: "/videos/lesson.mp4"}
	if err := h.ProcessTask(context.Background(), analyzeTask(t, p)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	for _, want := range []string{"analysis:start", "analysis:progress", "analysis:complete"} {
		if !notifier.has(want) {
			t.Errorf("expected %s broadcast, events: %v", want, notifier.events)
		}
	}
}

func TestProcessTask_SaveFailureReturnsError(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{SaveErr: errors.New("db down")}
	an := &stubAnalyzer{result: testResult(transcribe.SourceReal, "hello")}
	h := jobs.NewAnalyzeHandler(an, jobs.WithStore(store))

	p := jobs.AnalyzePayload{AnalysisID: jobs.NewAnalysisID(), VideoPath: "/videos/lesson.mp4"}
	err := h.ProcessTask(context.Background(), analyzeTask(t, p))
	if err == nil || !strings.Contains(err.Error(), "save analysis") {
		t.Fatalf("expected save failure, got %v", err)
	}
}

func TestProcessTask_BadPayload(t *testing.T) {
	t.Parallel()
	h := jobs.NewAnalyzeHandler(&stubAnalyzer{result: testResult(transcribe.SourceReal)})

	task := asynq.NewTask(jobs.TaskAnalyzeVideo, []byte("{not json"))
	if err := h.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
