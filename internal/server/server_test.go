package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/classlens/classlens/internal/jobs"
	"github.com/classlens/classlens/internal/server"
	"github.com/classlens/classlens/pkg/resultstore"
	storemock "github.com/classlens/classlens/pkg/resultstore/mock"
)

// stubEnqueuer records submitted payloads.
type stubEnqueuer struct {
	mu       sync.Mutex
	payloads []jobs.AnalyzePayload
	err      error
}

func (e *stubEnqueuer) EnqueueAnalysis(p jobs.AnalyzePayload) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.payloads = append(e.payloads, p)
	return p.AnalysisID, nil
}

func storedRecord(id string) resultstore.Record {
	return resultstore.Record{
		ID:         id,
		VideoPath:  "/videos/" + id + ".mp4",
		Language:   "en",
		Duration:   20 * time.Minute,
		TotalScore: 750,
		Percentage: 75,
		Grade:      "B",
		WordCount:  2500,
		Document:   json.RawMessage(`{"total_score":750}`),
		CreatedAt:  time.Now().UTC(),
	}
}

func decodeBody(t *testing.T, res *http.Response, v any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateAnalysis(t *testing.T) {
	t.Parallel()
	enq := &stubEnqueuer{}
	srv := httptest.NewServer(server.New(":0", enq).Handler())
	defer srv.Close()

	body := strings.NewReader(`{"video_path":"/videos/lesson.mp4","language":"de"}`)
	res, err := http.Post(srv.URL+"/api/v1/analyses", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status: want 202, got %d", res.StatusCode)
	}

	var ack struct {
		AnalysisID string `json:"analysis_id"`
		Status     string `json:"status"`
	}
	decodeBody(t, res, &ack)
	if ack.AnalysisID == "" {
		t.Error("response should carry an analysis_id")
	}
	if ack.Status != "queued" {
		t.Errorf("status: want queued, got %q", ack.Status)
	}

	enq.mu.Lock()
	defer enq.mu.Unlock()
	if len(enq.payloads) != 1 {
		t.Fatalf("expected 1 enqueued payload, got %d", len(enq.payloads))
	}
	if enq.payloads[0].VideoPath != "/videos/lesson.mp4" || enq.payloads[0].Language != "de" {
		t.Errorf("unexpected payload: %+v", enq.payloads[0])
	}
}

func TestCreateAnalysis_MissingVideoPath(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(server.New(":0", &stubEnqueuer{}).Handler())
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/v1/analyses", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status: want 400, got %d", res.StatusCode)
	}
}

func TestCreateAnalysis_InvalidJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(server.New(":0", &stubEnqueuer{}).Handler())
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/v1/analyses", "application/json", strings.NewReader(`{nope`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status: want 400, got %d", res.StatusCode)
	}
}

func TestCreateAnalysis_NoEnqueuer(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(server.New(":0", nil).Handler())
	defer srv.Close()

	body := strings.NewReader(`{"video_path":"/videos/lesson.mp4"}`)
	res, err := http.Post(srv.URL+"/api/v1/analyses", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: want 503, got %d", res.StatusCode)
	}
}

func TestListAnalyses(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{ListResult: []resultstore.Record{storedRecord("one"), storedRecord("two")}}
	srv := httptest.NewServer(server.New(":0", nil, server.WithStore(store)).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/analyses?limit=10&grade=B")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: want 200, got %d", res.StatusCode)
	}

	var body struct {
		Analyses []struct {
			AnalysisID string `json:"analysis_id"`
			Grade      string `json:"grade"`
		} `json:"analyses"`
	}
	decodeBody(t, res, &body)
	if len(body.Analyses) != 2 {
		t.Fatalf("want 2 analyses, got %d", len(body.Analyses))
	}

	opts, ok := store.Calls()[0].Args[0].(resultstore.ListOpts)
	if !ok {
		t.Fatalf("List arg is not ListOpts")
	}
	if opts.Limit != 10 || opts.Grade != "B" {
		t.Errorf("ListOpts: got %+v", opts)
	}
}

func TestListAnalyses_BadLimit(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(server.New(":0", nil, server.WithStore(&storemock.Store{})).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/analyses?limit=nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status: want 400, got %d", res.StatusCode)
	}
}

func TestGetAnalysis(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{GetResult: storedRecord("abc")}
	srv := httptest.NewServer(server.New(":0", nil, server.WithStore(store)).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/analyses/abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: want 200, got %d", res.StatusCode)
	}

	var body struct {
		AnalysisID string          `json:"analysis_id"`
		Result     json.RawMessage `json:"result"`
	}
	decodeBody(t, res, &body)
	if body.AnalysisID != "abc" {
		t.Errorf("analysis_id: want abc, got %q", body.AnalysisID)
	}
	if !strings.Contains(string(body.Result), "total_score") {
		t.Errorf("result document missing, got %s", body.Result)
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{GetErr: resultstore.ErrNotFound}
	srv := httptest.NewServer(server.New(":0", nil, server.WithStore(store)).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/analyses/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status: want 404, got %d", res.StatusCode)
	}
}

func TestGetAnalysis_NoStore(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(server.New(":0", nil).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/analyses/abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: want 503, got %d", res.StatusCode)
	}
}

func TestSimilarAnalyses(t *testing.T) {
	t.Parallel()
	self := storedRecord("self")
	self.Embedding = []float32{1, 0}
	other := storedRecord("other")
	other.Embedding = []float32{0.9, 0.1}

	store := &storemock.Store{
		GetResult: self,
		SimilarResult: []resultstore.SimilarResult{
			{Record: self, Distance: 0},
			{Record: other, Distance: 0.02},
		},
	}
	srv := httptest.NewServer(server.New(":0", nil, server.WithStore(store)).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/analyses/self/similar?k=3")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: want 200, got %d", res.StatusCode)
	}

	var body struct {
		Similar []struct {
			AnalysisID string  `json:"analysis_id"`
			Distance   float64 `json:"distance"`
		} `json:"similar"`
	}
	decodeBody(t, res, &body)
	if len(body.Similar) != 1 {
		t.Fatalf("want 1 similar analysis (self excluded), got %d", len(body.Similar))
	}
	if body.Similar[0].AnalysisID != "other" {
		t.Errorf("similar: want other, got %q", body.Similar[0].AnalysisID)
	}
}

func TestSimilarAnalyses_NoEmbedding(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{GetResult: storedRecord("plain")}
	srv := httptest.NewServer(server.New(":0", nil, server.WithStore(store)).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/analyses/plain/similar")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status: want 422, got %d", res.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(server.New(":0", nil).Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("GET %s: want 200, got %d", path, res.StatusCode)
		}
	}
}

func TestProgressStream(t *testing.T) {
	t.Parallel()
	hub := server.NewHub()
	srv := httptest.NewServer(server.New(":0", nil, server.WithHub(hub)).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/analyses/a1/progress"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Wait until the handler has registered the subscription.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast("analysis:progress", map[string]any{"analysis_id": "a1", "percent": 42})

	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev server.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Event != "analysis:progress" {
		t.Errorf("event: want analysis:progress, got %q", ev.Event)
	}
}

func TestProgressStream_OtherAnalysisFiltered(t *testing.T) {
	t.Parallel()
	hub := server.NewHub()
	srv := httptest.NewServer(server.New(":0", nil, server.WithHub(hub)).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/analyses/a1/progress"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast("analysis:progress", map[string]any{"analysis_id": "other", "percent": 10})
	hub.Broadcast("analysis:complete", map[string]any{"analysis_id": "a1", "grade": "A"})

	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev server.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Event != "analysis:complete" {
		t.Errorf("first received event should be for a1, got %q", ev.Event)
	}
}

func TestEnqueueFailureReturns500(t *testing.T) {
	t.Parallel()
	enq := &stubEnqueuer{err: errors.New("redis down")}
	srv := httptest.NewServer(server.New(":0", enq).Handler())
	defer srv.Close()

	body := strings.NewReader(`{"video_path":"/videos/lesson.mp4"}`)
	res, err := http.Post(srv.URL+"/api/v1/analyses", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: want 500, got %d", res.StatusCode)
	}
}
