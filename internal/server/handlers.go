package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/classlens/classlens/internal/jobs"
	"github.com/classlens/classlens/pkg/resultstore"
)

// defaultSimilarK is the number of similar lessons returned when the request
// does not specify one.
const defaultSimilarK = 5

// createAnalysisRequest is the body of POST /api/v1/analyses.
type createAnalysisRequest struct {
	VideoPath string `json:"video_path"`
	Language  string `json:"language,omitempty"`
}

// createAnalysisResponse acknowledges a queued analysis.
type createAnalysisResponse struct {
	AnalysisID string `json:"analysis_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
}

// analysisSummary is the list/detail representation of a stored analysis,
// without the full result document.
type analysisSummary struct {
	AnalysisID string        `json:"analysis_id"`
	VideoPath  string        `json:"video_path"`
	Language   string        `json:"language,omitempty"`
	Duration   time.Duration `json:"duration"`
	TotalScore int           `json:"total_score"`
	Percentage float64       `json:"percentage"`
	Grade      string        `json:"grade"`
	WordCount  int           `json:"word_count"`
	CreatedAt  time.Time     `json:"created_at"`
}

// analysisDetail adds the full result document to a summary.
type analysisDetail struct {
	analysisSummary
	Result json.RawMessage `json:"result"`
}

// similarAnalysis pairs a summary with its embedding distance.
type similarAnalysis struct {
	analysisSummary
	Distance float64 `json:"distance"`
}

func summarize(rec resultstore.Record) analysisSummary {
	return analysisSummary{
		AnalysisID: rec.ID,
		VideoPath:  rec.VideoPath,
		Language:   rec.Language,
		Duration:   rec.Duration,
		TotalScore: rec.TotalScore,
		Percentage: rec.Percentage,
		Grade:      rec.Grade,
		WordCount:  rec.WordCount,
		CreatedAt:  rec.CreatedAt,
	}
}

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis submission is not configured")
		return
	}

	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.VideoPath == "" {
		writeError(w, http.StatusBadRequest, "video_path is required")
		return
	}

	payload := jobs.AnalyzePayload{
		AnalysisID: jobs.NewAnalysisID(),
		VideoPath:  req.VideoPath,
		Language:   req.Language,
	}
	taskID, err := s.enqueuer.EnqueueAnalysis(payload)
	if err != nil {
		slog.Error("enqueue analysis", "video", req.VideoPath, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to queue analysis")
		return
	}

	writeJSON(w, http.StatusAccepted, createAnalysisResponse{
		AnalysisID: payload.AnalysisID,
		TaskID:     taskID,
		Status:     "queued",
	})
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis storage is not configured")
		return
	}

	opts := resultstore.ListOpts{Grade: r.URL.Query().Get("grade")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		opts.Before = ts
	}

	records, err := s.store.List(r.Context(), opts)
	if err != nil {
		slog.Error("list analyses", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}

	summaries := make([]analysisSummary, len(records))
	for i, rec := range records {
		summaries[i] = summarize(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": summaries})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis storage is not configured")
		return
	}

	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, resultstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		slog.Error("get analysis", "id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}

	writeJSON(w, http.StatusOK, analysisDetail{
		analysisSummary: summarize(rec),
		Result:          rec.Document,
	})
}

func (s *Server) handleSimilarAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis storage is not configured")
		return
	}

	id := r.PathValue("id")
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, resultstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		slog.Error("get analysis for similarity", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	if len(rec.Embedding) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "analysis has no transcript embedding")
		return
	}

	topK := defaultSimilarK
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		topK = n
	}

	// Ask for one extra because the query analysis itself is its own nearest
	// neighbour.
	results, err := s.store.Similar(r.Context(), rec.Embedding, topK+1)
	if err != nil {
		slog.Error("similar analyses", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}

	similar := make([]similarAnalysis, 0, topK)
	for _, res := range results {
		if res.Record.ID == id {
			continue
		}
		similar = append(similar, similarAnalysis{
			analysisSummary: summarize(res.Record),
			Distance:        res.Distance,
		})
		if len(similar) == topK {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"similar": similar})
}

func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, cancel := s.hub.Subscribe(id)
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("progress stream accept", "id", id, "err", err)
		return
	}
	defer conn.CloseNow()

	s.metrics.ActiveProgressStreams.Add(r.Context(), 1)
	defer s.metrics.ActiveProgressStreams.Add(r.Context(), -1)

	// CloseRead keeps reading control frames (so pings work and disconnects
	// are noticed) while this handler only writes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-events:
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
