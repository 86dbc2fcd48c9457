package jobs

import "github.com/google/uuid"

// Task types routed through the queue.
const (
	// TaskAnalyzeVideo runs the full analysis pipeline over one lesson video.
	TaskAnalyzeVideo = "analysis:video"
)

// AnalyzePayload is the JSON payload of a [TaskAnalyzeVideo] task.
type AnalyzePayload struct {
	// AnalysisID identifies the analysis across enqueue, progress events,
	// and the stored result.
	AnalysisID string `json:"analysis_id"`

	// VideoPath is the lesson video to analyse.
	VideoPath string `json:"video_path"`

	// Language overrides the configured transcript language hint when set.
	Language string `json:"language,omitempty"`
}

// EventNotifier receives progress and lifecycle events from running tasks,
// typically fanning them out to WebSocket subscribers. Implementations must
// be safe for concurrent use.
type EventNotifier interface {
	Broadcast(event string, data any)
}

// NewAnalysisID returns a fresh analysis identifier.
func NewAnalysisID() string {
	return uuid.NewString()
}

// RegisterHandlers attaches all task handlers to the queue.
func RegisterHandlers(q *Queue, analyze *AnalyzeHandler) {
	q.RegisterHandler(TaskAnalyzeVideo, analyze)
}
