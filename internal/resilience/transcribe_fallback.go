package resilience

import (
	"context"

	"github.com/classlens/classlens/pkg/provider/transcribe"
)

// TranscribeFallback implements [transcribe.Transcriber] with automatic
// failover across multiple STT backends. Each backend has its own circuit
// breaker, so a native engine that keeps failing stops being tried while a
// remote server backend takes over.
type TranscribeFallback struct {
	group *FallbackGroup[transcribe.Transcriber]
}

// Compile-time interface assertion.
var _ transcribe.Transcriber = (*TranscribeFallback)(nil)

// NewTranscribeFallback creates a [TranscribeFallback] with primary as the
// preferred backend.
func NewTranscribeFallback(primary transcribe.Transcriber, primaryName string, cfg FallbackConfig) *TranscribeFallback {
	return &TranscribeFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *TranscribeFallback) AddFallback(name string, t transcribe.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the recording through the first healthy backend. If the
// primary fails, subsequent fallbacks are tried in registration order.
func (f *TranscribeFallback) Transcribe(ctx context.Context, audioPath string, opts transcribe.Options) (transcribe.Transcript, error) {
	return ExecuteWithResult(f.group, func(t transcribe.Transcriber) (transcribe.Transcript, error) {
		return t.Transcribe(ctx, audioPath, opts)
	})
}
