// Package transcribe defines the Transcriber interface for batch
// speech-to-text backends.
//
// Unlike a live voice pipeline, lesson analysis works on complete recordings:
// the whole audio track is available up front and per-word timing is required
// for downstream lexical analysis. The Transcriber contract is therefore a
// single batch call that returns every word with its start/end time and
// confidence, rather than a streaming session.
//
// Long recordings may be split into fixed-size chunks internally (provider
// dependent); implementations are responsible for offsetting per-chunk word
// timestamps by the chunk start so that callers always see recording-relative
// times.
//
// Implementations must be safe for concurrent use.
package transcribe

import (
	"context"
	"time"
)

// Source tags where a transcript came from. Downstream consumers must be able
// to distinguish a real transcription from the deterministic fallback the
// pipeline substitutes when the collaborator fails.
type Source string

const (
	// SourceReal marks a transcript produced by a real STT backend.
	SourceReal Source = "real"

	// SourceFallback marks a synthetic transcript substituted after a
	// transcription failure so that scoring can still proceed.
	SourceFallback Source = "fallback"
)

// Word is a single transcribed word with recording-relative timing.
type Word struct {
	// Text is the word as recognised, including punctuation the backend
	// attached to it.
	Text string `json:"text"`

	// Start and End bound the word within the recording.
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`

	// Confidence is the backend's per-word confidence in [0,1]. Zero when
	// the backend does not report word confidence.
	Confidence float64 `json:"confidence"`

	// Language is an optional BCP-47 tag for the word's detected language.
	// Empty when the backend does not perform per-word language ID.
	Language string `json:"language,omitempty"`
}

// Transcript is the complete output of one Transcribe call.
type Transcript struct {
	// Words holds every recognised word in recording order.
	Words []Word `json:"words"`

	// Language is the dominant language the backend detected, if any.
	Language string `json:"language,omitempty"`

	// Source distinguishes real from fallback transcripts.
	Source Source `json:"source"`
}

// Options carries recognition hints for a Transcribe call.
type Options struct {
	// Language is the BCP-47 language hint (e.g., "en", "ru"). Empty lets
	// the backend auto-detect.
	Language string

	// ChunkDuration bounds how much audio is submitted per backend request.
	// Zero means the provider's default. Providers that transcribe in a
	// single request ignore this.
	ChunkDuration time.Duration
}

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe converts the WAV file at audioPath into a word-level
	// transcript. The file must be 16-bit PCM; mono 16 kHz is the
	// recommended input (see media.DefaultAudioFormat).
	//
	// Returns an error when the backend is unreachable or rejects the
	// audio. An empty recording is not an error: the result simply has no
	// words.
	Transcribe(ctx context.Context, audioPath string, opts Options) (Transcript, error)
}
