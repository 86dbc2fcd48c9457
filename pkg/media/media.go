// Package media provides frame and audio access to lesson video files.
//
// The central abstraction is Source: a seekable supplier of decoded video
// frames at arbitrary timestamps. The sampling pipeline owns the iteration
// policy (which timestamps to visit, at what interval); a Source only decodes.
//
// Two implementations ship with ClassLens:
//
//   - VideoFile (gocv.go): an OpenCV-backed reader for real video files.
//   - mock.Source: a synthetic generator for tests.
//
// ExtractAudio shells out to ffmpeg to produce the mono 16 kHz WAV track the
// transcription collaborator consumes.
package media

import (
	"context"
	"image"
	"time"
)

// Frame is a single decoded video frame. Immutable once produced.
type Frame struct {
	// Timestamp is the frame's position relative to the start of the video.
	Timestamp time.Duration

	// Image is the decoded (and possibly downscaled) pixel data.
	Image image.Image
}

// Source supplies decoded frames from a video. Implementations are not
// required to be safe for concurrent use; the sampler reads frames strictly
// sequentially.
type Source interface {
	// Duration returns the total length of the video.
	Duration() time.Duration

	// FrameAt decodes and returns the frame nearest to ts. Implementations
	// should downscale to the bounded dimensions they were configured with.
	// Returns an error if ts is outside the video or decoding fails.
	FrameAt(ctx context.Context, ts time.Duration) (Frame, error)

	// Close releases decoder resources. Calling Close more than once is safe.
	Close() error
}
