// Package mock provides a synthetic media.Source for tests.
//
// Source generates uniform grey frames on demand, so sampler tests can run
// without video files or OpenCV. Use FrameErrAt to script decode failures at
// specific timestamps and Delay to simulate slow decoding.
package mock

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/classlens/classlens/pkg/media"
)

// Source is a mock implementation of media.Source.
type Source struct {
	mu sync.Mutex

	// VideoDuration is returned by Duration.
	VideoDuration time.Duration

	// FrameErrAt maps timestamps to errors. FrameAt returns the mapped error
	// when called with a matching timestamp.
	FrameErrAt map[time.Duration]error

	// Delay, when non-zero, is slept before every FrameAt returns. Use it to
	// exercise timeout paths.
	Delay time.Duration

	// Requests records every timestamp passed to FrameAt, in order.
	Requests []time.Duration

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// Ensure Source implements media.Source at compile time.
var _ media.Source = (*Source)(nil)

// Duration returns VideoDuration.
func (s *Source) Duration() time.Duration {
	return s.VideoDuration
}

// FrameAt records the request and returns a synthetic 64×48 grey frame, or
// the scripted error for ts.
func (s *Source) FrameAt(ctx context.Context, ts time.Duration) (media.Frame, error) {
	s.mu.Lock()
	s.Requests = append(s.Requests, ts)
	err := s.FrameErrAt[ts]
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return media.Frame{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return media.Frame{}, err
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	grey := color.RGBA{128, 128, 128, 255}
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, grey)
		}
	}
	return media.Frame{Timestamp: ts, Image: img}, nil
}

// Close records the call.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}
