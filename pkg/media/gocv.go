package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Bounded snapshot dimensions. Frames larger than this are downscaled
// preserving aspect ratio before they reach the detectors, bounding the
// per-frame inference cost.
const (
	maxFrameWidth  = 640
	maxFrameHeight = 480
)

// ErrClosed is returned by FrameAt after the source has been closed.
var ErrClosed = errors.New("media: source is closed")

// Compile-time assertion that VideoFile implements Source.
var _ Source = (*VideoFile)(nil)

// VideoFile reads frames from a video file through OpenCV. It seeks by
// timestamp, decodes one frame per FrameAt call, and downscales the result to
// at most 640×480.
//
// VideoFile is not safe for concurrent use; the sampler guarantees strictly
// sequential access.
type VideoFile struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	duration time.Duration
	closed   bool
}

// OpenVideo opens the video file at path and probes its duration from the
// container's frame count and frame rate.
func OpenVideo(path string) (*VideoFile, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("media: open %q: %w", path, err)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	if fps <= 0 || frames <= 0 {
		capture.Close()
		return nil, fmt.Errorf("media: %q: cannot determine duration (fps=%.2f frames=%.0f)", path, fps, frames)
	}

	return &VideoFile{
		capture:  capture,
		duration: time.Duration(frames / fps * float64(time.Second)),
	}, nil
}

// Duration returns the probed video length.
func (v *VideoFile) Duration() time.Duration {
	return v.duration
}

// FrameAt seeks to ts, decodes one frame, and returns it downscaled to the
// bounded snapshot dimensions.
func (v *VideoFile) FrameAt(ctx context.Context, ts time.Duration) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return Frame{}, ErrClosed
	}
	if ts < 0 || ts > v.duration {
		return Frame{}, fmt.Errorf("media: timestamp %s outside video duration %s", ts, v.duration)
	}

	v.capture.Set(gocv.VideoCapturePosMsec, float64(ts.Milliseconds()))

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := v.capture.Read(&mat); !ok || mat.Empty() {
		return Frame{}, fmt.Errorf("media: decode frame at %s: no data", ts)
	}

	scaled, err := downscale(mat)
	if err != nil {
		return Frame{}, err
	}

	return Frame{Timestamp: ts, Image: scaled}, nil
}

// Close releases the underlying capture. Safe to call more than once.
func (v *VideoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.capture.Close()
}

// downscale resizes mat to fit within maxFrameWidth×maxFrameHeight preserving
// aspect ratio, then converts it to an image.Image. Frames already within
// bounds are converted as-is.
func downscale(mat gocv.Mat) (image.Image, error) {
	cols, rows := mat.Cols(), mat.Rows()
	scale := 1.0
	if s := float64(maxFrameWidth) / float64(cols); s < scale {
		scale = s
	}
	if s := float64(maxFrameHeight) / float64(rows); s < scale {
		scale = s
	}

	src := mat
	if scale < 1.0 {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(int(float64(cols)*scale), int(float64(rows)*scale)), 0, 0, gocv.InterpolationArea)
		img, err := resized.ToImage()
		if err != nil {
			return nil, fmt.Errorf("media: convert frame: %w", err)
		}
		return img, nil
	}

	img, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("media: convert frame: %w", err)
	}
	return img, nil
}
