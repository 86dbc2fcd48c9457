// Package sampler implements adaptive landmark frame sampling over lesson
// video.
//
// A Sampler walks a media.Source at an interval derived from the video's
// duration, and for every sampling tick fans out one detection request to
// each of the three landmark detectors (pose, gesture, face). Detector
// fan-out happens concurrently within a tick and joins before the cursor
// advances; frames themselves are processed strictly sequentially, which
// bounds memory and keeps detectors that are unsafe for concurrent per-frame
// reuse happy.
//
// Failure policy, in increasing severity:
//
//   - A detector finding nothing is data, not an error. It counts against
//     the modality's detection rate.
//   - A detector call that fails (or panics) is logged, counted in the run's
//     Stats, and treated as "no detection" for that frame. The run continues.
//   - A frame that cannot be decoded is counted as skipped. The run continues.
//   - Producing zero frames within the no-progress timeout aborts the run
//     with ErrNoFrames. There is no partial result.
//
// Each Sample call owns its own buffers; a single Sampler may be reused for
// consecutive runs but detectors are initialised exactly once.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/classlens/classlens/pkg/landmark"
	"github.com/classlens/classlens/pkg/media"
)

// ErrNoFrames is returned when the no-progress timeout elapses before a
// single frame was produced. This is the sampler's only fatal condition.
var ErrNoFrames = errors.New("sampler: no frames produced within time budget")

// Sampling intervals by video duration. Longer videos are sampled more
// coarsely so that the total frame count — and with it the total inference
// cost — stays bounded regardless of video length.
const (
	longVideoThreshold   = 300 * time.Second
	mediumVideoThreshold = 120 * time.Second

	longVideoInterval   = 1000 * time.Millisecond
	mediumVideoInterval = 500 * time.Millisecond
	shortVideoInterval  = 200 * time.Millisecond
)

// defaultNoProgressTimeout is the wall-clock budget within which at least one
// frame must be produced.
const defaultNoProgressTimeout = 90 * time.Second

// ProgressFunc receives sampling progress in percent (0–100). Values are
// monotonically non-decreasing; spacing between calls is not guaranteed to be
// even. Callbacks run on the sampling goroutine and must return promptly.
type ProgressFunc func(percent int)

// PoseFrame pairs a sampling timestamp with the pose detection for that tick
// and its derived scalar confidence.
type PoseFrame struct {
	Timestamp  time.Duration          `json:"timestamp"`
	Detection  landmark.PoseDetection `json:"detection"`
	Confidence float64                `json:"confidence"`
}

// GestureFrame pairs a sampling timestamp with the gesture detection for
// that tick and its derived scalar confidence.
type GestureFrame struct {
	Timestamp  time.Duration             `json:"timestamp"`
	Detection  landmark.GestureDetection `json:"detection"`
	Confidence float64                   `json:"confidence"`
}

// FaceFrame pairs a sampling timestamp with the face detection for that tick
// and its derived scalar confidence.
type FaceFrame struct {
	Timestamp  time.Duration          `json:"timestamp"`
	Detection  landmark.FaceDetection `json:"detection"`
	Confidence float64                `json:"confidence"`
}

// Stats summarises the soft failures of a sampling run.
type Stats struct {
	// Ticks is the number of sampling positions visited.
	Ticks int `json:"ticks"`

	// SkippedFrames counts ticks whose frame could not be decoded.
	SkippedFrames int `json:"skipped_frames"`

	// DetectorErrors counts detector calls that failed or panicked, keyed
	// by modality.
	DetectorErrors map[landmark.Modality]int `json:"detector_errors"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}

// Result is the complete output of one sampling run.
type Result struct {
	PoseFrames    []PoseFrame    `json:"pose_frames"`
	GestureFrames []GestureFrame `json:"gesture_frames"`
	FaceFrames    []FaceFrame    `json:"face_frames"`

	// Duration is the video length reported by the source.
	Duration time.Duration `json:"duration"`

	// FrameCount is the number of frames successfully decoded and offered
	// to the detectors.
	FrameCount int `json:"frame_count"`

	// Quality classifies the run's detection rates.
	Quality DetectionQuality `json:"quality"`

	Stats Stats `json:"stats"`
}

// Option is a functional option for configuring a Sampler.
type Option func(*Sampler)

// WithNoProgressTimeout overrides the wall-clock budget within which the
// first frame must be produced. Defaults to 90 s.
func WithNoProgressTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		s.noProgressTimeout = d
	}
}

// Sampler drives the adaptive sampling loop. Construct with New; a Sampler
// is safe for sequential reuse across runs but not for concurrent runs.
type Sampler struct {
	pose    landmark.PoseDetector
	gesture landmark.GestureDetector
	face    landmark.FaceDetector

	noProgressTimeout time.Duration
	initialised       bool

	// statsMu guards Stats mutation from the per-tick detector goroutines.
	statsMu sync.Mutex
}

// New creates a Sampler over the three landmark detectors.
func New(pose landmark.PoseDetector, gesture landmark.GestureDetector, face landmark.FaceDetector, opts ...Option) *Sampler {
	s := &Sampler{
		pose:              pose,
		gesture:           gesture,
		face:              face,
		noProgressTimeout: defaultNoProgressTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interval returns the sampling interval for a video of the given duration:
// 1 s beyond five minutes, 500 ms between two and five minutes, 200 ms below.
func Interval(duration time.Duration) time.Duration {
	switch {
	case duration > longVideoThreshold:
		return longVideoInterval
	case duration > mediumVideoThreshold:
		return mediumVideoInterval
	default:
		return shortVideoInterval
	}
}

// Init initialises all three detectors. It runs the underlying Init calls at
// most once per Sampler; Sample calls Init implicitly, so calling it
// separately is only useful for front-loading model warm-up.
func (s *Sampler) Init(ctx context.Context) error {
	if s.initialised {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pose.Init(ctx) })
	g.Go(func() error { return s.gesture.Init(ctx) })
	g.Go(func() error { return s.face.Init(ctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sampler: init detectors: %w", err)
	}
	s.initialised = true
	return nil
}

// Sample walks source from start to end at the adaptive interval, collecting
// per-tick detections from all three modalities. onProgress may be nil.
//
// Sample returns ErrNoFrames when the time budget elapses with zero frames
// produced, or the context error on cancellation. All other failures are
// soft and reflected in the result's Stats.
func (s *Sampler) Sample(ctx context.Context, source media.Source, onProgress ProgressFunc) (*Result, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	duration := source.Duration()
	interval := Interval(duration)
	started := time.Now()

	result := &Result{
		Duration: duration,
		Stats: Stats{
			DetectorErrors: make(map[landmark.Modality]int),
		},
	}

	lastProgress := -1
	report := func(cursor time.Duration) {
		if onProgress == nil || duration <= 0 {
			return
		}
		pct := int(float64(cursor) / float64(duration) * 100)
		if pct > 100 {
			pct = 100
		}
		if pct > lastProgress {
			lastProgress = pct
			onProgress(pct)
		}
	}

	for cursor := time.Duration(0); cursor <= duration; cursor += interval {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if result.FrameCount == 0 && time.Since(started) > s.noProgressTimeout {
			return nil, fmt.Errorf("%w (budget %s)", ErrNoFrames, s.noProgressTimeout)
		}
		result.Stats.Ticks++

		frame, err := source.FrameAt(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("sampler: frame decode failed, skipping tick", "ts", cursor, "error", err)
			result.Stats.SkippedFrames++
			report(cursor)
			continue
		}
		result.FrameCount++

		s.detectAll(ctx, frame, result)
		report(cursor)
	}

	report(duration)
	result.Stats.Elapsed = time.Since(started)
	result.Quality = EstimateQuality(result)
	return result, nil
}

// detectAll fans out the three detector calls for one frame and appends the
// joined results. Individual detector failures are downgraded to "no
// detection" for the tick.
func (s *Sampler) detectAll(ctx context.Context, frame media.Frame, result *Result) {
	var (
		poseDet    landmark.PoseDetection
		gestureDet landmark.GestureDetection
		faceDet    landmark.FaceDetection
	)

	var g errgroup.Group
	g.Go(func() error {
		poseDet = s.detectPose(ctx, frame, result)
		return nil
	})
	g.Go(func() error {
		gestureDet = s.detectGesture(ctx, frame, result)
		return nil
	})
	g.Go(func() error {
		faceDet = s.detectFace(ctx, frame, result)
		return nil
	})
	g.Wait()

	result.PoseFrames = append(result.PoseFrames, PoseFrame{
		Timestamp:  frame.Timestamp,
		Detection:  poseDet,
		Confidence: PoseConfidence(poseDet),
	})
	result.GestureFrames = append(result.GestureFrames, GestureFrame{
		Timestamp:  frame.Timestamp,
		Detection:  gestureDet,
		Confidence: GestureConfidence(gestureDet),
	})
	result.FaceFrames = append(result.FaceFrames, FaceFrame{
		Timestamp:  frame.Timestamp,
		Detection:  faceDet,
		Confidence: FaceConfidence(faceDet),
	})
}

func (s *Sampler) detectPose(ctx context.Context, frame media.Frame, result *Result) (det landmark.PoseDetection) {
	defer s.recoverDetector(landmark.ModalityPose, frame.Timestamp, result)
	det, err := s.pose.DetectPose(ctx, frame.Image)
	if err != nil {
		s.recordDetectorError(landmark.ModalityPose, frame.Timestamp, err, result)
		return landmark.PoseDetection{}
	}
	if det.Detected && !det.Valid() {
		// Partial landmark sets are rejected: either all 33 points or nothing.
		return landmark.PoseDetection{}
	}
	return det
}

func (s *Sampler) detectGesture(ctx context.Context, frame media.Frame, result *Result) (det landmark.GestureDetection) {
	defer s.recoverDetector(landmark.ModalityGesture, frame.Timestamp, result)
	det, err := s.gesture.DetectGestures(ctx, frame.Image)
	if err != nil {
		s.recordDetectorError(landmark.ModalityGesture, frame.Timestamp, err, result)
		return landmark.GestureDetection{}
	}
	if det.Detected && !det.Valid() {
		return landmark.GestureDetection{}
	}
	return det
}

func (s *Sampler) detectFace(ctx context.Context, frame media.Frame, result *Result) (det landmark.FaceDetection) {
	defer s.recoverDetector(landmark.ModalityFace, frame.Timestamp, result)
	det, err := s.face.DetectFace(ctx, frame.Image)
	if err != nil {
		s.recordDetectorError(landmark.ModalityFace, frame.Timestamp, err, result)
		return landmark.FaceDetection{}
	}
	if det.Detected && !det.Valid() {
		return landmark.FaceDetection{}
	}
	return det
}

// recoverDetector converts a detector panic into a counted soft error so a
// misbehaving vendor model cannot take down the run.
func (s *Sampler) recoverDetector(m landmark.Modality, ts time.Duration, result *Result) {
	if r := recover(); r != nil {
		s.recordDetectorError(m, ts, fmt.Errorf("panic: %v", r), result)
	}
}

func (s *Sampler) recordDetectorError(m landmark.Modality, ts time.Duration, err error, result *Result) {
	slog.Warn("sampler: detector error, treating as no detection",
		"modality", m, "ts", ts, "error", err)
	s.statsMu.Lock()
	result.Stats.DetectorErrors[m]++
	s.statsMu.Unlock()
}
