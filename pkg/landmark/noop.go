package landmark

import (
	"context"
	"image"
)

// Compile-time interface checks.
var (
	_ PoseDetector    = Noop{}
	_ GestureDetector = Noop{}
	_ FaceDetector    = Noop{}
)

// Noop is a detector for all three modalities that never detects anything.
// It stands in when no detector backend is configured, so the sampler still
// walks the video and scoring falls through to its no-detection defaults.
type Noop struct{}

// Init implements the detector interfaces.
func (Noop) Init(context.Context) error { return nil }

// DetectPose implements [PoseDetector].
func (Noop) DetectPose(context.Context, image.Image) (PoseDetection, error) {
	return PoseDetection{}, nil
}

// DetectGestures implements [GestureDetector].
func (Noop) DetectGestures(context.Context, image.Image) (GestureDetection, error) {
	return GestureDetection{}, nil
}

// DetectFace implements [FaceDetector].
func (Noop) DetectFace(context.Context, image.Image) (FaceDetection, error) {
	return FaceDetection{}, nil
}
