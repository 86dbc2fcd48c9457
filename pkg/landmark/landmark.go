// Package landmark defines the detector interfaces and detection result types
// for the three visual modalities ClassLens samples from lesson video: body
// pose, hand gestures, and facial expression.
//
// Each detector consumes a single decoded video frame and returns zero or one
// detection for its modality. "No detection" is an ordinary, representable
// outcome — an empty classroom corner, a presenter with their hands out of
// frame — and is modelled as a result value with Detected == false rather than
// a nil pointer or an error. Callers must check Detected before reading any
// other field.
//
// Detector implementations must tolerate being called once per sampling tick
// for the full duration of a run. Initialisation is a separate, idempotent
// step performed once before sampling begins; detectors must be safe for
// sequential reuse across frames and across runs.
package landmark

import (
	"context"
	"image"
)

// Modality names the three visual signal streams.
type Modality string

const (
	ModalityPose    Modality = "pose"
	ModalityGesture Modality = "gesture"
	ModalityFace    Modality = "face"
)

// Point is a single detected keypoint. Coordinates are normalised to the
// frame ([0,1] on both axes, origin top-left); Z is a relative depth estimate
// whose scale is model-specific. Visibility and Presence are confidence
// values in [0,1].
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility"`
	Presence   float64 `json:"presence"`
}

// Well-known indices into the 33-point pose landmark set. Only the core
// body points used for posture analysis are named; peripheral points
// (fingers, face outline) are less reliable and not referenced by name.
const (
	PoseNose          = 0
	PoseLeftEar       = 7
	PoseRightEar      = 8
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
	PoseLeftElbow     = 13
	PoseRightElbow    = 14
	PoseLeftWrist     = 15
	PoseRightWrist    = 16
	PoseLeftHip       = 23
	PoseRightHip      = 24
)

// PosePointCount is the size of a complete pose landmark set.
const PosePointCount = 33

// HandPointCount is the size of a complete single-hand landmark set.
const HandPointCount = 21

// FacePointCount is the size of a complete face landmark set.
const FacePointCount = 468

// PoseDetection is the result of running the pose detector on one frame.
// A landmark set is either fully present (all 33 points) or entirely absent;
// partial sets are rejected upstream and reported as Detected == false.
type PoseDetection struct {
	// Detected reports whether a person's pose was found in the frame.
	Detected bool `json:"detected"`

	// Landmarks holds the 33 pose keypoints when Detected is true.
	Landmarks []Point `json:"landmarks,omitempty"`
}

// Gesture is a classified hand gesture with its recognition score.
type Gesture struct {
	// Label is the gesture category name (e.g., "Open_Palm", "Pointing_Up").
	Label string `json:"label"`

	// Score is the classifier confidence in [0,1].
	Score float64 `json:"score"`
}

// GestureDetection is the result of running the hand/gesture detector on one
// frame. Raw hand landmarks may be present without any classified gesture —
// a detected but unclassified hand is still an informative signal.
type GestureDetection struct {
	// Detected reports whether at least one hand was found in the frame.
	Detected bool `json:"detected"`

	// Hands holds one complete 21-point landmark set per detected hand
	// (at most two).
	Hands [][]Point `json:"hands,omitempty"`

	// Gestures holds the classified gesture per hand, in the same order as
	// Hands. May be empty even when hands were detected.
	Gestures []Gesture `json:"gestures,omitempty"`
}

// Blendshape is a named facial-expression intensity category.
type Blendshape struct {
	// Name is the blendshape category (e.g., "mouthSmileLeft", "browInnerUp").
	Name string `json:"name"`

	// Score is the expression intensity in [0,1].
	Score float64 `json:"score"`
}

// FaceDetection is the result of running the face detector on one frame.
type FaceDetection struct {
	// Detected reports whether a face was found in the frame.
	Detected bool `json:"detected"`

	// Landmarks holds up to 468 face mesh keypoints when Detected is true.
	Landmarks []Point `json:"landmarks,omitempty"`

	// Blendshapes holds the per-category expression intensities. May be
	// empty for detectors that only produce the mesh.
	Blendshapes []Blendshape `json:"blendshapes,omitempty"`
}

// PoseDetector finds body pose landmarks in single video frames.
//
// Implementations must be safe for sequential reuse: DetectPose is called
// once per sampling tick, frame after frame, potentially for hours of video.
type PoseDetector interface {
	// Init prepares the detector (loads models, warms up a sidecar
	// connection). Init is idempotent; calling it on an initialised
	// detector is a no-op.
	Init(ctx context.Context) error

	// DetectPose runs pose detection on frame. A frame without a visible
	// person yields PoseDetection{Detected: false}, nil — not an error.
	DetectPose(ctx context.Context, frame image.Image) (PoseDetection, error)
}

// GestureDetector finds hand landmarks and classified gestures in single
// video frames.
type GestureDetector interface {
	// Init prepares the detector. Idempotent.
	Init(ctx context.Context) error

	// DetectGestures runs hand/gesture detection on frame. A frame without
	// visible hands yields GestureDetection{Detected: false}, nil.
	DetectGestures(ctx context.Context, frame image.Image) (GestureDetection, error)
}

// FaceDetector finds face mesh landmarks and blendshape intensities in
// single video frames.
type FaceDetector interface {
	// Init prepares the detector. Idempotent.
	Init(ctx context.Context) error

	// DetectFace runs face detection on frame. A frame without a visible
	// face yields FaceDetection{Detected: false}, nil.
	DetectFace(ctx context.Context, frame image.Image) (FaceDetection, error)
}

// Valid reports whether d carries a complete pose landmark set. The sampler
// treats incomplete sets as "no detection" for the frame.
func (d PoseDetection) Valid() bool {
	return d.Detected && len(d.Landmarks) == PosePointCount
}

// Valid reports whether d carries at least one complete hand landmark set.
func (d GestureDetection) Valid() bool {
	if !d.Detected || len(d.Hands) == 0 {
		return false
	}
	for _, h := range d.Hands {
		if len(h) != HandPointCount {
			return false
		}
	}
	return true
}

// Valid reports whether d carries a usable face landmark set.
func (d FaceDetection) Valid() bool {
	return d.Detected && len(d.Landmarks) > 0
}
