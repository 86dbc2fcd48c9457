package sampler

import (
	"github.com/classlens/classlens/pkg/landmark"
)

// Quality classifies the overall detection rate of a sampling run.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Overall quality thresholds on the mean detection rate across modalities.
const (
	excellentThreshold = 0.8
	goodThreshold      = 0.6
	fairThreshold      = 0.4
)

// DetectionQuality summarises how often each modality produced a valid
// detection across a run, and the resulting overall classification.
// Derived once at the end of a run; never mutated independently.
type DetectionQuality struct {
	// PoseRate, GestureRate, and FaceRate are the fractions of sampled
	// frames for which the modality produced a valid detection, each in
	// [0,1].
	PoseRate    float64 `json:"pose_rate"`
	GestureRate float64 `json:"gesture_rate"`
	FaceRate    float64 `json:"face_rate"`

	// Overall classifies the mean of the three rates.
	Overall Quality `json:"overall"`
}

// gestureUnclassifiedConfidence is assigned when hands were detected but no
// gesture was classified. Detected-but-unclassified is still informative.
const gestureUnclassifiedConfidence = 0.6

// blendshapeNoiseFloor filters out blendshape categories whose score is
// residual noise rather than an active expression.
const blendshapeNoiseFloor = 0.05

// posturePoints is the fixed keypoint subset over which pose confidence is
// averaged. Peripheral points (fingers, face outline) are excluded: they are
// both less reliable and less relevant to posture.
var posturePoints = []int{
	landmark.PoseNose,
	landmark.PoseLeftShoulder, landmark.PoseRightShoulder,
	landmark.PoseLeftElbow, landmark.PoseRightElbow,
	landmark.PoseLeftWrist, landmark.PoseRightWrist,
	landmark.PoseLeftHip, landmark.PoseRightHip,
}

// PoseConfidence derives a scalar confidence for a pose detection: the mean
// of visibility*0.6 + presence*0.4 over the core posture keypoints. Returns
// 0 for an invalid or absent detection.
func PoseConfidence(det landmark.PoseDetection) float64 {
	if !det.Valid() {
		return 0
	}
	var sum float64
	for _, idx := range posturePoints {
		p := det.Landmarks[idx]
		sum += p.Visibility*0.6 + p.Presence*0.4
	}
	return sum / float64(len(posturePoints))
}

// GestureConfidence derives a scalar confidence for a gesture detection.
// With classified gestures present it blends the mean gesture score (70%)
// with the normalised hand count (30%, two hands = 1.0). Raw hand landmarks
// without a classified gesture earn a flat 0.6.
func GestureConfidence(det landmark.GestureDetection) float64 {
	if !det.Valid() {
		return 0
	}
	if len(det.Gestures) == 0 {
		return gestureUnclassifiedConfidence
	}
	var sum float64
	for _, g := range det.Gestures {
		sum += g.Score
	}
	meanScore := sum / float64(len(det.Gestures))

	handCount := float64(len(det.Hands)) / 2
	if handCount > 1 {
		handCount = 1
	}
	return 0.7*meanScore + 0.3*handCount
}

// FaceConfidence derives a scalar confidence for a face detection: landmark
// completeness (fraction of the full 468-point mesh, 60%) blended with the
// mean intensity of active blendshapes (40%). Blendshapes at or below the
// noise floor are ignored.
func FaceConfidence(det landmark.FaceDetection) float64 {
	if !det.Valid() {
		return 0
	}
	completeness := float64(len(det.Landmarks)) / float64(landmark.FacePointCount)
	if completeness > 1 {
		completeness = 1
	}

	var sum float64
	var active int
	for _, b := range det.Blendshapes {
		if b.Score > blendshapeNoiseFloor {
			sum += b.Score
			active++
		}
	}
	var meanActive float64
	if active > 0 {
		meanActive = sum / float64(active)
	}
	return 0.6*completeness + 0.4*meanActive
}

// EstimateQuality computes per-modality detection rates and the overall
// classification for a finished run. Zero sampled frames classifies as poor.
func EstimateQuality(result *Result) DetectionQuality {
	q := DetectionQuality{Overall: QualityPoor}
	if result.FrameCount == 0 {
		return q
	}

	n := float64(result.FrameCount)
	var pose, gesture, face int
	for _, f := range result.PoseFrames {
		if f.Detection.Valid() {
			pose++
		}
	}
	for _, f := range result.GestureFrames {
		if f.Detection.Valid() {
			gesture++
		}
	}
	for _, f := range result.FaceFrames {
		if f.Detection.Valid() {
			face++
		}
	}
	q.PoseRate = float64(pose) / n
	q.GestureRate = float64(gesture) / n
	q.FaceRate = float64(face) / n

	mean := (q.PoseRate + q.GestureRate + q.FaceRate) / 3
	switch {
	case mean >= excellentThreshold:
		q.Overall = QualityExcellent
	case mean >= goodThreshold:
		q.Overall = QualityGood
	case mean >= fairThreshold:
		q.Overall = QualityFair
	default:
		q.Overall = QualityPoor
	}
	return q
}
