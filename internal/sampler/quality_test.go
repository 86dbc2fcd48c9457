package sampler_test

import (
	"math"
	"testing"

	"github.com/classlens/classlens/internal/sampler"
	"github.com/classlens/classlens/pkg/landmark"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPoseConfidence_WeightsVisibilityAndPresence(t *testing.T) {
	t.Parallel()

	det := fullPose(1.0, 0.5)
	// Every core point contributes 1.0*0.6 + 0.5*0.4 = 0.8.
	if got := sampler.PoseConfidence(det); !almostEqual(got, 0.8) {
		t.Errorf("PoseConfidence = %f, want 0.8", got)
	}

	if got := sampler.PoseConfidence(landmark.PoseDetection{}); got != 0 {
		t.Errorf("PoseConfidence(absent) = %f, want 0", got)
	}
}

func fullHand() []landmark.Point {
	return make([]landmark.Point, landmark.HandPointCount)
}

func TestGestureConfidence_BlendsScoreAndHandCount(t *testing.T) {
	t.Parallel()

	det := landmark.GestureDetection{
		Detected: true,
		Hands:    [][]landmark.Point{fullHand(), fullHand()},
		Gestures: []landmark.Gesture{
			{Label: "Open_Palm", Score: 0.8},
			{Label: "Pointing_Up", Score: 0.6},
		},
	}
	// 0.7*0.7 + 0.3*1.0 = 0.79
	if got := sampler.GestureConfidence(det); !almostEqual(got, 0.79) {
		t.Errorf("GestureConfidence = %f, want 0.79", got)
	}
}

func TestGestureConfidence_UnclassifiedHandsDefaultTo06(t *testing.T) {
	t.Parallel()

	det := landmark.GestureDetection{
		Detected: true,
		Hands:    [][]landmark.Point{fullHand()},
	}
	if got := sampler.GestureConfidence(det); !almostEqual(got, 0.6) {
		t.Errorf("GestureConfidence(unclassified) = %f, want 0.6", got)
	}
}

func TestFaceConfidence_IgnoresNoiseBlendshapes(t *testing.T) {
	t.Parallel()

	det := landmark.FaceDetection{
		Detected:  true,
		Landmarks: make([]landmark.Point, landmark.FacePointCount),
		Blendshapes: []landmark.Blendshape{
			{Name: "mouthSmileLeft", Score: 0.5},
			{Name: "browInnerUp", Score: 0.02}, // below the noise floor
		},
	}
	// completeness 1.0, mean active 0.5 → 0.6*1.0 + 0.4*0.5 = 0.8
	if got := sampler.FaceConfidence(det); !almostEqual(got, 0.8) {
		t.Errorf("FaceConfidence = %f, want 0.8", got)
	}
}

func TestEstimateQuality_Thresholds(t *testing.T) {
	t.Parallel()

	// Build a run where 80 of 100 pose frames are valid and the other two
	// modalities are fully valid: mean rate = (0.8+1.0+1.0)/3 ≈ 0.933.
	result := &sampler.Result{FrameCount: 100}
	for i := range 100 {
		pose := sampler.PoseFrame{}
		if i < 80 {
			pose.Detection = fullPose(0.9, 0.9)
		}
		result.PoseFrames = append(result.PoseFrames, pose)
		result.GestureFrames = append(result.GestureFrames, sampler.GestureFrame{
			Detection: landmark.GestureDetection{Detected: true, Hands: [][]landmark.Point{fullHand()}},
		})
		result.FaceFrames = append(result.FaceFrames, sampler.FaceFrame{
			Detection: landmark.FaceDetection{Detected: true, Landmarks: make([]landmark.Point, 100)},
		})
	}

	q := sampler.EstimateQuality(result)
	if !almostEqual(q.PoseRate, 0.8) {
		t.Errorf("PoseRate = %f, want 0.8", q.PoseRate)
	}
	if q.Overall != sampler.QualityExcellent {
		t.Errorf("Overall = %s, want excellent", q.Overall)
	}
}

func TestEstimateQuality_EmptyRunIsPoor(t *testing.T) {
	t.Parallel()

	q := sampler.EstimateQuality(&sampler.Result{})
	if q.Overall != sampler.QualityPoor {
		t.Errorf("Overall = %s, want poor", q.Overall)
	}
	if q.PoseRate != 0 || q.GestureRate != 0 || q.FaceRate != 0 {
		t.Errorf("rates = %f/%f/%f, want all 0", q.PoseRate, q.GestureRate, q.FaceRate)
	}
}
