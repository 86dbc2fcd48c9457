package scoring

import (
	"math"

	"github.com/classlens/classlens/pkg/landmark"
)

// Posture geometry thresholds, in normalised frame coordinates.
const (
	// forwardLeanThreshold is the horizontal nose offset from the shoulder
	// centre beyond which a frame counts as leaning.
	forwardLeanThreshold = 0.08

	// shoulderAsymmetryThreshold is the vertical shoulder difference beyond
	// which a frame counts as asymmetric.
	shoulderAsymmetryThreshold = 0.05

	// headTiltThreshold is the vertical ear difference beyond which a frame
	// counts as head-tilted.
	headTiltThreshold = 0.04

	// noseMovementScale normalises mean frame-to-frame nose displacement
	// into a [0,1] instability ratio; displacement at or beyond this value
	// zeroes the stability sub-score.
	noseMovementScale = 0.05
)

// Rule-table thresholds for posture issues.
const (
	leanIssueRatio      = 0.3
	asymmetryIssueRatio = 0.3
	instabilityIssue    = 0.5
)

// scorePosture rates body posture over the pose frame sequence.
//
// Sub-components: alignment (forward lean), symmetry (shoulder level), head
// position (tilt), stability (nose movement), and confidence (mean of
// alignment and symmetry). Frames without a valid detection are skipped, not
// treated as zero.
func (e *Engine) scorePosture(in Input) CategoryMetric {
	var (
		valid      int
		leaning    int
		asymmetric int
		tilted     int

		movement     float64
		movementN    int
		prevNose     landmark.Point
		prevNoseSeen bool
	)

	for _, f := range in.Sampling.PoseFrames {
		if !f.Detection.Valid() {
			prevNoseSeen = false
			continue
		}
		valid++
		pts := f.Detection.Landmarks

		nose := pts[landmark.PoseNose]
		ls, rs := pts[landmark.PoseLeftShoulder], pts[landmark.PoseRightShoulder]
		le, re := pts[landmark.PoseLeftEar], pts[landmark.PoseRightEar]

		shoulderCentre := (ls.X + rs.X) / 2
		if math.Abs(nose.X-shoulderCentre) > forwardLeanThreshold {
			leaning++
		}
		if math.Abs(ls.Y-rs.Y) > shoulderAsymmetryThreshold {
			asymmetric++
		}
		if math.Abs(le.Y-re.Y) > headTiltThreshold {
			tilted++
		}

		if prevNoseSeen {
			movement += math.Hypot(nose.X-prevNose.X, nose.Y-prevNose.Y)
			movementN++
		}
		prevNose = nose
		prevNoseSeen = true
	}

	if valid == 0 {
		return finalize(CategoryPosture, []SubComponent{
			{Name: "alignment", Score: defaultSubScore},
			{Name: "symmetry", Score: defaultSubScore},
			{Name: "head_position", Score: defaultSubScore},
			{Name: "stability", Score: defaultSubScore},
			{Name: "confidence", Score: defaultSubScore},
		}, []string{"no usable pose detections"}, nil)
	}

	n := float64(valid)
	leanRatio := float64(leaning) / n
	asymRatio := float64(asymmetric) / n
	tiltRatio := float64(tilted) / n

	var instability float64
	if movementN > 0 {
		instability = clamp01(movement / float64(movementN) / noseMovementScale)
	}

	alignment := penalty(leanRatio)
	symmetry := penalty(asymRatio)

	subs := []SubComponent{
		{Name: "alignment", Score: alignment},
		{Name: "symmetry", Score: symmetry},
		{Name: "head_position", Score: penalty(tiltRatio)},
		{Name: "stability", Score: penalty(instability)},
		{Name: "confidence", Score: meanInt(alignment, symmetry)},
	}

	var issues, recs []string
	if leanRatio > leanIssueRatio {
		issues = append(issues, "frequent forward lean")
		recs = append(recs, "Keep your head over your shoulders; step towards the class instead of leaning in.")
	}
	if asymRatio > asymmetryIssueRatio {
		issues = append(issues, "uneven shoulders")
		recs = append(recs, "Square your shoulders and distribute weight evenly on both feet.")
	}
	if instability > instabilityIssue {
		issues = append(issues, "restless head movement")
		recs = append(recs, "Plant yourself when making key points; move deliberately between positions.")
	}
	return finalize(CategoryPosture, subs, issues, recs)
}
