package scoring

import (
	"math"

	"github.com/classlens/classlens/pkg/landmark"
)

// Engagement scoring parameters.
const (
	// movementEnergyScale normalises mean wrist displacement per frame into
	// a [0,1] movement-energy ratio.
	movementEnergyScale = 0.08

	// activityDensityCap is the fraction of frames with visible gesture or
	// facial activity that earns full interaction marks.
	activityDensityCap = 0.6
)

// scoreEngagement rates audience engagement by blending signals from the
// other four categories with movement energy measured from landmark deltas.
//
// Sub-components: attention (posture stability with eye contact), interaction
// (gesture and facial activity density), energy (delivery pace with movement
// energy), presence (audio dynamic range when measured, otherwise the mean of
// the first three), and charisma (mean of the other four).
func (e *Engine) scoreEngagement(in Input, posture, gesture, facial, speech CategoryMetric) CategoryMetric {
	attention := meanInt(posture.Sub("stability"), facial.Sub("eye_contact"))
	interaction := achievement(clamp01(activityDensity(in) / activityDensityCap))
	energy := meanInt(speech.Sub("pace"), achievement(movementEnergy(in)))

	presence := meanInt(attention, interaction, energy)
	if in.Audio != nil {
		presence = achievement(clamp01(in.Audio.DynamicRange * 2))
	}
	charisma := meanInt(attention, interaction, energy, presence)

	subs := []SubComponent{
		{Name: "attention", Score: attention},
		{Name: "interaction", Score: interaction},
		{Name: "energy", Score: energy},
		{Name: "presence", Score: presence},
		{Name: "charisma", Score: charisma},
	}

	var issues, recs []string
	if energy < defaultSubScore {
		issues = append(issues, "low delivery energy")
		recs = append(recs, "Vary your pace and move with purpose; monotone delivery loses the room.")
	}
	if interaction < defaultSubScore {
		issues = append(issues, "little visible interaction")
		recs = append(recs, "Address students directly and use gestures to invite responses.")
	}
	return finalize(CategoryEngagement, subs, issues, recs)
}

// activityDensity is the fraction of sampled frames showing either a
// classified gesture or an active facial expression.
func activityDensity(in Input) float64 {
	frames := in.Sampling.FrameCount
	if frames == 0 {
		return 0
	}
	activeTicks := make(map[int]struct{})
	for i, f := range in.Sampling.GestureFrames {
		if f.Detection.Valid() && len(f.Detection.Gestures) > 0 {
			activeTicks[i] = struct{}{}
		}
	}
	for i, f := range in.Sampling.FaceFrames {
		if !f.Detection.Valid() {
			continue
		}
		for _, b := range f.Detection.Blendshapes {
			if b.Score > blendshapeActiveFloor {
				activeTicks[i] = struct{}{}
				break
			}
		}
	}
	return clamp01(float64(len(activeTicks)) / float64(frames))
}

// movementEnergy derives a [0,1] energy ratio from mean frame-to-frame wrist
// displacement over valid consecutive pose frames.
func movementEnergy(in Input) float64 {
	var (
		total float64
		n     int
		prevL, prevR struct{ x, y float64 }
		prevSeen     bool
	)
	for _, f := range in.Sampling.PoseFrames {
		if !f.Detection.Valid() {
			prevSeen = false
			continue
		}
		l := f.Detection.Landmarks[landmark.PoseLeftWrist]
		r := f.Detection.Landmarks[landmark.PoseRightWrist]
		if prevSeen {
			total += math.Hypot(l.X-prevL.x, l.Y-prevL.y) + math.Hypot(r.X-prevR.x, r.Y-prevR.y)
			n++
		}
		prevL.x, prevL.y = l.X, l.Y
		prevR.x, prevR.y = r.X, r.Y
		prevSeen = true
	}
	if n == 0 {
		return 0
	}
	return clamp01(total / float64(n) / movementEnergyScale)
}
