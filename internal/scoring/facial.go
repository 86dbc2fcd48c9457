package scoring

import (
	"math"
)

// Facial blendshape category groups. Names follow the standard 52-category
// face blendshape taxonomy.
var (
	smileShapes = []string{"mouthSmileLeft", "mouthSmileRight"}

	// lookAwayShapes are the gaze categories that indicate the presenter is
	// not facing the class.
	lookAwayShapes = []string{
		"eyeLookOutLeft", "eyeLookOutRight",
		"eyeLookUpLeft", "eyeLookUpRight",
		"eyeLookDownLeft", "eyeLookDownRight",
	}

	browShapes = []string{
		"browInnerUp",
		"browOuterUpLeft", "browOuterUpRight",
		"browDownLeft", "browDownRight",
	}
)

// Facial scoring parameters.
const (
	// smileActiveThreshold is the mean smile intensity above which a frame
	// counts as smiling.
	smileActiveThreshold = 0.3

	// lookAwayThreshold is the mean gaze-away intensity above which a frame
	// counts as looking away.
	lookAwayThreshold = 0.5

	// browActiveThreshold is the mean brow intensity above which a frame
	// counts as brow-active.
	browActiveThreshold = 0.2

	// expressionRangeCap is the distinct active-category count that earns
	// full emotional-range marks.
	expressionRangeCap = 10

	// authenticityOptimum is the mean active-expression intensity that
	// earns full authenticity marks. Both a frozen face and a constantly
	// exaggerated one score lower.
	authenticityOptimum = 0.35
)

// Rule-table thresholds for facial issues.
const (
	smileScarceRatio  = 0.1
	lookAwayOftenRate = 0.3
)

// scoreFacial rates facial expressiveness over the face frame sequence.
//
// Sub-components: smile frequency, eye contact (inverse of looking away),
// expressiveness (brow activity), emotional range (distinct active
// categories), and authenticity (moderate overall expression activity).
func (e *Engine) scoreFacial(in Input) CategoryMetric {
	var (
		valid     int
		smiling   int
		away      int
		browsUp   int
		active    = make(map[string]struct{})
		intensity float64
	)

	for _, f := range in.Sampling.FaceFrames {
		if !f.Detection.Valid() {
			continue
		}
		valid++

		shapes := make(map[string]float64, len(f.Detection.Blendshapes))
		var frameSum float64
		var frameActive int
		for _, b := range f.Detection.Blendshapes {
			shapes[b.Name] = b.Score
			if b.Score > blendshapeActiveFloor {
				active[b.Name] = struct{}{}
				frameSum += b.Score
				frameActive++
			}
		}
		if frameActive > 0 {
			intensity += frameSum / float64(frameActive)
		}

		if meanShape(shapes, smileShapes) > smileActiveThreshold {
			smiling++
		}
		if meanShape(shapes, lookAwayShapes) > lookAwayThreshold {
			away++
		}
		if meanShape(shapes, browShapes) > browActiveThreshold {
			browsUp++
		}
	}

	if valid == 0 {
		return finalize(CategoryFacial, []SubComponent{
			{Name: "smile_frequency", Score: defaultSubScore},
			{Name: "eye_contact", Score: defaultSubScore},
			{Name: "expressiveness", Score: defaultSubScore},
			{Name: "emotional_range", Score: defaultSubScore},
			{Name: "authenticity", Score: defaultSubScore},
		}, []string{"no usable face detections"}, nil)
	}

	n := float64(valid)
	smileRatio := float64(smiling) / n
	awayRatio := float64(away) / n
	browRatio := float64(browsUp) / n
	meanIntensity := intensity / n

	subs := []SubComponent{
		{Name: "smile_frequency", Score: achievement(clamp01(smileRatio / 0.5))},
		{Name: "eye_contact", Score: penalty(awayRatio)},
		{Name: "expressiveness", Score: achievement(clamp01(browRatio / 0.5))},
		{Name: "emotional_range", Score: achievement(float64(len(active)) / expressionRangeCap)},
		{Name: "authenticity", Score: achievement(authenticityCloseness(meanIntensity))},
	}

	var issues, recs []string
	if smileRatio < smileScarceRatio {
		issues = append(issues, "rarely smiles")
		recs = append(recs, "Smile when greeting the class and when students answer correctly.")
	}
	if awayRatio > lookAwayOftenRate {
		issues = append(issues, "frequently looks away")
		recs = append(recs, "Face the class while speaking; glance at notes or the board only briefly.")
	}
	return finalize(CategoryFacial, subs, issues, recs)
}

// blendshapeActiveFloor mirrors the sampler's noise floor: categories at or
// below it do not count as active expressions.
const blendshapeActiveFloor = 0.05

// meanShape averages the named categories, treating absent ones as zero.
func meanShape(shapes map[string]float64, names []string) float64 {
	if len(names) == 0 {
		return 0
	}
	var sum float64
	for _, name := range names {
		sum += shapes[name]
	}
	return sum / float64(len(names))
}

// authenticityCloseness peaks at the optimum mean intensity and falls
// linearly to zero at 0 and at twice the optimum.
func authenticityCloseness(meanIntensity float64) float64 {
	return clamp01(1 - math.Abs(meanIntensity-authenticityOptimum)/authenticityOptimum)
}
