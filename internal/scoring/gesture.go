package scoring

import (
	"math"
	"time"
)

// Gesture scoring parameters.
const (
	// gestureVarietyCap is the distinct label count that earns full variety
	// marks.
	gestureVarietyCap = 5

	// gestureOptimumRate is the gestures-per-second rate that earns full
	// frequency marks; the score falls off linearly towards 0 and 2x.
	gestureOptimumRate = 1.0

	// gestureExpressiveThreshold is the classifier score above which a
	// gesture counts as expressive.
	gestureExpressiveThreshold = 0.7
)

// pedagogicalGestures is the allow-list of gesture labels considered
// appropriate for classroom instruction.
var pedagogicalGestures = map[string]struct{}{
	"Open_Palm":   {},
	"Pointing_Up": {},
	"Thumb_Up":    {},
	"Victory":     {},
}

// Rule-table thresholds for gesticulation issues.
const (
	gestureSparseRate        = 0.2
	gestureMonotonousVariety = 2
)

// scoreGesture rates hand gesticulation over the gesture frame sequence.
//
// Sub-components: variety (distinct labels), frequency (rate against the
// optimum), appropriateness (allow-listed labels), expressiveness
// (high-confidence gestures), and coordination (evenness of gesture spacing).
func (e *Engine) scoreGesture(in Input) CategoryMetric {
	var (
		labels     = make(map[string]struct{})
		total      int
		allowed    int
		expressive int
		timestamps []time.Duration
	)

	for _, f := range in.Sampling.GestureFrames {
		if !f.Detection.Valid() || len(f.Detection.Gestures) == 0 {
			continue
		}
		timestamps = append(timestamps, f.Timestamp)
		for _, g := range f.Detection.Gestures {
			total++
			labels[g.Label] = struct{}{}
			if _, ok := pedagogicalGestures[g.Label]; ok {
				allowed++
			}
			if g.Score >= gestureExpressiveThreshold {
				expressive++
			}
		}
	}

	if total == 0 {
		return finalize(CategoryGesture, []SubComponent{
			{Name: "variety", Score: defaultSubScore},
			{Name: "frequency", Score: defaultSubScore},
			{Name: "appropriateness", Score: defaultSubScore},
			{Name: "expressiveness", Score: defaultSubScore},
			{Name: "coordination", Score: defaultSubScore},
		}, []string{"no classified gestures detected"},
			[]string{"Use open-palm and pointing gestures to anchor explanations visually."})
	}

	seconds := in.Duration().Seconds()
	if seconds < 1 {
		seconds = 1
	}
	rate := float64(total) / seconds

	subs := []SubComponent{
		{Name: "variety", Score: achievement(float64(len(labels)) / gestureVarietyCap)},
		{Name: "frequency", Score: achievement(rateCloseness(rate))},
		{Name: "appropriateness", Score: achievement(float64(allowed) / float64(total))},
		{Name: "expressiveness", Score: achievement(float64(expressive) / float64(total))},
		{Name: "coordination", Score: achievement(1 - intervalSpread(timestamps))},
	}

	var issues, recs []string
	if rate < gestureSparseRate {
		issues = append(issues, "sparse gesturing")
		recs = append(recs, "Gesture more often; aim for roughly one gesture per second while explaining.")
	}
	if len(labels) <= gestureMonotonousVariety {
		issues = append(issues, "monotonous gesture repertoire")
		recs = append(recs, "Vary your gestures: alternate pointing, open palms, and enumeration on fingers.")
	}
	return finalize(CategoryGesture, subs, issues, recs)
}

// rateCloseness maps a gesture rate onto [0,1], peaking at the optimum and
// falling linearly to zero at 0 and at twice the optimum.
func rateCloseness(rate float64) float64 {
	return clamp01(1 - math.Abs(rate-gestureOptimumRate)/gestureOptimumRate)
}

// intervalSpread is the coefficient of variation of inter-gesture intervals,
// clamped to [0,1]. Evenly spaced gesturing approaches 0, bursty gesturing
// approaches 1.
func intervalSpread(timestamps []time.Duration) float64 {
	if len(timestamps) < 3 {
		return 0
	}
	intervals := make([]float64, 0, len(timestamps)-1)
	var mean float64
	for i := 1; i < len(timestamps); i++ {
		d := (timestamps[i] - timestamps[i-1]).Seconds()
		intervals = append(intervals, d)
		mean += d
	}
	mean /= float64(len(intervals))
	if mean <= 0 {
		return 0
	}
	var variance float64
	for _, d := range intervals {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(intervals))
	return clamp01(math.Sqrt(variance) / mean)
}
