// Package scoring implements the multimodal scoring engine.
//
// The Engine fuses the three analysis streams — landmark frame sequences,
// lexical transcript statistics, and optional audio level statistics — into
// five bounded category metrics (posture, gesticulation, facial
// expressiveness, speech, engagement) of 200 points each, an aggregate score
// out of 1000, a letter grade, and deterministic recommendation lists.
//
// Every category decomposes into exactly five sub-components of 40 points
// each. Sub-component formulas share one of two shapes: penalty-style
// (40 - penaltyRatio*40) or achievement-style (achievedRatio*40), always
// clamped into [0,40]. Scoring never fails: degenerate inputs (zero frames,
// zero words, zero duration) fall back to explicit defaults and still produce
// a complete, in-range result.
package scoring

import (
	"math"
	"time"

	"github.com/classlens/classlens/internal/lexical"
	"github.com/classlens/classlens/internal/sampler"
)

// Category identifies one of the five scored dimensions. Declaration order is
// the canonical display order and the tie-break order for priority areas.
type Category string

const (
	CategoryPosture    Category = "posture"
	CategoryGesture    Category = "gesticulation"
	CategoryFacial     Category = "facial_expressiveness"
	CategorySpeech     Category = "speech"
	CategoryEngagement Category = "engagement"
)

// Categories lists all categories in canonical order.
var Categories = []Category{
	CategoryPosture,
	CategoryGesture,
	CategoryFacial,
	CategorySpeech,
	CategoryEngagement,
}

// Per-category and per-sub-component point budgets.
const (
	// MaxCategoryScore is the ceiling of every category metric.
	MaxCategoryScore = 200

	// MaxSubScore is the ceiling of every sub-component.
	MaxSubScore = 40

	// MaxTotalScore is the ceiling of the aggregate score.
	MaxTotalScore = 1000

	// defaultSubScore is the neutral value a sub-component falls back to
	// when its input signal is entirely absent.
	defaultSubScore = 20

	// strengthThreshold is the category score at or above which a category
	// counts as a strength.
	strengthThreshold = 160

	// priorityAreaCount is the number of lowest-scoring categories reported
	// as priority areas.
	priorityAreaCount = 3
)

// SubComponent is one named 0-40 slice of a category score.
type SubComponent struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// CategoryMetric is the scored result for one category. Score always equals
// the clamped sum of the sub-components.
type CategoryMetric struct {
	Category      Category       `json:"category"`
	Score         int            `json:"score"`
	MaxScore      int            `json:"max_score"`
	SubComponents []SubComponent `json:"sub_components"`

	// Issues names the threshold breaches detected for this category.
	Issues []string `json:"issues,omitempty"`

	// Recommendations holds the rule-table advice for those breaches.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Sub returns the named sub-component score, or 0 if absent.
func (m CategoryMetric) Sub(name string) int {
	for _, s := range m.SubComponents {
		if s.Name == name {
			return s.Score
		}
	}
	return 0
}

// Result is the complete outcome of scoring one lesson.
type Result struct {
	// TotalScore is the sum of the five category scores, in [0,1000].
	TotalScore int `json:"total_score"`

	// Percentage is TotalScore as a percentage of the maximum.
	Percentage float64 `json:"percentage"`

	// Grade is the letter grade mapped from Percentage.
	Grade Grade `json:"grade"`

	// Categories holds the five category metrics in canonical order.
	Categories []CategoryMetric `json:"categories"`

	// Strengths lists the categories scoring at or above the strength
	// threshold, or a single generic entry when none qualify.
	Strengths []string `json:"strengths"`

	// PriorityAreas names the three lowest-scoring categories, lowest first.
	PriorityAreas []Category `json:"priority_areas"`

	// ImprovementPlan collects the recommendations of the priority areas,
	// in priority order.
	ImprovementPlan []string `json:"improvement_plan"`
}

// Category returns the metric for c. The zero metric is returned for an
// unknown category.
func (r *Result) Category(c Category) CategoryMetric {
	for _, m := range r.Categories {
		if m.Category == c {
			return m
		}
	}
	return CategoryMetric{}
}

// AudioStats carries optional loudness statistics measured over the lesson's
// extracted audio. Levels are linear RMS/peak amplitudes in [0,1].
type AudioStats struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`

	// DynamicRange is the spread between loud and quiet passages, in [0,1].
	DynamicRange float64 `json:"dynamic_range"`
}

// Input bundles everything the Engine scores. Sampling must be non-nil;
// Audio is optional and enables the real volume and presence signals.
type Input struct {
	Sampling *sampler.Result
	Lexical  lexical.Analysis
	Audio    *AudioStats
}

// Duration returns the lesson length from the sampling run.
func (in Input) Duration() time.Duration {
	if in.Sampling == nil {
		return 0
	}
	return in.Sampling.Duration
}

// Engine computes comprehensive lesson scores. Stateless and safe for
// concurrent use.
type Engine struct{}

// NewEngine returns a scoring Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score fuses the analysis streams into a complete result. It never returns
// an error: every degenerate input maps to a defined default.
func (e *Engine) Score(in Input) *Result {
	if in.Sampling == nil {
		in.Sampling = &sampler.Result{}
	}

	posture := e.scorePosture(in)
	gesture := e.scoreGesture(in)
	facial := e.scoreFacial(in)
	speech := e.scoreSpeech(in)
	engagement := e.scoreEngagement(in, posture, gesture, facial, speech)

	categories := []CategoryMetric{posture, gesture, facial, speech, engagement}

	result := &Result{Categories: categories}
	for _, c := range categories {
		result.TotalScore += c.Score
	}
	result.Percentage = float64(result.TotalScore) / float64(MaxTotalScore) * 100
	result.Grade = GradeFor(result.Percentage)
	result.Strengths = strengths(categories)
	result.PriorityAreas = priorityAreas(categories)
	result.ImprovementPlan = improvementPlan(result.PriorityAreas, categories)
	return result
}

// finalize clamps the sub-components, sums them, and clamps the total.
func finalize(category Category, subs []SubComponent, issues, recs []string) CategoryMetric {
	m := CategoryMetric{
		Category:        category,
		MaxScore:        MaxCategoryScore,
		SubComponents:   subs,
		Issues:          issues,
		Recommendations: recs,
	}
	for i := range m.SubComponents {
		m.SubComponents[i].Score = clampInt(m.SubComponents[i].Score, 0, MaxSubScore)
		m.Score += m.SubComponents[i].Score
	}
	m.Score = clampInt(m.Score, 0, MaxCategoryScore)
	return m
}

// achievement maps a [0,1] achieved ratio onto the 0-40 scale.
func achievement(ratio float64) int {
	return clampInt(int(math.Round(ratio*MaxSubScore)), 0, MaxSubScore)
}

// penalty maps a [0,1] penalty ratio onto the 0-40 scale, inverted.
func penalty(ratio float64) int {
	return clampInt(int(math.Round(MaxSubScore-ratio*MaxSubScore)), 0, MaxSubScore)
}

// band scores a value against an ideal [lo,hi] band: full marks inside, a
// graduated penalty proportional to the distance outside, zero at lo-falloff
// or hi+falloff.
func band(value, lo, hi, falloff float64) int {
	if value >= lo && value <= hi {
		return MaxSubScore
	}
	var distance float64
	if value < lo {
		distance = lo - value
	} else {
		distance = value - hi
	}
	return penalty(math.Min(1, distance/falloff))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// meanInt averages integer sub-scores, rounding half up.
func meanInt(values ...int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(values))))
}
