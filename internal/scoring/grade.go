package scoring

import (
	"fmt"
	"sort"
)

// Grade is a letter grade derived from the overall percentage.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeCMinus Grade = "C-"
	GradeD      Grade = "D"
)

// gradeTable maps percentage floors to grades, highest first. A fixed
// lookup, not a formula.
var gradeTable = []struct {
	floor float64
	grade Grade
}{
	{90, GradeAPlus},
	{85, GradeA},
	{80, GradeAMinus},
	{75, GradeBPlus},
	{70, GradeB},
	{65, GradeBMinus},
	{60, GradeCPlus},
	{55, GradeC},
	{50, GradeCMinus},
}

// GradeFor maps a percentage onto its letter grade. Anything below the
// lowest floor is a D.
func GradeFor(percentage float64) Grade {
	for _, row := range gradeTable {
		if percentage >= row.floor {
			return row.grade
		}
	}
	return GradeD
}

// priorityAreas returns the three lowest-scoring categories, lowest first.
// Ties keep canonical category order, so selection is deterministic.
func priorityAreas(categories []CategoryMetric) []Category {
	idx := make([]int, len(categories))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return categories[idx[a]].Score < categories[idx[b]].Score
	})

	n := min(priorityAreaCount, len(idx))
	areas := make([]Category, 0, n)
	for _, i := range idx[:n] {
		areas = append(areas, categories[i].Category)
	}
	return areas
}

// strengths lists the categories at or above the strength threshold, in
// canonical order, with a generic fallback when none qualify.
func strengths(categories []CategoryMetric) []string {
	var out []string
	for _, c := range categories {
		if c.Score >= strengthThreshold {
			out = append(out, fmt.Sprintf("Strong %s (%d/%d)", c.Category, c.Score, c.MaxScore))
		}
	}
	if len(out) == 0 {
		out = []string{"Consistent baseline across all categories; build on the priority areas below."}
	}
	return out
}

// improvementPlan concatenates the recommendations of the priority areas in
// priority order, de-duplicated.
func improvementPlan(areas []Category, categories []CategoryMetric) []string {
	seen := make(map[string]struct{})
	var plan []string
	for _, area := range areas {
		for _, c := range categories {
			if c.Category != area {
				continue
			}
			for _, rec := range c.Recommendations {
				if _, dup := seen[rec]; dup {
					continue
				}
				seen[rec] = struct{}{}
				plan = append(plan, rec)
			}
		}
	}
	return plan
}
