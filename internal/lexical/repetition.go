package lexical

import (
	"time"

	"github.com/antzucaro/matchr"
)

// defaultRepetitionThreshold is the Jaro-Winkler similarity above which two
// consecutive content words count as a repetition stumble.
const defaultRepetitionThreshold = 0.85

// Repetition records one stumble: a word immediately restarted or repeated
// ("the the", "presen- presentation").
type Repetition struct {
	// Timestamp is the start time of the repeated occurrence.
	Timestamp time.Duration `json:"timestamp"`

	// First and Second are the normalised forms of the two words.
	First  string `json:"first"`
	Second string `json:"second"`

	// Similarity is the Jaro-Winkler score between them.
	Similarity float64 `json:"similarity"`
}

// RepetitionStats aggregates repetition stumbles over a transcript.
type RepetitionStats struct {
	// Count is the number of detected stumbles.
	Count int `json:"count"`

	// Ratio is Count divided by the content word count (0 when empty).
	Ratio float64 `json:"ratio"`

	// Occurrences lists every stumble in transcript order.
	Occurrences []Repetition `json:"occurrences"`
}

// detectRepetitions scans consecutive content-word pairs for near-identical
// neighbours. Fillers and pauses between two words do not break the pair: a
// speaker restarting after an "um" is still one stumble. Words of three runes
// or fewer must match exactly, since Jaro-Winkler saturates on very short
// strings.
func (a *Analyzer) detectRepetitions(words []Word) RepetitionStats {
	var stats RepetitionStats
	var prev *Word
	var contentWords int

	for i := range words {
		w := &words[i]
		if w.Class != ClassWord || w.Normalized == "" {
			continue
		}
		contentWords++
		if prev != nil {
			if sim, ok := a.similar(prev.Normalized, w.Normalized); ok {
				stats.Count++
				stats.Occurrences = append(stats.Occurrences, Repetition{
					Timestamp:  w.Start,
					First:      prev.Normalized,
					Second:     w.Normalized,
					Similarity: sim,
				})
			}
		}
		prev = w
	}

	if contentWords > 0 {
		stats.Ratio = float64(stats.Count) / float64(contentWords)
	}
	return stats
}

func (a *Analyzer) similar(first, second string) (float64, bool) {
	if len([]rune(first)) <= 3 || len([]rune(second)) <= 3 {
		if first == second {
			return 1, true
		}
		return 0, false
	}
	sim := matchr.JaroWinkler(first, second, false)
	return sim, sim >= a.repetitionThreshold
}
