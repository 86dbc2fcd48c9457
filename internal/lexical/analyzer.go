// Package lexical analyses word-level lesson transcripts.
//
// The Analyzer consumes the timed words produced by a transcribe.Transcriber
// and derives everything the scoring engine needs from the speech channel:
// vocabulary richness, speaking rate, filler-word statistics, repetition
// disfluencies, and language-mixing (code-switching) metrics.
//
// Word classification (word / filler / pause / noise) is computed here by
// dictionary and pattern matching — it is never accepted from the transcriber
// as ground truth, and must be recomputed whenever word text changes.
//
// The Analyzer is stateless and safe for concurrent use.
package lexical

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/classlens/classlens/pkg/provider/transcribe"
)

// WordClass is the lexical classification of a transcript token.
type WordClass string

const (
	// ClassWord is an ordinary content word.
	ClassWord WordClass = "word"

	// ClassFiller is a disfluency token with no propositional content
	// ("um", "эм").
	ClassFiller WordClass = "filler"

	// ClassPause is a vocalised pause (a drawn-out consonant, "мммм").
	ClassPause WordClass = "pause"

	// ClassNoise is a short non-speech fragment the recogniser emitted.
	ClassNoise WordClass = "noise"
)

// Word is a transcript word annotated with derived lexical fields.
type Word struct {
	transcribe.Word

	// Normalized is the case-folded, punctuation-stripped form used for
	// vocabulary and dictionary matching.
	Normalized string `json:"normalized"`

	// Class is the derived lexical classification.
	Class WordClass `json:"class"`

	// IsFiller is true when Class is ClassFiller. Kept as a separate field
	// because downstream consumers overwhelmingly ask this one question.
	IsFiller bool `json:"is_filler"`
}

// FillerOccurrences records every appearance of one filler word.
type FillerOccurrences struct {
	// Count is the number of occurrences.
	Count int `json:"count"`

	// Timestamps holds each occurrence's start time, ascending.
	Timestamps []time.Duration `json:"timestamps"`
}

// FillerStats aggregates filler usage over a transcript.
type FillerStats struct {
	// TotalCount is the number of filler tokens.
	TotalCount int `json:"total_count"`

	// Ratio is TotalCount divided by the total word count (0 when the
	// transcript is empty).
	Ratio float64 `json:"ratio"`

	// PerWord maps each normalised filler to its occurrences.
	PerWord map[string]FillerOccurrences `json:"per_word"`

	// PerLanguage counts fillers by the language they were matched in.
	PerLanguage map[string]int `json:"per_language"`
}

// MostCommon returns the filler with the highest count, breaking ties
// alphabetically so the answer is deterministic. Returns "" for a clean
// transcript.
func (s FillerStats) MostCommon() string {
	best := ""
	bestCount := 0
	words := make([]string, 0, len(s.PerWord))
	for w := range s.PerWord {
		words = append(words, w)
	}
	sort.Strings(words)
	for _, w := range words {
		if c := s.PerWord[w].Count; c > bestCount {
			best, bestCount = w, c
		}
	}
	return best
}

// VocabularyStats summarises lexical variety.
type VocabularyStats struct {
	// TotalWords counts content words (fillers, pauses, and noise are
	// excluded).
	TotalWords int `json:"total_words"`

	// UniqueWords counts distinct normalised content words.
	UniqueWords int `json:"unique_words"`

	// Richness is UniqueWords/TotalWords, 0 for an empty transcript.
	Richness float64 `json:"richness"`

	// MeanWordLength is the average rune length of normalised content words.
	MeanWordLength float64 `json:"mean_word_length"`

	// MeanSentenceLength is the average number of words per sentence,
	// where sentences are delimited by terminal punctuation on the raw
	// word text. A transcript without terminal punctuation counts as one
	// sentence.
	MeanSentenceLength float64 `json:"mean_sentence_length"`
}

// Analysis is the complete lexical output for one transcript.
type Analysis struct {
	// Words holds every input word with its derived annotation, in order.
	Words []Word `json:"words"`

	Vocabulary  VocabularyStats `json:"vocabulary"`
	Fillers     FillerStats     `json:"fillers"`
	Mixing      LanguageMixing  `json:"language_mixing"`
	Repetitions RepetitionStats `json:"repetitions"`

	// SpeakingRate is the delivery pace in words per minute, computed over
	// all tokens against the recording duration (minimum 1 s, so a
	// zero-duration recording cannot divide by zero).
	SpeakingRate float64 `json:"speaking_rate_wpm"`

	// DominantLanguage is the transcript-level dominant language tag.
	DominantLanguage string `json:"dominant_language"`
}

// Analyzer computes lexical analyses. The zero value is not usable; construct
// with NewAnalyzer.
type Analyzer struct {
	segmentSize         int
	repetitionThreshold float64
}

// Option is a functional option for configuring an Analyzer.
type Option func(*Analyzer)

// WithSegmentSize sets the word count per language-detection segment.
// Defaults to 10.
func WithSegmentSize(n int) Option {
	return func(a *Analyzer) {
		a.segmentSize = n
	}
}

// WithRepetitionThreshold sets the Jaro-Winkler similarity above which two
// consecutive words count as a repetition stumble. Defaults to 0.85.
func WithRepetitionThreshold(threshold float64) Option {
	return func(a *Analyzer) {
		a.repetitionThreshold = threshold
	}
}

// NewAnalyzer returns an Analyzer with the supplied options applied.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		segmentSize:         defaultSegmentSize,
		repetitionThreshold: defaultRepetitionThreshold,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze annotates words and derives all lexical statistics. duration is the
// recording length; values below one second are treated as one second so that
// rate computation is always defined.
func (a *Analyzer) Analyze(words []transcribe.Word, duration time.Duration) Analysis {
	analysis := Analysis{
		Fillers: FillerStats{
			PerWord:     make(map[string]FillerOccurrences),
			PerLanguage: make(map[string]int),
		},
	}

	// The dominant language is needed before classification: words without
	// a language tag fall back to it for dictionary selection.
	normalized := make([]string, len(words))
	for i, w := range words {
		normalized[i] = Normalize(w.Text)
	}
	analysis.DominantLanguage = dominantLanguage(words, normalized)

	for i, w := range words {
		lang := w.Language
		if lang == "" {
			lang = analysis.DominantLanguage
		}
		class := Classify(normalized[i], lang)
		analysis.Words = append(analysis.Words, Word{
			Word:       w,
			Normalized: normalized[i],
			Class:      class,
			IsFiller:   class == ClassFiller,
		})
		if class == ClassFiller {
			occ := analysis.Fillers.PerWord[normalized[i]]
			occ.Count++
			occ.Timestamps = append(occ.Timestamps, w.Start)
			analysis.Fillers.PerWord[normalized[i]] = occ
			analysis.Fillers.TotalCount++
			analysis.Fillers.PerLanguage[lang]++
		}
	}

	// Occurrence timestamps must ascend even if the input words did not.
	for k, occ := range analysis.Fillers.PerWord {
		sort.Slice(occ.Timestamps, func(i, j int) bool { return occ.Timestamps[i] < occ.Timestamps[j] })
		analysis.Fillers.PerWord[k] = occ
	}

	total := len(words)
	if total > 0 {
		analysis.Fillers.Ratio = float64(analysis.Fillers.TotalCount) / float64(total)
	}

	analysis.Vocabulary = a.vocabulary(analysis.Words)
	analysis.Mixing = a.detectMixing(analysis.Words)
	analysis.Repetitions = a.detectRepetitions(analysis.Words)

	seconds := duration.Seconds()
	if seconds < 1 {
		seconds = 1
	}
	analysis.SpeakingRate = float64(total) / seconds * 60

	return analysis
}

// vocabulary computes richness and length statistics over content words.
func (a *Analyzer) vocabulary(words []Word) VocabularyStats {
	var stats VocabularyStats
	unique := make(map[string]struct{})
	var runeTotal int

	for _, w := range words {
		if w.Class != ClassWord || w.Normalized == "" {
			continue
		}
		stats.TotalWords++
		runeTotal += len([]rune(w.Normalized))
		unique[w.Normalized] = struct{}{}
	}

	stats.UniqueWords = len(unique)
	if stats.TotalWords > 0 {
		stats.Richness = float64(stats.UniqueWords) / float64(stats.TotalWords)
		stats.MeanWordLength = float64(runeTotal) / float64(stats.TotalWords)
	}
	stats.MeanSentenceLength = meanSentenceLength(words)
	return stats
}

// meanSentenceLength splits the raw token stream at terminal punctuation and
// averages the per-sentence word counts.
func meanSentenceLength(words []Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sentences, current, counted int
	for _, w := range words {
		if w.Class != ClassWord {
			continue
		}
		current++
		counted++
		if strings.ContainsAny(w.Text, ".!?") && current > 0 {
			sentences++
			current = 0
		}
	}
	if current > 0 {
		sentences++
	}
	if sentences == 0 {
		return 0
	}
	return float64(counted) / float64(sentences)
}

// Normalize lowercases text and strips anything that is not a letter,
// digit, or intra-word hyphen/apostrophe.
func Normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '\'':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		}
	}
	return strings.TrimRight(b.String(), "-'")
}
