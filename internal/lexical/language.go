package lexical

import (
	"sort"
	"time"
	"unicode"

	"github.com/classlens/classlens/pkg/provider/transcribe"
)

// defaultSegmentSize is the number of words per language-detection segment.
const defaultSegmentSize = 10

// mixingThreshold is the non-dominant share above which a transcript counts
// as multilingual. Isolated loanwords and quoted terms stay below it.
const mixingThreshold = 0.15

// LanguageSwitch marks a point where consecutive segments disagree on
// language.
type LanguageSwitch struct {
	// Timestamp is the start time of the first word in the new language.
	Timestamp time.Duration `json:"timestamp"`

	// From and To are the languages on either side of the switch.
	From string `json:"from"`
	To   string `json:"to"`
}

// LanguageMixing summarises code-switching over a transcript.
type LanguageMixing struct {
	// Dominant is the most frequent language over all segments.
	Dominant string `json:"dominant"`

	// Shares maps each observed language to its fraction of segments.
	Shares map[string]float64 `json:"shares"`

	// Switches lists the detected language transitions, ascending by time.
	Switches []LanguageSwitch `json:"switches"`

	// Multilingual is true when the combined non-dominant share exceeds
	// the mixing threshold.
	Multilingual bool `json:"multilingual"`
}

// detectMixing slices the word stream into fixed-size segments, assigns each
// segment a language, and derives shares and switch points. Per-word language
// tags from the recogniser win; untagged words fall back to script heuristics.
func (a *Analyzer) detectMixing(words []Word) LanguageMixing {
	mixing := LanguageMixing{Shares: make(map[string]float64)}
	if len(words) == 0 {
		return mixing
	}

	size := a.segmentSize
	if size <= 0 {
		size = defaultSegmentSize
	}

	type segment struct {
		lang  string
		start time.Duration
	}
	var segments []segment
	for i := 0; i < len(words); i += size {
		end := min(i+size, len(words))
		lang := segmentLanguage(words[i:end])
		if lang == "" {
			continue
		}
		segments = append(segments, segment{lang: lang, start: words[i].Start})
	}
	if len(segments) == 0 {
		return mixing
	}

	counts := make(map[string]int)
	for _, s := range segments {
		counts[s.lang]++
	}
	for lang, n := range counts {
		mixing.Shares[lang] = float64(n) / float64(len(segments))
	}

	// Deterministic dominant pick: highest share, ties alphabetical.
	langs := make([]string, 0, len(counts))
	for l := range counts {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		if counts[l] > counts[mixing.Dominant] {
			mixing.Dominant = l
		}
	}

	for i := 1; i < len(segments); i++ {
		if segments[i].lang != segments[i-1].lang {
			mixing.Switches = append(mixing.Switches, LanguageSwitch{
				Timestamp: segments[i].start,
				From:      segments[i-1].lang,
				To:        segments[i].lang,
			})
		}
	}

	mixing.Multilingual = 1-mixing.Shares[mixing.Dominant] > mixingThreshold
	return mixing
}

// segmentLanguage votes over the words of one segment. Returns "" when no
// word yields a language.
func segmentLanguage(words []Word) string {
	counts := make(map[string]int)
	for _, w := range words {
		lang := w.Language
		if lang == "" {
			lang = scriptLanguage(w.Normalized)
		}
		if lang != "" {
			counts[primaryTag(lang)]++
		}
	}
	best, bestCount := "", 0
	langs := make([]string, 0, len(counts))
	for l := range counts {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}

// scriptLanguage guesses a language from the writing system. Non-Latin
// scripts identify their language directly; Latin script is shared by many
// languages and is narrowed further by [latinLanguage]. Recogniser tags
// always take priority upstream.
func scriptLanguage(word string) string {
	for _, r := range word {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			return "ru"
		case unicode.Is(unicode.Han, r):
			return "zh"
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			return "ja"
		case unicode.Is(unicode.Hangul, r):
			return "ko"
		case unicode.Is(unicode.Arabic, r):
			return "ar"
		case unicode.Is(unicode.Latin, r):
			return latinLanguage(word)
		}
	}
	return ""
}

// latinCommonWords lists high-frequency function words that identify a
// language within Latin script. The language set mirrors the filler
// dictionaries; entries are kept disjoint across languages so each word
// votes for exactly one.
var latinCommonWords = map[string]map[string]struct{}{
	"de": setOf("der", "die", "das", "und", "ist", "nicht", "ein", "eine", "ich", "wir"),
	"en": setOf("the", "and", "is", "of", "to", "that", "this", "with", "for", "you"),
	"es": setOf("el", "los", "las", "es", "una", "por", "pero", "como", "muy", "qué"),
	"fr": setOf("le", "les", "est", "une", "nous", "vous", "dans", "pour", "avec", "sur"),
}

// latinProbeOrder fixes the lookup order over latinCommonWords so votes are
// deterministic.
var latinProbeOrder = []string{"de", "en", "es", "fr"}

// latinDiacritics maps characters that, within the supported languages,
// occur in only one of them. Accents shared across languages (é) are left
// out rather than guessed.
var latinDiacritics = map[rune]string{
	'ä': "de", 'ö': "de", 'ü': "de", 'ß': "de",
	'ñ': "es", '¿': "es", '¡': "es",
	'ç': "fr", 'à': "fr", 'è': "fr", 'ê': "fr", 'â': "fr",
	'î': "fr", 'ô': "fr", 'û': "fr", 'œ': "fr", 'ë': "fr", 'ï': "fr", 'ù': "fr",
}

// latinLanguage narrows an untagged Latin-script word: exact common-word
// match first, then distinctive diacritics, then "en" as the weakest
// possible signal.
func latinLanguage(word string) string {
	for _, lang := range latinProbeOrder {
		if _, ok := latinCommonWords[lang][word]; ok {
			return lang
		}
	}
	for _, r := range word {
		if lang, ok := latinDiacritics[r]; ok {
			return lang
		}
	}
	return "en"
}

// dominantLanguage derives the transcript-level dominant language before
// classification has run, preferring recogniser tags.
func dominantLanguage(words []transcribe.Word, normalized []string) string {
	counts := make(map[string]int)
	for i, w := range words {
		lang := w.Language
		if lang == "" {
			lang = scriptLanguage(normalized[i])
		}
		if lang != "" {
			counts[primaryTag(lang)]++
		}
	}
	best, bestCount := "", 0
	langs := make([]string, 0, len(counts))
	for l := range counts {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}
