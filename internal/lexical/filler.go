package lexical

// Filler dictionaries by BCP-47 primary language tag. Entries are
// normalised forms; multi-word discourse markers are out of scope because
// classification operates on single recogniser tokens.
var fillerDictionaries = map[string]map[string]struct{}{
	"en": setOf("um", "uh", "er", "ah", "erm", "hmm", "mhm", "uhm", "hm"),
	"ru": setOf("эм", "ээ", "ну", "типа", "короче", "значит", "какбы"),
	"de": setOf("äh", "ähm", "öhm", "hm", "naja", "tja"),
	"es": setOf("eh", "este", "pues", "osea", "digamos"),
	"fr": setOf("euh", "ben", "bah", "hein", "bref"),
}

func setOf(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Classify assigns a lexical class to a normalised token. lang selects the
// dictionary for tier one; tiers two through four are language-independent
// pattern rules:
//
//  1. Dictionary hit for the word's language → filler.
//  2. Elongated vocalisation: a vowel, optionally drawn out, optionally
//     followed by a run of one trailing consonant ("эммм", "ааа", "uhh"),
//     or a vowel-consonant pair repeated ("uhuh", "ахах") → filler.
//  3. A single consonant repeated ("мммм", "mmm") → pause.
//  4. A short all-consonant fragment ("кгх", "pfft") → noise.
//
// Everything else, including the empty token, is an ordinary word.
func Classify(normalized, lang string) WordClass {
	if normalized == "" {
		return ClassWord
	}
	if dict, ok := fillerDictionaries[primaryTag(lang)]; ok {
		if _, hit := dict[normalized]; hit {
			return ClassFiller
		}
	}

	runes := []rune(normalized)
	switch {
	case isElongatedVocalisation(runes), isRepeatedVowelPair(runes):
		return ClassFiller
	case isRepeatedConsonant(runes):
		return ClassPause
	case isConsonantFragment(runes):
		return ClassNoise
	}
	return ClassWord
}

// primaryTag reduces "en-US" style tags to their primary subtag.
func primaryTag(lang string) string {
	for i, r := range lang {
		if r == '-' || r == '_' {
			return lang[:i]
		}
	}
	return lang
}

const vowels = "aeiouyàáâäæãåāèéêëēėęîïíīįìôöòóœøōõûüùúūаеёиоуыэюя"

func isVowel(r rune) bool {
	for _, v := range vowels {
		if r == v {
			return true
		}
	}
	return false
}

// isElongatedVocalisation matches tokens of the shape v+ c* where v is one
// repeated vowel and c is one repeated trailing consonant, with at least two
// runes in total. Covers both drawn-out vowels ("ааа", "uhh") and
// vowel-then-hum shapes ("эммм", "umm").
func isElongatedVocalisation(runes []rune) bool {
	if len(runes) < 2 || !isVowel(runes[0]) {
		return false
	}
	i := 1
	for i < len(runes) && runes[i] == runes[0] {
		i++
	}
	if i == len(runes) {
		return true
	}
	if isVowel(runes[i]) {
		return false
	}
	tail := runes[i]
	for ; i < len(runes); i++ {
		if runes[i] != tail {
			return false
		}
	}
	return true
}

// isRepeatedVowelPair matches a vowel-consonant pair repeated two or more
// times ("uhuh", "ахах").
func isRepeatedVowelPair(runes []rune) bool {
	if len(runes) < 4 || len(runes)%2 != 0 {
		return false
	}
	if !isVowel(runes[0]) || isVowel(runes[1]) {
		return false
	}
	for i := 2; i < len(runes); i += 2 {
		if runes[i] != runes[0] || runes[i+1] != runes[1] {
			return false
		}
	}
	return true
}

// isRepeatedConsonant matches a single consonant repeated two or more times.
func isRepeatedConsonant(runes []rune) bool {
	if len(runes) < 2 || isVowel(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

// isConsonantFragment matches short vowel-free fragments. Anything longer
// than four runes is assumed to be a real word (abbreviations, acronyms).
func isConsonantFragment(runes []rune) bool {
	if len(runes) < 2 || len(runes) > 4 {
		return false
	}
	for _, r := range runes {
		if isVowel(r) {
			return false
		}
	}
	return true
}
