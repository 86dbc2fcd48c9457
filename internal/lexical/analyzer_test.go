package lexical_test

import (
	"strings"
	"testing"
	"time"

	"github.com/classlens/classlens/internal/lexical"
	"github.com/classlens/classlens/pkg/provider/transcribe"
)

// timedWords turns a space-separated sentence into one word per second,
// starting at t=0, all tagged with lang.
func timedWords(text, lang string) []transcribe.Word {
	fields := strings.Fields(text)
	words := make([]transcribe.Word, len(fields))
	for i, f := range fields {
		words[i] = transcribe.Word{
			Text:       f,
			Start:      time.Duration(i) * time.Second,
			End:        time.Duration(i)*time.Second + 500*time.Millisecond,
			Confidence: 0.95,
			Language:   lang,
		}
	}
	return words
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Hello,":   "hello",
		"ЭМ":       "эм",
		"  world!": "world",
		"don't":    "don't",
		"re-do":    "re-do",
		"...":      "",
		"-dash":    "dash",
	}
	for in, want := range cases {
		got := lexical.Normalize(in)
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
		if again := lexical.Normalize(got); again != got {
			t.Errorf("Normalize(Normalize(%q)) = %q, not idempotent", in, again)
		}
	}
}

func TestClassify_DictionaryTier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		word, lang string
		want       lexical.WordClass
	}{
		{"um", "en", lexical.ClassFiller},
		{"эм", "ru", lexical.ClassFiller},
		{"эм", "ru-RU", lexical.ClassFiller},
		{"ähm", "de", lexical.ClassFiller},
		{"um", "ru", lexical.ClassFiller}, // elongation rule catches it anyway
		{"blackboard", "en", lexical.ClassWord},
	}
	for _, c := range cases {
		if got := lexical.Classify(c.word, c.lang); got != c.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", c.word, c.lang, got, c.want)
		}
	}
}

func TestClassify_CaseInsensitiveViaNormalize(t *testing.T) {
	t.Parallel()

	upper := lexical.Classify(lexical.Normalize("ЭМ"), "ru")
	lower := lexical.Classify(lexical.Normalize("эм"), "ru")
	if upper != lexical.ClassFiller || lower != lexical.ClassFiller {
		t.Errorf("classification of ЭМ/эм = %q/%q, want filler/filler", upper, lower)
	}
}

func TestClassify_PatternTiers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		word string
		want lexical.WordClass
	}{
		{"эммм", lexical.ClassFiller},  // vowel + repeated consonant
		{"ааа", lexical.ClassFiller},   // drawn-out vowel
		{"uhh", lexical.ClassFiller},
		{"uhuh", lexical.ClassFiller}, // vowel-consonant pair repeated
		{"ахах", lexical.ClassFiller},
		{"uhum", lexical.ClassWord}, // pairs differ, not a vocalisation
		{"мммм", lexical.ClassPause},   // repeated consonant
		{"mmm", lexical.ClassPause},
		{"кгх", lexical.ClassNoise},    // consonant fragment
		{"pfft", lexical.ClassNoise},
		{"школа", lexical.ClassWord},
		{"strength", lexical.ClassWord}, // long consonant-heavy real word
		{"", lexical.ClassWord},
	}
	for _, c := range cases {
		// An unknown language exercises the pattern tiers alone.
		if got := lexical.Classify(c.word, "xx"); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.word, got, c.want)
		}
	}
}

func TestAnalyze_SpeakingRate(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()

	words := make([]transcribe.Word, 120)
	for i := range words {
		words[i] = transcribe.Word{Text: "word", Start: time.Duration(i) * 500 * time.Millisecond, Language: "en"}
	}

	got := a.Analyze(words, time.Minute)
	if got.SpeakingRate != 120 {
		t.Errorf("SpeakingRate = %f, want 120", got.SpeakingRate)
	}
}

func TestAnalyze_ZeroDurationDoesNotDivideByZero(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("one two three", "en"), 0)
	// A sub-second recording is rated against a one second floor.
	if got.SpeakingRate != 180 {
		t.Errorf("SpeakingRate = %f, want 180", got.SpeakingRate)
	}
}

func TestAnalyze_FillerStats(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("um today um we uh learn fractions", "en"), 7*time.Second)

	if got.Fillers.TotalCount != 3 {
		t.Fatalf("TotalCount = %d, want 3", got.Fillers.TotalCount)
	}
	if want := 3.0 / 7.0; got.Fillers.Ratio != want {
		t.Errorf("Ratio = %f, want %f", got.Fillers.Ratio, want)
	}
	if got.Fillers.MostCommon() != "um" {
		t.Errorf("MostCommon = %q, want um", got.Fillers.MostCommon())
	}

	um := got.Fillers.PerWord["um"]
	if um.Count != 2 || len(um.Timestamps) != 2 {
		t.Fatalf("um occurrences = %+v, want 2 with 2 timestamps", um)
	}
	if um.Timestamps[0] != 0 || um.Timestamps[1] != 2*time.Second {
		t.Errorf("um timestamps = %v, want [0s 2s]", um.Timestamps)
	}
	if got.Fillers.PerLanguage["en"] != 3 {
		t.Errorf("PerLanguage[en] = %d, want 3", got.Fillers.PerLanguage["en"])
	}
}

func TestAnalyze_VocabularyExcludesFillers(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("um the cat sat on the mat", "en"), 7*time.Second)

	if got.Vocabulary.TotalWords != 6 {
		t.Errorf("TotalWords = %d, want 6", got.Vocabulary.TotalWords)
	}
	if got.Vocabulary.UniqueWords != 5 {
		t.Errorf("UniqueWords = %d, want 5", got.Vocabulary.UniqueWords)
	}
	if want := 5.0 / 6.0; got.Vocabulary.Richness != want {
		t.Errorf("Richness = %f, want %f", got.Vocabulary.Richness, want)
	}
}

func TestAnalyze_MeanSentenceLength(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("we begin now. open your books. good", "en"), 7*time.Second)

	// Sentences of 3, 3, and 1 words.
	if want := 7.0 / 3.0; got.Vocabulary.MeanSentenceLength != want {
		t.Errorf("MeanSentenceLength = %f, want %f", got.Vocabulary.MeanSentenceLength, want)
	}
}

func TestAnalyze_LanguageMixing(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer(lexical.WithSegmentSize(2))

	// Eight two-word segments: five English, three Russian, so the
	// non-dominant share is 37.5%.
	text := "open your books now please children " +
		"thank you very much " +
		"сейчас мы будем читать вслух"
	en := timedWords(text, "")[:10]
	for i := range en {
		en[i].Language = "en"
	}
	ru := timedWords(text, "")[10:]
	for i := range ru {
		ru[i].Language = "ru"
	}
	got := a.Analyze(append(en, ru...), 16*time.Second)

	if got.Mixing.Dominant != "en" {
		t.Errorf("Dominant = %q, want en", got.Mixing.Dominant)
	}
	if !got.Mixing.Multilingual {
		t.Error("Multilingual = false, want true")
	}
	if len(got.Mixing.Switches) != 1 {
		t.Fatalf("Switches = %v, want exactly one", got.Mixing.Switches)
	}
	sw := got.Mixing.Switches[0]
	if sw.From != "en" || sw.To != "ru" {
		t.Errorf("switch = %s→%s, want en→ru", sw.From, sw.To)
	}
}

func TestAnalyze_LoanwordsStayBelowMixingThreshold(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()

	words := timedWords("сегодня мы изучаем слово weekend запишите его в тетрадь пожалуйста", "")
	got := a.Analyze(words, 10*time.Second)

	if got.Mixing.Dominant != "ru" {
		t.Errorf("Dominant = %q, want ru", got.Mixing.Dominant)
	}
	if got.Mixing.Multilingual {
		t.Error("a single loanword should not flag the transcript as multilingual")
	}
}

func TestAnalyze_ScriptFallbackWhenUntagged(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("сегодня ЭМ урок", ""), 3*time.Second)

	if got.DominantLanguage != "ru" {
		t.Fatalf("DominantLanguage = %q, want ru", got.DominantLanguage)
	}
	// The untagged "ЭМ" must still hit the Russian dictionary.
	if got.Fillers.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", got.Fillers.TotalCount)
	}
}

func TestAnalyze_UntaggedLatinMixing(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer(lexical.WithSegmentSize(2))

	// Nothing is tagged and everything is Latin script, so detection rests
	// on the common-word lists and diacritics alone. Six English segments,
	// four German: the non-dominant share is 40%.
	text := "open the books and read the first page out loud right now " +
		"der schüler ist nicht da und wir üben"
	got := a.Analyze(timedWords(text, ""), 20*time.Second)

	if got.Mixing.Dominant != "en" {
		t.Errorf("Dominant = %q, want en", got.Mixing.Dominant)
	}
	if !got.Mixing.Multilingual {
		t.Error("Multilingual = false, want true for untagged en/de switching")
	}
	if len(got.Mixing.Switches) != 1 {
		t.Fatalf("Switches = %v, want exactly one", got.Mixing.Switches)
	}
	sw := got.Mixing.Switches[0]
	if sw.From != "en" || sw.To != "de" {
		t.Errorf("switch = %s→%s, want en→de", sw.From, sw.To)
	}
	if sw.Timestamp != 12*time.Second {
		t.Errorf("switch timestamp = %v, want 12s", sw.Timestamp)
	}
}

func TestAnalyze_UntaggedDominantLanguage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want string
	}{
		{"the students read with you", "en"},
		{"der schüler ist nicht da", "de"},
		{"el maestro los niños muy bien", "es"},
		{"les élèves dans une leçon", "fr"},
		{"ähm der unterricht ist gut", "de"},
	}
	a := lexical.NewAnalyzer()
	for _, c := range cases {
		got := a.Analyze(timedWords(c.text, ""), 5*time.Second)
		if got.DominantLanguage != c.want {
			t.Errorf("DominantLanguage(%q) = %q, want %q", c.text, got.DominantLanguage, c.want)
		}
	}
}

func TestAnalyze_Repetitions(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("today we discuss фотосинтез um фотосинтез in detail", "en"), 8*time.Second)

	if got.Repetitions.Count != 1 {
		t.Fatalf("Count = %d, want 1 (filler between repeats must not break the pair)", got.Repetitions.Count)
	}
	occ := got.Repetitions.Occurrences[0]
	if occ.First != "фотосинтез" || occ.Second != "фотосинтез" {
		t.Errorf("occurrence = %+v, want фотосинтез twice", occ)
	}
}

func TestAnalyze_NearIdenticalRestartCounts(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("the presenta presentation starts now", "en"), 5*time.Second)

	if got.Repetitions.Count != 1 {
		t.Errorf("Count = %d, want 1", got.Repetitions.Count)
	}
}

func TestAnalyze_ShortWordsNeedExactMatch(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(timedWords("the cat and cap sat", "en"), 5*time.Second)

	if got.Repetitions.Count != 0 {
		t.Errorf("Count = %d, want 0: cat/cap must not count as a stumble", got.Repetitions.Count)
	}
}

func TestAnalyze_EmptyTranscript(t *testing.T) {
	t.Parallel()

	a := lexical.NewAnalyzer()
	got := a.Analyze(nil, 10*time.Minute)

	if got.Fillers.TotalCount != 0 || got.Fillers.Ratio != 0 {
		t.Errorf("fillers = %+v, want zero", got.Fillers)
	}
	if got.Vocabulary.Richness != 0 {
		t.Errorf("Richness = %f, want 0", got.Vocabulary.Richness)
	}
	if got.SpeakingRate != 0 {
		t.Errorf("SpeakingRate = %f, want 0", got.SpeakingRate)
	}
	if got.Mixing.Multilingual {
		t.Error("empty transcript flagged multilingual")
	}
}
