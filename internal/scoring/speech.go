package scoring

import "fmt"

// Speech scoring parameters.
const (
	// fillerPenaltyScale converts the filler ratio into a [0,1] clarity
	// penalty: a 20% filler ratio zeroes the clarity sub-score.
	fillerPenaltyScale = 5.0

	// Ideal speaking-rate band in words per minute, with the falloff width
	// outside it.
	paceBandLow     = 120.0
	paceBandHigh    = 180.0
	paceBandFalloff = 60.0

	// Ideal linear RMS band for speaking volume, with its falloff.
	volumeBandLow     = 0.05
	volumeBandHigh    = 0.5
	volumeBandFalloff = 0.3

	// vocabularyRichnessTarget is the type-token ratio that earns full
	// richness marks.
	vocabularyRichnessTarget = 0.6

	// Word-length contribution: mean lengths from wordLengthFloor runes up
	// to wordLengthFloor+wordLengthSpan earn proportionally more.
	wordLengthFloor = 3.0
	wordLengthSpan  = 4.0

	// Ideal mean sentence length band in words, with its falloff.
	sentenceBandLow     = 8.0
	sentenceBandHigh    = 20.0
	sentenceBandFalloff = 12.0
)

// Rule-table thresholds for speech issues.
const (
	fillerIssueRatio     = 0.05
	repetitionIssueRatio = 0.05
)

// scoreSpeech rates verbal delivery from the lexical analysis.
//
// Sub-components: clarity (filler penalty), pace (wpm band), volume (audio
// RMS band when measured, neutral default otherwise), vocabulary (richness
// and word length), and grammar (sentence-length band as a proxy).
func (e *Engine) scoreSpeech(in Input) CategoryMetric {
	lex := in.Lexical

	if len(lex.Words) == 0 {
		return finalize(CategorySpeech, []SubComponent{
			{Name: "clarity", Score: defaultSubScore},
			{Name: "pace", Score: defaultSubScore},
			{Name: "volume", Score: defaultSubScore},
			{Name: "vocabulary", Score: defaultSubScore},
			{Name: "grammar", Score: defaultSubScore},
		}, []string{"no transcript words"}, nil)
	}

	volume := defaultVolumeScore
	if in.Audio != nil {
		volume = band(in.Audio.RMS, volumeBandLow, volumeBandHigh, volumeBandFalloff)
	}

	richness := clamp01(lex.Vocabulary.Richness / vocabularyRichnessTarget)
	length := clamp01((lex.Vocabulary.MeanWordLength - wordLengthFloor) / wordLengthSpan)

	subs := []SubComponent{
		{Name: "clarity", Score: penalty(clamp01(lex.Fillers.Ratio * fillerPenaltyScale))},
		{Name: "pace", Score: band(lex.SpeakingRate, paceBandLow, paceBandHigh, paceBandFalloff)},
		{Name: "volume", Score: volume},
		{Name: "vocabulary", Score: achievement(0.7*richness + 0.3*length)},
		{Name: "grammar", Score: band(lex.Vocabulary.MeanSentenceLength, sentenceBandLow, sentenceBandHigh, sentenceBandFalloff)},
	}

	var issues, recs []string
	if lex.Fillers.Ratio > fillerIssueRatio {
		issues = append(issues, "high filler-word ratio")
		rec := "Pause silently instead of using filler words."
		if common := lex.Fillers.MostCommon(); common != "" {
			rec = fmt.Sprintf("Pause silently instead of saying %q; it appears %d times.",
				common, lex.Fillers.PerWord[common].Count)
		}
		recs = append(recs, rec)
	}
	if lex.SpeakingRate > 0 && lex.SpeakingRate < paceBandLow {
		issues = append(issues, "slow delivery")
		recs = append(recs, "Pick up the pace slightly; aim for 120-180 words per minute.")
	}
	if lex.SpeakingRate > paceBandHigh {
		issues = append(issues, "rushed delivery")
		recs = append(recs, "Slow down and leave pauses after key points; aim for 120-180 words per minute.")
	}
	if lex.Mixing.Multilingual {
		issues = append(issues, "frequent language switching")
		recs = append(recs, "Stick to the lesson's primary language; introduce foreign terms deliberately and translate them.")
	}
	if lex.Repetitions.Ratio > repetitionIssueRatio {
		issues = append(issues, "frequent restarts")
		recs = append(recs, "Finish each sentence before rephrasing; a short pause beats a restart.")
	}
	return finalize(CategorySpeech, subs, issues, recs)
}

// defaultVolumeScore is the neutral volume sub-score used when no audio
// loudness measurement is available.
const defaultVolumeScore = 30
