// Package analysis runs the full lesson-scoring pipeline over one video.
//
// A Pipeline connects the collaborators in order: frame sampling over the
// video source, audio extraction and transcription, lexical analysis of the
// transcript, multimodal scoring, and optional narrative report generation.
// Each Analyze call owns its own buffers; a Pipeline is safe for concurrent
// Analyze calls as long as its collaborators are.
//
// Failure policy follows the severity ladder of the stages themselves: an
// unopenable video or a sampling run with zero frames is fatal; a failed
// transcription is downgraded to a clearly tagged fallback transcript; a
// failed report leaves the narrative absent. Scoring itself never fails.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/classlens/classlens/internal/lexical"
	"github.com/classlens/classlens/internal/observe"
	"github.com/classlens/classlens/internal/sampler"
	"github.com/classlens/classlens/internal/scoring"
	"github.com/classlens/classlens/pkg/media"
	"github.com/classlens/classlens/pkg/provider/report"
	"github.com/classlens/classlens/pkg/provider/transcribe"
)

// Stage identifies a pipeline phase for progress reporting.
type Stage string

const (
	StageSampling     Stage = "sampling"
	StageTranscribing Stage = "transcribing"
	StageScoring      Stage = "scoring"
	StageReporting    Stage = "reporting"
	StageDone         Stage = "done"
)

// Progress is one progress update. Percent is the overall pipeline progress
// in 0–100 and is monotonically non-decreasing across updates.
type Progress struct {
	Stage   Stage `json:"stage"`
	Percent int   `json:"percent"`
}

// ProgressFunc receives progress updates. Callbacks run on the analysis
// goroutine and must return promptly.
type ProgressFunc func(Progress)

// Stage weights for the overall progress percentage. Sampling dominates the
// wall clock of a typical run.
const (
	samplingSpan     = 60 // 0–60
	transcribingSpan = 25 // 60–85
	scoringEnd       = 90
	reportingEnd     = 95
)

// Result is the complete outcome of one analysis run.
type Result struct {
	// VideoPath is the analysed video file.
	VideoPath string `json:"video_path"`

	// Sampling holds the landmark frames and detection quality.
	Sampling *sampler.Result `json:"sampling"`

	// Transcript is the word-level transcript, real or fallback.
	Transcript transcribe.Transcript `json:"transcript"`

	// Lexical holds the transcript-derived statistics.
	Lexical lexical.Analysis `json:"lexical"`

	// Score is the multimodal score. Always present.
	Score *scoring.Result `json:"score"`

	// Report is the optional narrative. Nil when no writer is configured or
	// the writer failed.
	Report *report.Report `json:"report,omitempty"`

	// Audio holds the measured loudness of the extracted track, when
	// available.
	Audio *media.AudioLevels `json:"audio,omitempty"`

	// StartedAt and Elapsed time the run.
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// SourceOpener opens a video file as a frame source.
type SourceOpener func(path string) (media.Source, error)

// AudioExtractor extracts the audio track of a video into a WAV file and
// returns its path. The caller removes the file when done.
type AudioExtractor func(ctx context.Context, videoPath string) (string, error)

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithReportWriter enables narrative report generation.
func WithReportWriter(w report.Writer) Option {
	return func(p *Pipeline) { p.reporter = w }
}

// WithReportLanguage sets the language the narrative is requested in.
func WithReportLanguage(lang string) Option {
	return func(p *Pipeline) { p.reportLanguage = lang }
}

// WithLexicalAnalyzer overrides the default lexical analyzer.
func WithLexicalAnalyzer(a *lexical.Analyzer) Option {
	return func(p *Pipeline) { p.lexical = a }
}

// WithScoringEngine overrides the default scoring engine.
func WithScoringEngine(e *scoring.Engine) Option {
	return func(p *Pipeline) { p.engine = e }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSourceOpener overrides how video files are opened. Tests use this to
// substitute a mock source.
func WithSourceOpener(open SourceOpener) Option {
	return func(p *Pipeline) { p.openSource = open }
}

// WithAudioExtractor overrides how the audio track is extracted. Tests use
// this to avoid shelling out to ffmpeg.
func WithAudioExtractor(extract AudioExtractor) Option {
	return func(p *Pipeline) { p.extractAudio = extract }
}

// WithTranscribeOptions sets the recognition hints passed to the transcriber.
func WithTranscribeOptions(opts transcribe.Options) Option {
	return func(p *Pipeline) { p.transcribeOpts = opts }
}

// Pipeline orchestrates one full analysis per Analyze call.
type Pipeline struct {
	sampler     *sampler.Sampler
	transcriber transcribe.Transcriber
	lexical     *lexical.Analyzer
	engine      *scoring.Engine
	reporter    report.Writer
	metrics     *observe.Metrics

	openSource     SourceOpener
	extractAudio   AudioExtractor
	transcribeOpts transcribe.Options
	reportLanguage string
}

// New creates a Pipeline over the given sampler and transcriber. By default
// video files are opened with OpenCV, audio is extracted with ffmpeg, and no
// report writer is configured.
func New(s *sampler.Sampler, t transcribe.Transcriber, opts ...Option) *Pipeline {
	p := &Pipeline{
		sampler:     s,
		transcriber: t,
		lexical:     lexical.NewAnalyzer(),
		engine:      scoring.NewEngine(),
		metrics:     observe.DefaultMetrics(),
		openSource: func(path string) (media.Source, error) {
			return media.OpenVideo(path)
		},
		extractAudio: func(ctx context.Context, videoPath string) (string, error) {
			return media.ExtractAudio(ctx, videoPath, media.DefaultAudioFormat)
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Analyze runs the full pipeline over the video at videoPath. onProgress may
// be nil.
//
// Analyze is fatal only when the video cannot be opened or sampling produces
// no frames; transcription and report failures are downgraded as described in
// the package documentation.
func (p *Pipeline) Analyze(ctx context.Context, videoPath string, onProgress ProgressFunc) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "analysis.video")
	defer span.End()
	log := observe.Logger(ctx)

	started := time.Now()
	p.metrics.ActiveAnalyses.Add(ctx, 1)
	defer func() {
		p.metrics.ActiveAnalyses.Add(ctx, -1)
		p.metrics.AnalysisDuration.Record(ctx, time.Since(started).Seconds())
		switch {
		case err == nil:
			p.metrics.RecordAnalysis(ctx, "ok")
		case ctx.Err() != nil:
			p.metrics.RecordAnalysis(ctx, "canceled")
		default:
			p.metrics.RecordAnalysis(ctx, "failed")
		}
	}()

	lastPercent := -1
	emit := func(stage Stage, percent int) {
		if onProgress == nil {
			return
		}
		if percent > lastPercent {
			lastPercent = percent
			onProgress(Progress{Stage: stage, Percent: percent})
		}
	}

	source, err := p.openSource(videoPath)
	if err != nil {
		return nil, fmt.Errorf("analysis: open video: %w", err)
	}
	defer source.Close()

	// Stage 1: landmark sampling. The only fatal stage besides opening.
	samplingStart := time.Now()
	sampling, err := p.sampler.Sample(ctx, source, func(pct int) {
		emit(StageSampling, pct*samplingSpan/100)
	})
	p.metrics.SamplingDuration.Record(ctx, time.Since(samplingStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("analysis: sample %q: %w", videoPath, err)
	}
	p.metrics.FramesSampled.Add(ctx, int64(sampling.FrameCount))
	for modality, count := range sampling.Stats.DetectorErrors {
		for range count {
			p.metrics.RecordDetectorError(ctx, string(modality))
		}
	}
	emit(StageTranscribing, samplingSpan)

	// Stage 2: audio extraction + transcription. Failure downgrades to the
	// tagged fallback transcript so scoring still proceeds.
	transcript, levels, err := p.transcribeVideo(ctx, videoPath, log)
	if err != nil {
		return nil, err
	}
	emit(StageScoring, samplingSpan+transcribingSpan)

	// Stage 3: lexical analysis + scoring. Never fails.
	lex := p.lexical.Analyze(transcript.Words, sampling.Duration)
	var audio *scoring.AudioStats
	if levels != nil {
		audio = &scoring.AudioStats{
			RMS:          levels.RMS,
			Peak:         levels.Peak,
			DynamicRange: levels.DynamicRange,
		}
	}
	score := p.engine.Score(scoring.Input{Sampling: sampling, Lexical: lex, Audio: audio})
	emit(StageReporting, scoringEnd)

	// Stage 4: optional narrative.
	var narrative *report.Report
	if p.reporter != nil {
		narrative = p.writeReport(ctx, score, transcript, log)
		emit(StageDone, reportingEnd)
	}
	emit(StageDone, 100)

	log.Info("analysis complete",
		"video", videoPath,
		"frames", sampling.FrameCount,
		"quality", sampling.Quality.Overall,
		"words", len(transcript.Words),
		"transcript_source", transcript.Source,
		"total_score", score.TotalScore,
		"grade", score.Grade,
	)

	return &Result{
		VideoPath:  videoPath,
		Sampling:   sampling,
		Transcript: transcript,
		Lexical:    lex,
		Score:      score,
		Report:     narrative,
		Audio:      levels,
		StartedAt:  started,
		Elapsed:    time.Since(started),
	}, nil
}

// transcribeVideo extracts the audio track and transcribes it. Every failure
// short of context cancellation yields the fallback transcript; the returned
// error is non-nil only when ctx is done.
func (p *Pipeline) transcribeVideo(ctx context.Context, videoPath string, log *slog.Logger) (transcribe.Transcript, *media.AudioLevels, error) {
	if p.transcriber == nil {
		log.Warn("analysis: no transcriber configured, using fallback transcript")
		return FallbackTranscript(), nil, nil
	}

	audioPath, err := p.extractAudio(ctx, videoPath)
	if err != nil {
		if ctx.Err() != nil {
			return transcribe.Transcript{}, nil, ctx.Err()
		}
		log.Warn("analysis: audio extraction failed, using fallback transcript", "error", err)
		p.metrics.RecordProviderError(ctx, "media", "extract_audio")
		return FallbackTranscript(), nil, nil
	}
	defer os.Remove(audioPath)

	levels, err := media.MeasureAudio(audioPath)
	if err != nil {
		log.Debug("analysis: audio level measurement failed", "error", err)
		levels = nil
	}

	start := time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, audioPath, p.transcribeOpts)
	p.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return transcribe.Transcript{}, nil, ctx.Err()
		}
		log.Warn("analysis: transcription failed, using fallback transcript", "error", err)
		p.metrics.RecordProviderRequest(ctx, "transcriber", "transcribe", "error")
		return FallbackTranscript(), levels, nil
	}
	p.metrics.RecordProviderRequest(ctx, "transcriber", "transcribe", "ok")

	if transcript.Source == "" {
		transcript.Source = transcribe.SourceReal
	}
	return transcript, levels, nil
}

// writeReport requests the optional narrative. Failures are logged and leave
// the report absent.
func (p *Pipeline) writeReport(ctx context.Context, score *scoring.Result, transcript transcribe.Transcript, log *slog.Logger) *report.Report {
	start := time.Now()
	narrative, err := p.reporter.WriteReport(ctx, buildReportRequest(score, transcript, p.reportLanguage))
	p.metrics.ReportDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		log.Warn("analysis: report generation failed, continuing without narrative", "error", err)
		p.metrics.RecordProviderRequest(ctx, "reporter", "report", "error")
		return nil
	}
	p.metrics.RecordProviderRequest(ctx, "reporter", "report", "ok")
	return narrative
}

// FallbackTranscript returns the transcript substituted when transcription
// fails: no words, tagged so downstream consumers can tell it apart from a
// silent recording that was actually transcribed. Scoring falls back to its
// neutral speech defaults on an empty word list.
func FallbackTranscript() transcribe.Transcript {
	return transcribe.Transcript{Source: transcribe.SourceFallback}
}

// excerptWords bounds the transcript excerpt embedded in a report request.
const excerptWords = 120

// buildReportRequest maps a finished score and transcript to the writer's
// request shape.
func buildReportRequest(score *scoring.Result, transcript transcribe.Transcript, language string) report.Request {
	req := report.Request{
		Language:   language,
		TotalScore: score.TotalScore,
		Percentage: score.Percentage,
		Grade:      string(score.Grade),
		Strengths:  score.Strengths,
	}
	for _, c := range score.Categories {
		req.Categories = append(req.Categories, report.CategorySummary{
			Name:     string(c.Category),
			Score:    c.Score,
			MaxScore: c.MaxScore,
			Issues:   c.Issues,
		})
	}
	for _, area := range score.PriorityAreas {
		req.PriorityAreas = append(req.PriorityAreas, string(area))
	}
	if transcript.Source == transcribe.SourceReal {
		req.TranscriptExcerpt = excerpt(transcript.Words, excerptWords)
	}
	return req
}

// excerpt joins the first n words of the transcript.
func excerpt(words []transcribe.Word, n int) string {
	if len(words) == 0 {
		return ""
	}
	if len(words) > n {
		words = words[:n]
	}
	out := make([]byte, 0, len(words)*8)
	for i, w := range words {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, w.Text...)
	}
	return string(out)
}
