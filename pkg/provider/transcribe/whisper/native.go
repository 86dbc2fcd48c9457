// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/classlens/classlens/pkg/provider/transcribe"
)

// Compile-time assertion that NativeProvider satisfies transcribe.Transcriber.
var _ transcribe.Transcriber = (*NativeProvider)(nil)

// NativeProvider implements transcribe.Transcriber using whisper.cpp Go
// bindings (CGO). The model is loaded once at startup; each Transcribe call
// creates its own whisper context, so concurrent calls do not interfere.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default BCP-47 language code for transcription
// (e.g., "en", "ru"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe reads the WAV file at audioPath and runs whisper.cpp inference
// with token-level timestamps, mapping each token run to a transcribe.Word.
func (p *NativeProvider) Transcribe(ctx context.Context, audioPath string, opts transcribe.Options) (transcribe.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return transcribe.Transcript{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	audio, err := readWAV(audioPath)
	if err != nil {
		return transcribe.Transcript{}, err
	}
	samples := pcmToFloat32Mono(audio.data, audio.channels)

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	// Each whisper context is NOT thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return transcribe.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return transcribe.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	result := transcribe.Transcript{Source: transcribe.SourceReal, Language: lang}
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return transcribe.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		result.Words = append(result.Words, segmentWords(segment, lang)...)
	}

	return result, nil
}

// segmentWords converts one whisper segment into word-level results. Tokens
// carrying leading whitespace begin a new word; continuation tokens extend
// the current one. Special tokens ("[_BEG_]" and friends) are skipped.
func segmentWords(seg whisperlib.Segment, lang string) []transcribe.Word {
	var words []transcribe.Word
	var cur *transcribe.Word
	var probSum float64
	var probN int

	flush := func() {
		if cur == nil {
			return
		}
		if probN > 0 {
			cur.Confidence = probSum / float64(probN)
		}
		cur.Text = strings.TrimSpace(cur.Text)
		if cur.Text != "" {
			words = append(words, *cur)
		}
		cur = nil
		probSum, probN = 0, 0
	}

	for _, tok := range seg.Tokens {
		if strings.HasPrefix(tok.Text, "[_") {
			continue
		}
		startsWord := strings.HasPrefix(tok.Text, " ") || cur == nil
		if startsWord {
			flush()
			cur = &transcribe.Word{
				Text:     tok.Text,
				Start:    tokenTime(tok.Start, seg.Start),
				End:      tokenTime(tok.End, seg.End),
				Language: lang,
			}
		} else {
			cur.Text += tok.Text
			cur.End = tokenTime(tok.End, seg.End)
		}
		probSum += float64(tok.P)
		probN++
	}
	flush()
	return words
}

// tokenTime prefers the token's own timestamp and falls back to the segment
// boundary when token timestamps are unavailable (zero).
func tokenTime(tokTime, segTime time.Duration) time.Duration {
	if tokTime > 0 {
		return tokTime
	}
	return segTime
}
