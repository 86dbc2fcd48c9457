// Package whisper provides whisper.cpp-backed implementations of the
// transcribe.Transcriber interface.
//
// Two variants are available:
//
//   - Provider: connects to a running whisper-server binary (REST API at
//     POST /inference). Long recordings are split into fixed-size chunks and
//     submitted sequentially; per-chunk word timestamps are offset by the
//     chunk start so the caller always sees recording-relative times.
//   - NativeProvider (native.go): uses the whisper.cpp CGO bindings directly,
//     eliminating HTTP overhead. Requires libwhisper.a at link time.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	transcript, err := p.Transcribe(ctx, "lesson.wav", transcribe.Options{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/classlens/classlens/pkg/provider/transcribe"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	defaultLanguage      = "en"
	defaultChunkDuration = 5 * time.Minute
	defaultHTTPTimeout   = 5 * time.Minute
)

// Compile-time assertion that Provider implements transcribe.Transcriber.
var _ transcribe.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code sent to the server
// (e.g., "en", "ru"). Overridden per call by Options.Language. Defaults to
// "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithChunkDuration sets the default chunk size for long recordings.
// Overridden per call by Options.ChunkDuration. Defaults to 5 minutes.
func WithChunkDuration(d time.Duration) Option {
	return func(p *Provider) {
		p.chunkDuration = d
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements transcribe.Transcriber backed by a whisper-server
// HTTP endpoint. Safe for concurrent use; each Transcribe call is
// self-contained.
type Provider struct {
	serverURL     string
	model         string
	language      string
	chunkDuration time.Duration
	httpClient    *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:     serverURL,
		language:      defaultLanguage,
		chunkDuration: defaultChunkDuration,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe reads the WAV file at audioPath, splits it into chunks, submits
// each chunk to the whisper-server, and merges the per-word results with
// chunk-offset timestamps.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts transcribe.Options) (transcribe.Transcript, error) {
	audio, err := readWAV(audioPath)
	if err != nil {
		return transcribe.Transcript{}, err
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	chunkDur := opts.ChunkDuration
	if chunkDur <= 0 {
		chunkDur = p.chunkDuration
	}

	result := transcribe.Transcript{Source: transcribe.SourceReal}

	for _, chunk := range audio.split(chunkDur) {
		words, detected, err := p.infer(ctx, chunk.wav(), lang)
		if err != nil {
			return transcribe.Transcript{}, err
		}
		// Prefer the language the server detected in the first chunk that
		// reports one over the requested default.
		if result.Language == "" {
			result.Language = detected
		}
		// Offset chunk-relative word times to recording-relative times.
		for _, w := range words {
			w.Start += chunk.offset
			w.End += chunk.offset
			result.Words = append(result.Words, w)
		}
	}
	if result.Language == "" {
		result.Language = lang
	}

	return result, nil
}

// inferenceResponse mirrors the verbose JSON body returned by whisper-server
// when word-level timestamps are requested.
type inferenceResponse struct {
	Language string `json:"language"`
	Segments []struct {
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// infer POSTs a WAV payload to the /inference endpoint as multipart form data
// and parses the word-level response.
func (p *Provider) infer(ctx context.Context, wav []byte, language string) ([]transcribe.Word, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"word_timestamps": "true",
	}
	if language != "" {
		fields["language"] = language
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	var words []transcribe.Word
	for _, seg := range parsed.Segments {
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			words = append(words, transcribe.Word{
				Text:       text,
				Start:      time.Duration(w.Start * float64(time.Second)),
				End:        time.Duration(w.End * float64(time.Second)),
				Confidence: w.Probability,
				Language:   parsed.Language,
			})
		}
	}
	return words, parsed.Language, nil
}
