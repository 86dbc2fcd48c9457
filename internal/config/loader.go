package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider slot.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"whisper", "whisper-native"},
	"report":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings":  {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Detectors
	if cfg.Detectors.SidecarURL == "" {
		slog.Warn("detectors.sidecar_url is empty; analyses will see no landmark detections")
	} else if !strings.HasPrefix(cfg.Detectors.SidecarURL, "http://") && !strings.HasPrefix(cfg.Detectors.SidecarURL, "https://") {
		errs = append(errs, fmt.Errorf("detectors.sidecar_url %q must be an http(s) URL", cfg.Detectors.SidecarURL))
	}
	if cfg.Detectors.Timeout < 0 {
		errs = append(errs, fmt.Errorf("detectors.timeout %s must not be negative", cfg.Detectors.Timeout))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("report", cfg.Providers.Report.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("no transcriber configured; analyses will score against the fallback transcript")
	}
	if cfg.Providers.Transcriber.Name == "whisper-native" && cfg.Providers.Transcriber.Model == "" {
		errs = append(errs, errors.New("providers.transcriber.model (ggml model path) is required for whisper-native"))
	}

	// Analysis
	if cfg.Analysis.ChunkDuration < 0 {
		errs = append(errs, fmt.Errorf("analysis.chunk_duration %s must not be negative", cfg.Analysis.ChunkDuration))
	}

	// Embeddings ↔ storage dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but storage.postgres_dsn is empty; embeddings will not be persisted")
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; analysis results will not be persisted")
	}

	// Jobs
	if cfg.Jobs.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("jobs.concurrency %d must not be negative", cfg.Jobs.Concurrency))
	}
	if cfg.Jobs.Queue != "" && cfg.Jobs.RedisAddr == "" {
		errs = append(errs, errors.New("jobs.queue is set but jobs.redis_addr is empty"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given slot.
func validateProviderName(slot, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[slot]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"slot", slot,
		"name", name,
		"known", known,
	)
}
