// Command classlens is the ClassLens lesson analysis server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/classlens/classlens/internal/analysis"
	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/health"
	"github.com/classlens/classlens/internal/jobs"
	"github.com/classlens/classlens/internal/observe"
	"github.com/classlens/classlens/internal/resilience"
	"github.com/classlens/classlens/internal/sampler"
	"github.com/classlens/classlens/internal/server"
	"github.com/classlens/classlens/pkg/landmark"
	"github.com/classlens/classlens/pkg/landmark/mediapipe"
	"github.com/classlens/classlens/pkg/provider/embeddings"
	ollamaembed "github.com/classlens/classlens/pkg/provider/embeddings/ollama"
	oaembed "github.com/classlens/classlens/pkg/provider/embeddings/openai"
	"github.com/classlens/classlens/pkg/provider/report"
	reportanyllm "github.com/classlens/classlens/pkg/provider/report/anyllm"
	reportoai "github.com/classlens/classlens/pkg/provider/report/openai"
	"github.com/classlens/classlens/pkg/provider/transcribe"
	"github.com/classlens/classlens/pkg/provider/transcribe/whisper"
	"github.com/classlens/classlens/pkg/resultstore"
	pgstore "github.com/classlens/classlens/pkg/resultstore/postgres"
)

// defaultListenAddr is used when server.listen_addr is not configured.
const defaultListenAddr = ":8080"

// defaultEmbeddingDimensions matches OpenAI text-embedding-3-small, the most
// common embeddings configuration.
const defaultEmbeddingDimensions = 1536

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "classlens: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "classlens: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("classlens starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "classlens"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Landmark detectors ────────────────────────────────────────────────────
	var checkers []health.Checker
	var pose landmark.PoseDetector
	var gesture landmark.GestureDetector
	var face landmark.FaceDetector
	if cfg.Detectors.SidecarURL != "" {
		mpOpts := []mediapipe.Option{}
		if cfg.Detectors.Timeout > 0 {
			mpOpts = append(mpOpts, mediapipe.WithHTTPClient(&http.Client{Timeout: cfg.Detectors.Timeout}))
		}
		mp, err := mediapipe.New(cfg.Detectors.SidecarURL, mpOpts...)
		if err != nil {
			slog.Error("failed to create detector client", "err", err)
			return 1
		}
		pose, gesture, face = mp, mp, mp
		checkers = append(checkers, health.Checker{Name: "detectors", Check: mp.Init})
		slog.Info("detector sidecar configured", "url", cfg.Detectors.SidecarURL)
	} else {
		noop := landmark.Noop{}
		pose, gesture, face = noop, noop, noop
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	samp := sampler.New(pose, gesture, face)

	pipelineOpts := []analysis.Option{
		analysis.WithMetrics(metrics),
		analysis.WithTranscribeOptions(transcribe.Options{
			Language:      cfg.Analysis.Language,
			ChunkDuration: cfg.Analysis.ChunkDuration,
		}),
	}
	if providers.Report != nil {
		resilient := resilience.NewReportFallback(providers.Report, cfg.Providers.Report.Name, resilience.FallbackConfig{})
		pipelineOpts = append(pipelineOpts, analysis.WithReportWriter(resilient))
	}
	if cfg.Analysis.ReportLanguage != "" {
		pipelineOpts = append(pipelineOpts, analysis.WithReportLanguage(cfg.Analysis.ReportLanguage))
	}
	transcriber := providers.Transcriber
	if transcriber != nil {
		// A breaker around the STT backend keeps a dead whisper server from
		// stalling every analysis with full retry rounds.
		transcriber = resilience.NewTranscribeFallback(transcriber, cfg.Providers.Transcriber.Name, resilience.FallbackConfig{})
	}
	pipeline := analysis.New(samp, transcriber, pipelineOpts...)

	// ── Result store ──────────────────────────────────────────────────────────
	var store resultstore.Store
	if cfg.Storage.PostgresDSN != "" {
		dims := cfg.Storage.EmbeddingDimensions
		if dims <= 0 && providers.Embeddings != nil {
			dims = providers.Embeddings.Dimensions()
		}
		if dims <= 0 {
			dims = defaultEmbeddingDimensions
		}
		pg, err := pgstore.NewStore(ctx, cfg.Storage.PostgresDSN, dims)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		store = pg
		slog.Info("postgres result store ready", "embedding_dimensions", dims)
	} else {
		store = resultstore.NewMemStore()
		slog.Info("using in-memory result store; history is lost on restart")
	}
	defer store.Close()

	// ── Jobs ──────────────────────────────────────────────────────────────────
	hub := server.NewHub()
	handler := jobs.NewAnalyzeHandler(pipeline,
		jobs.WithStore(store),
		jobs.WithEmbedder(providers.Embeddings),
		jobs.WithNotifier(hub),
	)

	var enqueuer server.Enqueuer
	if cfg.Jobs.RedisAddr != "" {
		queue := jobs.NewQueue(cfg.Jobs.RedisAddr, cfg.Jobs.Concurrency, cfg.Jobs.Queue)
		jobs.RegisterHandlers(queue, handler)
		if err := queue.Start(); err != nil {
			slog.Error("failed to start job queue", "err", err)
			return 1
		}
		defer queue.Stop()
		enqueuer = queue
		slog.Info("redis job queue ready", "addr", cfg.Jobs.RedisAddr, "queue", queue.Name())
	} else {
		inline := jobs.NewInline(handler, cfg.Jobs.Concurrency)
		defer inline.Stop()
		enqueuer = inline
		slog.Info("running analyses in-process; configure jobs.redis_addr for a worker queue")
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}
	serverOpts := []server.Option{
		server.WithStore(store),
		server.WithHub(hub),
		server.WithMetrics(metrics),
		server.WithHealthCheckers(checkers...),
	}
	if cfg.Server.TLS != nil {
		serverOpts = append(serverOpts, server.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	srv := server.New(listenAddr, enqueuer, serverOpts...)

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ProvidersChanged || d.AnalysisChanged {
			slog.Warn("provider or analysis configuration changed; restart to apply")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, listenAddr)

	// ── Serve ─────────────────────────────────────────────────────────────────
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
		return 0
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providers bundles the optional backends built from configuration.
type providers struct {
	Transcriber transcribe.Transcriber
	Report      report.Writer
	Embeddings  embeddings.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transcribers ──────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Report writers ────────────────────────────────────────────────────────
	// openai uses the dedicated SDK-backed writer; the remaining names share
	// the any-llm pattern: optional APIKey + optional BaseURL.

	reg.RegisterReport("openai", func(entry config.ProviderEntry) (report.Writer, error) {
		var opts []reportoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, reportoai.WithBaseURL(entry.BaseURL))
		}
		return reportoai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "ollama", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterReport(providerName, func(entry config.ProviderEntry) (report.Writer, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return reportanyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates all providers named in cfg using the registry.
// A provider name that is valid but not registered is skipped with a debug
// log, matching the config package's lenient validation.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	ps := &providers{}

	if name := cfg.Providers.Transcriber.Name; name != "" {
		p, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "slot", "transcriber", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create transcriber %q: %w", name, err)
		} else {
			ps.Transcriber = p
			slog.Info("provider created", "slot", "transcriber", "name", name)
		}
	}

	if name := cfg.Providers.Report.Name; name != "" {
		p, err := reg.CreateReport(cfg.Providers.Report)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "slot", "report", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create report writer %q: %w", name, err)
		} else {
			ps.Report = p
			slog.Info("provider created", "slot", "report", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "slot", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "slot", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        ClassLens — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printSlot("Transcriber", cfg.Providers.Transcriber.Name, cfg.Providers.Transcriber.Model)
	printSlot("Report", cfg.Providers.Report.Name, cfg.Providers.Report.Model)
	printSlot("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printSlot("Detectors", cfg.Detectors.SidecarURL, "")
	if cfg.Storage.PostgresDSN != "" {
		printSlot("Storage", "postgres", "")
	} else {
		printSlot("Storage", "in-memory", "")
	}
	if cfg.Jobs.RedisAddr != "" {
		printSlot("Jobs", "redis", "")
	} else {
		printSlot("Jobs", "in-process", "")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printSlot(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
