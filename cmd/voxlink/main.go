// Command voxlink is the main entry point for the Voxlink voice session server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxlink/internal/config"
	"github.com/MrWong99/voxlink/internal/health"
	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/internal/session"
	"github.com/MrWong99/voxlink/internal/transcript"
	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/audio/ffmpeg"
	"github.com/MrWong99/voxlink/pkg/audio/ffplay"
	"github.com/MrWong99/voxlink/pkg/transport/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxlink: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxlink: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voxlink starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	apiKey := config.APIKey()
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "voxlink: %s is not set\n", config.APIKeyEnv)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxlink",
		ServiceVersion: version,
	})
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
	metrics := observe.DefaultMetrics()

	// ── Playback sink registry ────────────────────────────────────────────────
	reg := config.NewRegistry()
	reg.RegisterSink("ffplay", func(entry config.SinkEntry) (audio.OutputSink, error) {
		return ffplay.New(entry.Format, ffplay.WithLogger(logger))
	})

	sinkName := cfg.Audio.Sink
	newSink := func() (audio.OutputSink, error) {
		return reg.CreateSink(sinkName, config.SinkEntry{Format: audio.PlaybackFormat})
	}

	// ── Transport provider ────────────────────────────────────────────────────
	var providerOpts []gemini.Option
	if cfg.Transport.BaseURL != "" {
		providerOpts = append(providerOpts, gemini.WithBaseURL(cfg.Transport.BaseURL))
	}
	provider := gemini.New(apiKey, providerOpts...)

	// ── Session manager ───────────────────────────────────────────────────────
	manager := session.NewManager(session.ManagerConfig{
		Provider:  provider,
		Opener:    &ffmpeg.Opener{},
		NewSink:   newSink,
		Transport: cfg.SessionConfig(),
		BlockSize: cfg.Audio.BlockSize,
		Metrics:   metrics,
	},
		session.WithLogger(logger),
		session.WithStateFunc(func(s session.State) {
			slog.Info("session state changed", "state", s)
		}),
		session.WithSpeakingFunc(func(on bool) {
			slog.Debug("assistant speaking", "speaking", on)
		}),
		session.WithRecordFunc(func(r transcript.Record) {
			slog.Info("turn completed", "sender", r.Sender, "text", r.Text)
		}),
	)

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TransportChanged || d.AudioChanged {
			slog.Info("session settings changed, they apply to the next session")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Debug HTTP server ─────────────────────────────────────────────────────
	healthHandler := health.New(
		[]health.Checker{
			{Name: "transport", Check: func(context.Context) error {
				if config.APIKey() == "" {
					return fmt.Errorf("%s is not set", config.APIKeyEnv)
				}
				return nil
			}},
			{Name: "capture", Check: func(context.Context) error {
				_, err := exec.LookPath("ffmpeg")
				return err
			}},
			{Name: "audio_sink", Check: func(context.Context) error {
				_, err := exec.LookPath("ffplay")
				return err
			}},
		},
		health.WithInfo(func() map[string]string {
			return map[string]string{
				"session": manager.State().String(),
				"model":   cfg.Transport.Model,
				"voice":   cfg.Transport.Voice,
			}
		}),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	healthHandler.Register(mux)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("debug server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := manager.Start(gctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		slog.Info("session running — press Ctrl+C to shut down")
		<-gctx.Done()
		return manager.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped via -ldflags at release time.
var version = "dev"

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════════╗")
	fmt.Println("║          Voxlink — startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════════╣")
	printRow("Model", orDefault(cfg.Transport.Model, "(provider default)"))
	printRow("Voice", orDefault(cfg.Transport.Voice, "(provider default)"))
	printRow("Capture rate", fmt.Sprintf("%d Hz", cfg.Audio.InputSampleRate))
	printRow("Block size", fmt.Sprintf("%d samples", cfg.Audio.BlockSize))
	printRow("Playback sink", cfg.Audio.Sink)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 25 {
		value = value[:22] + "…"
	}
	fmt.Printf("║  %-13s : %-25s ║\n", label, value)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

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
