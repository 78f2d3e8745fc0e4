// Command natuvoice is the kiosk voice assistant backend: it serves voice
// turns, text chat and speech synthesis over HTTP.
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

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/natuvoice/internal/answer"
	"github.com/MrWong99/natuvoice/internal/config"
	"github.com/MrWong99/natuvoice/internal/health"
	"github.com/MrWong99/natuvoice/internal/kiosk"
	"github.com/MrWong99/natuvoice/internal/knowledge/postgres"
	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/internal/pipeline"
	"github.com/MrWong99/natuvoice/internal/ratelimit"
	"github.com/MrWong99/natuvoice/internal/server"
	"github.com/MrWong99/natuvoice/pkg/provider/embeddings"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional; environment variables override it)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "natuvoice: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "natuvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))

	slog.Info("natuvoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Voice pipeline ────────────────────────────────────────────────────────
	// A pipeline that cannot be built is reported on every voice request and
	// by /readyz; chat keeps working.
	voice := pipeline.Build(ctx, cfg, reg, pipeline.WithMetrics(metrics))
	defer voice.Close()
	if !voice.Ready() {
		slog.Error("voice pipeline unavailable", "err", voice.Reason())
	}
	checkers := []health.Checker{health.Static("voice_pipeline", voice.Reason)}

	// ── Answer service ────────────────────────────────────────────────────────
	answerer, store, err := buildAnswerer(ctx, cfg, reg)
	if err != nil {
		slog.Error("answer service unavailable", "err", err)
		answerErr := err
		checkers = append(checkers, health.Checker{
			Name:     "answer",
			Check:    func(context.Context) error { return answerErr },
			Optional: true,
		})
	}
	if store != nil {
		defer store.Close()
		checkers = append(checkers, health.Ping("knowledge_db", store, true))
	}

	// ── Kiosk registry ────────────────────────────────────────────────────────
	watcher, err := kiosk.NewWatcher(cfg.Kiosk.RegistryFile)
	if err != nil {
		slog.Error("failed to load kiosk registry", "path", cfg.Kiosk.RegistryFile, "err", err)
		return 1
	}
	defer watcher.Stop()
	if cfg.Kiosk.AuthRequired() && watcher.Current().Len() == 0 {
		slog.Warn("kiosk auth is required but the registry is empty; all protected requests will be rejected",
			"path", cfg.Kiosk.RegistryFile)
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	deps := server.Deps{
		Config:         cfg,
		Voice:          voice,
		Auth:           kiosk.NewAuthenticator(watcher, cfg.Kiosk.AuthRequired()),
		Limiter:        ratelimit.New(cfg.RateLimit.RPM, time.Duration(cfg.RateLimit.WindowSec)*time.Second, ratelimit.WithMetrics(metrics)),
		Metrics:        metrics,
		MetricsHandler: tel.MetricsHandler(),
		Checkers:       checkers,
	}
	if answerer != nil {
		deps.Answerer = answerer
	}
	srv, err := server.New(deps)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	printStartupSummary(cfg, voice, answerer)

	// ── Run until signalled ───────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildAnswerer creates the answer service and, when a database is
// configured, the knowledge store backing it. A store that cannot be opened
// leaves the service answering without evidence.
func buildAnswerer(ctx context.Context, cfg *config.Config, reg *config.Registry) (*answer.Service, *postgres.Store, error) {
	if cfg.Answer.LLM.Name == "" {
		return nil, nil, errors.New("answer.llm is not configured")
	}
	model, err := reg.CreateLLM(cfg.Answer.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("create llm provider %q: %w", cfg.Answer.LLM.Name, err)
	}

	opts := []answer.Option{
		answer.WithBotName(cfg.Answer.BotName),
		answer.WithEmptyReply(cfg.Answer.EmptyReply),
		answer.WithTopK(cfg.Answer.DefaultTopK, cfg.Answer.MaxTopK),
		answer.WithGeneration(cfg.Answer.Temperature, cfg.Answer.MaxTokens),
	}

	var store *postgres.Store
	if cfg.Database.URL != "" {
		emb, err := createEmbeddings(cfg, reg)
		if err != nil {
			slog.Error("embeddings unavailable, answering without evidence", "err", err)
		} else {
			var storeOpts []postgres.Option
			if dims := emb.Dimensions(); dims > 0 {
				storeOpts = append(storeOpts, postgres.WithMigration(dims))
			}
			store, err = postgres.NewStore(ctx, cfg.Database.URL, cfg.Database.Table, storeOpts...)
			if err != nil {
				slog.Error("knowledge store unavailable, answering without evidence", "err", err)
				store = nil
			} else {
				opts = append(opts, answer.WithRetrieval(emb, store))
				slog.Info("knowledge store connected", "table", cfg.Database.Table, "embeddings", emb.ModelID())
			}
		}
	}

	svc, err := answer.New(model, opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}
	return svc, store, nil
}

func createEmbeddings(cfg *config.Config, reg *config.Registry) (embeddings.Provider, error) {
	if cfg.Answer.Embeddings.Name == "" {
		return nil, errors.New("answer.embeddings is not configured")
	}
	emb, err := reg.CreateEmbeddings(cfg.Answer.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", cfg.Answer.Embeddings.Name, err)
	}
	return emb, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, voice *pipeline.Availability, answerer *answer.Service) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        natuvoice: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT mode", string(cfg.STT.Mode))
	printProvider("STT cloud", cfg.STT.Cloud.Name, cfg.STT.Cloud.Model)
	printProvider("STT local", cfg.STT.Local.Name, cfg.STT.Local.Model)
	printRow("TTS mode", string(cfg.TTS.Mode))
	printProvider("TTS", cfg.TTS.Active().Name, cfg.TTS.Active().Model)
	printProvider("LLM", cfg.Answer.LLM.Name, cfg.Answer.LLM.Model)
	printProvider("Embeddings", cfg.Answer.Embeddings.Name, cfg.Answer.Embeddings.Model)
	printRow("VAD", onOff(cfg.VAD.IsEnabled()))
	printRow("Voice pipeline", readiness(voice.Ready()))
	printRow("Answers", readiness(answerer != nil))
	printRow("Retrieval", onOff(answerer != nil && answerer.Retrieval()))
	printRow("Kiosk auth", onOff(cfg.Kiosk.AuthRequired()))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func readiness(b bool) string {
	if b {
		return "ready"
	}
	return "unavailable"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
