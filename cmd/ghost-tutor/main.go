package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/sjawhar/ghost-tutor/internal/audio"
	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/config"
	"github.com/sjawhar/ghost-tutor/internal/gdrive"
	"github.com/sjawhar/ghost-tutor/internal/llm"
	"github.com/sjawhar/ghost-tutor/internal/server"
	"github.com/sjawhar/ghost-tutor/internal/session"
	"github.com/sjawhar/ghost-tutor/internal/storage"
	"github.com/sjawhar/ghost-tutor/internal/tutor"
	"github.com/sjawhar/ghost-tutor/internal/voice"
)

//go:embed static/*
var staticFiles embed.FS

const recapMaxTokens = 1024

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if flags.WroteHelp(err) {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, warnings, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	opts.apply(&cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn("config warning", "warning", w)
	}

	if err := run(cfg, warnings, logger); err != nil {
		logger.Error("ghost-tutor failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, warnings []string, logger *slog.Logger) error {
	logger.Info("ghost-tutor: starting", "config_addr", cfg.Addr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := seedCompanions(ctx, store, cfg.Companions, logger); err != nil {
		logger.Warn("seeding companions failed", "error", err)
	}

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("static assets init: %w", err)
	}

	terminate, err := audio.Init()
	if err != nil {
		logger.Warn("audio unavailable, calls cannot start", "error", err)
	}
	defer terminate()
	voice.Init()

	hub := server.NewHub()
	voiceClient := voice.New(voice.Options{
		APIKey:          cfg.DeepgramAPIKey,
		Model:           cfg.Voice.Model,
		Language:        cfg.Voice.Language,
		SampleRate:      cfg.Voice.SampleRate,
		FramesPerBuffer: cfg.Voice.FramesPerBuffer,
		NewReplier:      newReplierFactory(cfg, logger),
		Recorder:        audio.NewRecorder(cfg.RecordingsDir),
		Logger:          logger,
	})

	writer := storage.NewWriter(cfg.TranscriptDir)
	managerOpts := session.Options{
		Store:       store,
		Exporter:    writer,
		Hub:         hub,
		Voice:       voiceClient,
		Devices:     audio.NewProber(),
		Logger:      logger,
		IdleTimeout: cfg.ParsedIdleTimeout(),
	}
	if client, err := newLLMClient(cfg, cfg.RecapModel(), recapMaxTokens); err != nil {
		logger.Warn("call recaps disabled", "error", err)
	} else {
		managerOpts.Recapper = tutor.NewRecapper(client, store)
	}
	manager := session.NewManager(managerOpts)

	handler := server.Handler(server.Deps{
		Static:   assets,
		Hub:      hub,
		Calls:    manager,
		Store:    store,
		User:     session.User{Name: cfg.User.Name, Avatar: cfg.User.Avatar},
		Warnings: func() []string { return warnings },
		Logger:   logger,
	})

	httpServer := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if cfg.GDrive.FolderID != "" {
		syncer, err := gdrive.NewSyncer(ctx, cfg.GDrive.CredentialsFile, cfg.GDrive.FolderID, logger)
		if err != nil {
			logger.Warn("gdrive sync disabled", "error", err)
		} else {
			go syncer.Run(ctx, cfg.ParsedSyncInterval(), writer.PathFor)
		}
	}

	logger.Info("ghost-tutor: web UI ready", "addr", cfg.Addr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("http server failed", "error", err)
	}

	logger.Info("ghost-tutor: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("session shutdown incomplete", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	return nil
}

func newLLMClient(cfg config.Config, model string, maxTokens int) (llm.Client, error) {
	provider, name, err := llm.ParseModel(model)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(provider, cfg.APIKeyFor(provider), name, llm.WithMaxTokens(maxTokens))
}

// newReplierFactory returns nil when no tutor model is usable; calls then
// transcribe the learner without companion replies.
func newReplierFactory(cfg config.Config, logger *slog.Logger) func(call.SessionParameters, call.Overrides) voice.Replier {
	client, err := newLLMClient(cfg, cfg.Tutor.Model, cfg.Tutor.MaxTokens)
	if err != nil {
		logger.Warn("tutor replies disabled", "error", err)
		return nil
	}
	return func(params call.SessionParameters, ov call.Overrides) voice.Replier {
		return tutor.New(client, params, ov)
	}
}

type companionSeeder interface {
	ListCompanions(ctx context.Context, subject string) ([]storage.Companion, error)
	CreateCompanion(ctx context.Context, c storage.Companion) (storage.Companion, error)
}

// seedCompanions fills an empty library from the config file.
func seedCompanions(ctx context.Context, store companionSeeder, seeds []config.Companion, logger *slog.Logger) error {
	if len(seeds) == 0 {
		return nil
	}
	existing, err := store.ListCompanions(ctx, "")
	if err != nil {
		return fmt.Errorf("list companions: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	var errs []error
	for _, s := range seeds {
		if s.Name == "" || s.Subject == "" || s.Topic == "" {
			continue
		}
		c, err := store.CreateCompanion(ctx, storage.Companion{
			Name:            s.Name,
			Subject:         s.Subject,
			Topic:           s.Topic,
			Voice:           s.Voice,
			Style:           s.Style,
			DurationMinutes: s.DurationMinutes,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("seeded companion", "id", c.ID, "name", c.Name, "subject", c.Subject)
	}
	return errors.Join(errs...)
}
