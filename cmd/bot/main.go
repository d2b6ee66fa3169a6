package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	sofia "github.com/set-night/sofia"
	"github.com/set-night/sofia/internal/attachment"
	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/domain"
	"github.com/set-night/sofia/internal/engine"
	"github.com/set-night/sofia/internal/handler"
	"github.com/set-night/sofia/internal/middleware"
	"github.com/set-night/sofia/internal/remote"
	"github.com/set-night/sofia/internal/repository"
	"github.com/set-night/sofia/internal/speech"
	"github.com/set-night/sofia/internal/task"
	"github.com/set-night/sofia/internal/telegram"
	"github.com/set-night/sofia/internal/usage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(sofia.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	bindings := repository.NewBindingRepo(pool)
	limiter := repository.NewRateLimiter(pool)

	// Every chat talks to the same backend account.
	client := remote.NewClient(cfg.BaseURL, cfg.SessionCookie)
	runner := task.NewRunner(config.BackgroundTimeout)
	governor := usage.NewGovernor(domain.UsageLimits{
		MessageLimit:   cfg.MessageLimit,
		WebSearchLimit: cfg.WebSearchLimit,
	}, client, runner)

	// The speech factory sends synthesized replies through b, which is set
	// before the first update arrives.
	var b *bot.Bot
	var speechFactory engine.SpeechFactory
	if cfg.VoiceEnabled() {
		stt := speech.NewCommandTranscriber(speech.NewCommand(cfg.STTCommand, cfg.SpeechLanguage, config.TranscribeTimeout))
		tts := speech.NewCommandSynthesizer(speech.NewCommand(cfg.TTSCommand, cfg.SpeechLanguage, config.SynthesizeTimeout))
		speechFactory = func(chatID int64) *engine.Speech {
			rec := speech.NewNoteRecognizer(stt)
			syn := speech.NewNoteSynthesizer(tts, func(ctx context.Context, audio []byte) error {
				return telegram.SendVoice(ctx, b, chatID, audio)
			})
			return &engine.Speech{Recognizer: rec, Synthesizer: syn, Submit: rec.Submit}
		}
		slog.Info("speech enabled", "language", cfg.SpeechLanguage)
	}

	registry := engine.NewRegistry(engine.Deps{
		Backend:  client,
		Governor: governor,
		Tasks:    runner,
		Limits: attachment.Limits{
			MaxTotalBytes: cfg.AttachmentMaxTotalBytes,
			MaxFileBytes:  cfg.AttachmentMaxFileBytes,
			DecodeTimeout: config.AttachmentDecodeTimeout,
		},
		RestoreOnFailure: cfg.RestoreAttachmentsOnFailure,
	}, bindings, speechFactory)

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(),
			middleware.Logging(),
			middleware.Access(cfg),
			middleware.RateLimit(limiter, config.RateLimitPerMinute),
			middleware.EngineLoader(registry),
		),
	}

	b, err = bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}

	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("failed to drop pending updates", "error", err)
		}
	}

	// Initialize telegram logger
	tgLogger := telegram.NewTelegramLogger(b, cfg)

	// Initialize handler
	h := handler.New(handler.Deps{
		Bot:      b,
		Cfg:      cfg,
		Registry: registry,
		TgLogger: tgLogger,
	})
	registry.Configure = h.ConfigureEngine

	// Register all handlers
	h.Register()

	// Start stale rate-limit window cleanup goroutine
	go func() {
		ticker := time.NewTicker(config.RateLimitCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := limiter.Cleanup(context.Background(), config.RateLimitWindowRetention)
				if err != nil {
					slog.Error("cleanup rate limits", "error", err)
					continue
				}
				slog.Debug("rate limit windows cleaned", "deleted", n)
			}
		}
	}()

	// Start bot
	slog.Info("starting bot", "username", me.Username, "id", me.ID, "allowed_users", cfg.AllowedUserIDsString())
	b.Start(ctx)

	// Graceful shutdown
	registry.Close()
	runner.Wait()
	slog.Info("bot stopped gracefully")
}
