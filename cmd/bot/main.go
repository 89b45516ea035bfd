package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	companionroot "github.com/set-night/companionbot"
	"github.com/set-night/companionbot/internal/companion"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/handler"
	"github.com/set-night/companionbot/internal/middleware"
	"github.com/set-night/companionbot/internal/repository"
	"github.com/set-night/companionbot/internal/service"
	"github.com/set-night/companionbot/internal/telegram"
)

// reporterFunc adapts a function to middleware.PanicReporter.
type reporterFunc func(err error, where string)

func (f reporterFunc) LogError(err error, where string) { f(err, where) }

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

	kv, cleanup, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer cleanup()
	state := repository.NewStateStore(kv)

	backend := companion.New(cfg.BackendURL, cfg.BackendTimeout)
	if err := backend.Health(ctx); err != nil {
		slog.Warn("companion backend is not healthy yet", "url", cfg.BackendURL, "error", err)
	}

	presence := service.NewPresence(cfg.FocusWindow)

	// Handler and ops logger pointers for use in middleware closures
	var (
		h         *handler.Handler
		opsLogger *telegram.OpsLogger
	)

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(reporterFunc(func(err error, where string) { opsLogger.LogError(err, where) })),
			middleware.Logging(),
			middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimitPerMinute)),
			middleware.OwnerLoader(presence, func(ctx context.Context, owner *middleware.Owner) {
				if h != nil {
					h.OnFirstSeen(ctx, owner)
				}
			}),
		),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if h == nil {
				return
			}
			h.HandleDefault(ctx, b, update)
		}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
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

	opsLogger = telegram.NewOpsLogger(b, cfg)
	notifications := telegram.NewNotifications(b, cfg.NotificationTTL)
	defer notifications.Close()

	// Initialize services
	view := service.NewViewService()
	prefs := service.NewPreferenceService(state, domain.DefaultPreferences(config.DefaultTemperature))
	conversations := service.NewConversationService(state)
	registry := service.NewRegistryService(backend, state, prefs, view,
		service.NewPersonalityCache(config.BuiltinCacheDuration), cfg.DefaultPersonality)
	notifier := service.NewNotifier(prefs, presence, notifications)
	chat := service.NewChatService(backend, conversations, registry, prefs, view, notifier)
	scheduler := service.NewScheduler(backend, conversations, registry, prefs, view, notifier, cfg.ProactiveInterval)
	defer scheduler.Stop()

	warmCtx, cancelWarm := context.WithTimeout(ctx, config.WarmupTimeout)
	if err := registry.Warm(warmCtx); err != nil {
		slog.Warn("failed to warm personality registry", "error", err)
	}
	cancelWarm()

	// Initialize handler
	h = handler.New(handler.Deps{
		Bot:           b,
		Cfg:           cfg,
		Registry:      registry,
		Conversations: conversations,
		Chat:          chat,
		Scheduler:     scheduler,
		Notifier:      notifier,
		Prefs:         prefs,
		View:          view,
		Avatars:       service.NewAvatarService(config.MaxAvatarBytes),
		OpsLogger:     opsLogger,
	})
	scheduler.SetSink(h)

	// Register all handlers
	h.Register()

	// Start bot
	slog.Info("starting bot", "username", me.Username, "id", me.ID, "storage", cfg.StorageDriver)
	b.Start(ctx)

	// Graceful shutdown
	slog.Info("bot stopped gracefully")
}

// openStorage opens the configured key-value driver. The returned cleanup
// closes it together with anything it owns.
func openStorage(ctx context.Context, cfg *config.Config) (repository.KV, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		kv, err := repository.NewSQLiteKV(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { _ = kv.Close() }, nil

	case config.DriverMemory:
		slog.Warn("using in-memory storage, state is lost on restart")
		kv := repository.NewMemoryKV()
		return kv, func() { _ = kv.Close() }, nil
	}

	schema, err := fs.Sub(companionroot.MigrationsFS, "migrations")
	if err != nil {
		return nil, nil, err
	}
	kv, closeKV, err := repository.OpenPostgresKV(ctx, cfg.DatabaseURL, schema)
	if err != nil {
		return nil, nil, err
	}
	return kv, closeKV, nil
}
