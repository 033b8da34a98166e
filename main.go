// Command speedbot is the main entrypoint for the speedrun.com chat bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Joins the configured Twitch channels and dispatches chat commands.
//   - Runs the rate-limited cache refresh scheduler.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/speedbot/chatbot"
	"github.com/onnwee/speedbot/config"
	"github.com/onnwee/speedbot/db"
	"github.com/onnwee/speedbot/server"
	"github.com/onnwee/speedbot/speedrun"
	"github.com/onnwee/speedbot/srcapi"
	"github.com/onnwee/speedbot/telemetry"
	"github.com/onnwee/speedbot/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("speedbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := speedrun.NewStore()
	api := srcapi.NewClient(cfg.APIBaseURL, cfg.UserAgent, cfg.HTTPTimeout)
	svc := speedrun.NewService(store, api, database, cfg)

	// Every configured channel gets the feature out of the box; per-channel
	// opt-out happens directly in the chat_features table.
	for _, channel := range cfg.TwitchChannels {
		if err := svc.EnableFeature(ctx, channel, speedrun.FeatureSpeedrun); err != nil {
			slog.Error("failed to enable channel feature",
				slog.String("channel", channel), slog.Any("err", err))
			os.Exit(1)
		}
	}

	var helix *twitchapi.HelixClient
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		tokenSource := &twitchapi.TokenSource{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
		}
		tctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if _, err := tokenSource.Get(tctx); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		}
		cancel()
		helix = &twitchapi.HelixClient{
			AppTokenSource: tokenSource,
			ClientID:       cfg.TwitchClientID,
		}
	} else {
		slog.Info("helix credentials not set; live-status polling disabled")
	}

	bot := chatbot.New(cfg, svc, helix)
	scheduler := speedrun.NewScheduler(svc, bot.ChannelStates)

	go scheduler.Run(ctx)
	go func() {
		handlers := &server.Handlers{
			DB:         database,
			Store:      store,
			CallWindow: scheduler.WindowOccupancy,
		}
		if err := server.Start(ctx, handlers, cfg.Addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("joining twitch chat",
		slog.Any("channels", cfg.TwitchChannels),
		slog.String("bot", cfg.TwitchBotUsername))
	if err := bot.Run(ctx); err != nil {
		slog.Error("twitch chat connection failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}
