// Command thawbot keeps chat rooms from being auto-frozen. On each run it
// walks every configured room's transcript backward to find the latest
// genuine activity, posts a short thawing notice into rooms that have been
// quiet too long, and narrates results into the configured home room.
//
// The default mode is a single scan and exit (the nightly-job shape). With
// a scan interval configured it runs as a daemon exposing /healthz,
// /status, and /metrics. Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/thawbot/thawbot/activity"
	"github.com/thawbot/thawbot/chat"
	"github.com/thawbot/thawbot/config"
	"github.com/thawbot/thawbot/db"
	"github.com/thawbot/thawbot/monitor"
	"github.com/thawbot/thawbot/server"
	"github.com/thawbot/thawbot/telemetry"
	"github.com/thawbot/thawbot/transcript"
)

func main() {
	// .env is a local-dev convenience only; production relies on real env.
	_ = godotenv.Load()

	initLogging()

	path := os.Getenv("THAWBOT_CONFIG")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		path = "thawbot.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load failed", slog.String("path", path), slog.Any("err", err))
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.InitTracing("thawbot", transcript.Version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var database *sql.DB
	if cfg.DBDSN != "" {
		database, err = db.Connect(cfg.DBDSN)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	client := transcript.NewClient()
	client.MaxAttempts = cfg.MaxAttempts
	client.PageDelay = cfg.PageDelay
	client.SearchDelay = cfg.SearchDelay

	scanner := &activity.Scanner{Client: client}
	registry := chat.NewRegistry(senderFactory(cfg))

	m := monitor.New(cfg, scanner, registry, database)

	if cfg.ScanInterval > 0 {
		go func() {
			if err := server.Start(ctx, m, database, cfg.HTTPAddr); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
		m.Start(ctx)
		return
	}

	note := os.Getenv("RUN_NOTE")
	if note == "" {
		note = "manual run"
	}
	if err := m.ScanRooms(ctx, note); err != nil {
		slog.Error("scan finished with failures", slog.Any("err", err))
		os.Exit(1)
	}
}

// senderFactory picks the outbound chat implementation: dry-run logging
// when local mode is on or no session material exists, the web client
// otherwise.
func senderFactory(cfg *config.Config) chat.Factory {
	cookie := os.Getenv("THAWBOT_COOKIE")
	if cfg.Local || cookie == "" {
		if !cfg.Local {
			if cfg.Email != "" || cfg.Password != "" {
				slog.Warn("email/password login is not supported, supply THAWBOT_COOKIE with a session cookie")
			}
			slog.Warn("no chat session configured, running in local (dry-run) mode")
		}
		return func(server string) (chat.Sender, error) {
			return &chat.LocalSender{Server: server}, nil
		}
	}
	return chat.NewWebFactory(cookie)
}

func initLogging() {
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
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}
