package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/matifariasc/vosk-speech/internal/api"
	"github.com/matifariasc/vosk-speech/internal/config"
	"github.com/matifariasc/vosk-speech/internal/cuos"
	"github.com/matifariasc/vosk-speech/internal/events"
	"github.com/matifariasc/vosk-speech/internal/query"
	"github.com/matifariasc/vosk-speech/internal/scheduler"
	"github.com/matifariasc/vosk-speech/internal/store"
	"github.com/matifariasc/vosk-speech/internal/transcriber"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if path := os.Getenv("CHANNELS_FILE"); path != "" {
		if err := cfg.MergeChannelsFile(path); err != nil {
			slog.Error("invalid channels file", "error", err)
			os.Exit(1)
		}
	} else {
		_ = cfg.MergeChannelsFile("channels.json")
	}
	setupLogging(cfg.LogLevel)

	if len(cfg.Channels) == 0 {
		slog.Error("no channels configured: set CHANNELS or provide channels.json")
		os.Exit(1)
	}

	slog.Info("vosk-speech starting",
		"port", cfg.Port,
		"channels", cfg.Channels,
		"media_base", cfg.MediaBase,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(cfg.StateDir, slog.Default())
	if err != nil {
		slog.Error("failed to open state dir", "error", err)
		os.Exit(1)
	}

	backend := transcriber.Default(cfg.VoskCommand, cfg.VoskModel)

	// Event bus (optional — ingestion works without NATS, just no announcements)
	var pub *events.Publisher
	if cfg.NatsURL != "" {
		pub, err = events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, stored events disabled")
	}

	// Delivery forwarder (optional)
	sender := cuos.NewSender(cfg.CuosEndpoint, slog.Default())
	if sender == nil {
		slog.Warn("CUOS endpoint not configured, delivery disabled")
	}

	sched := scheduler.New(scheduler.Options{
		MediaBase: cfg.MediaBase,
		Channels:  cfg.Channels,
		Workers:   cfg.Parallel,
		Interval:  time.Duration(cfg.IntervalSec) * time.Second,
		Retention: time.Duration(cfg.RetentionHours) * time.Hour,
	}, st, backend, pub, sender, slog.Default())

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scheduler error", "error", err)
		}
	}()

	engine := query.NewEngine(st, cfg.Channels, cfg.BaseURL, cfg.QueryHours, slog.Default())
	srv := api.NewServer(cfg.Port, engine, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("vosk-speech ready", "port", cfg.Port)

	// Graceful shutdown: stop scheduling new cycles, let queued and
	// in-flight items drain, then exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down, draining in-flight work")
	cancel()
	<-schedDone
	slog.Info("vosk-speech stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
