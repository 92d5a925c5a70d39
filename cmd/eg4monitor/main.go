package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eg4monitor/eg4monitor/pkg/eg4"
	"github.com/eg4monitor/eg4monitor/pkg/exporter"
	"github.com/eg4monitor/eg4monitor/pkg/log"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	client := eg4.Configured()
	srv := exporter.Configured()

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer client.Close()

	if err := client.Login(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "login failed", "error", err)
		os.Exit(1)
	}

	// without a configured serial, monitor the first inverter on the account
	_, serialNum := client.Selection()
	if serialNum == "" {
		if err := client.SelectInverterIndex(0); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to select inverter", "error", err)
			os.Exit(1)
		}
		_, serialNum = client.Selection()
	}
	log.Ctx(ctx).InfoContext(ctx, "monitoring inverter", slog.String("serialNum", serialNum))

	srv.Register(exporter.NewCollector(client, serialNum))

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
