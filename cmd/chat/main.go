package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sesmanagement/discussions/internal/api"
	"github.com/sesmanagement/discussions/internal/auth"
	"github.com/sesmanagement/discussions/internal/chat"
	"github.com/sesmanagement/discussions/internal/config"
	"github.com/sesmanagement/discussions/internal/logger"
	"github.com/sesmanagement/discussions/internal/media"
	"github.com/sesmanagement/discussions/internal/ui"
)

var log = logger.New("main")

func main() {
	logPath := flag.String("log", "chat.log", "log file; the terminal belongs to the UI")
	token := flag.String("token", "", "bearer token, overrides AUTH_TOKEN")
	flag.Parse()

	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger.SetOutput(logFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		cfg.AuthToken = *token
	}
	if err := cfg.ValidateClient(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error("%v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := auth.StaticToken(cfg.AuthToken)
	opts := chat.Options{
		Tokens:  tokens,
		Backend: api.NewClient(cfg.APIBaseURL, tokens),
		Dial:    chat.DialWebSocket(cfg.SocketURL),
	}
	if cfg.Media.Enabled() {
		opts.Uploader = media.NewUploader(cfg.Media, nil)
	} else {
		log.Info("Media credentials missing, attachments disabled")
	}

	app := ui.NewApp()
	client, err := chat.Open(ctx, app.Options(opts))
	if err != nil {
		return err
	}
	defer client.Close()

	return app.Run(ctx, client)
}
