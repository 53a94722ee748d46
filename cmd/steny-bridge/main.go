// Copyright 2025-2026 Mvemba Research Systems

// Command steny-bridge is a secured relay between a persistent WhatsApp
// session and an n8n automation webhook. It keeps one authenticated
// connection to WhatsApp, exposes a small HTTP API for sending messages and
// inspecting pairing state, and forwards inbound text messages to the
// configured webhook with an optional HMAC signature.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvemba/steny-bridge/pkg/bridge"
	"github.com/mvemba/steny-bridge/pkg/whatsapp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and owns the server lifecycle, so deferred
// cleanup executes before the process exits and startup errors surface in
// one place.
func run() error {
	cfg, err := bridge.LoadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)
	log.Info().Msg("Steny Bridge booting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authDir := whatsapp.ResolveAuthDir(cfg.PersistDir, log)
	log.Info().Str("auth_dir", authDir).Msg("Credential store resolved")

	manager := whatsapp.NewManager(whatsapp.ManagerConfig{
		AuthDir:     authDir,
		PhoneNumber: cfg.PhoneNumber,
	}, log)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("whatsapp session: %w", err)
	}
	defer manager.Close()

	relay := bridge.NewRelay(cfg.WebhookURL, cfg.HMACSecret, log)
	go relay.Pump(manager.Events())

	gateway := bridge.NewGateway(cfg, manager, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      gateway.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("Steny Bridge listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
