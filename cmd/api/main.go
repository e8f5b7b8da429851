package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/placement-gpt/backend/internal/config"
	"github.com/zhouzirui/placement-gpt/backend/internal/desktop"
	"github.com/zhouzirui/placement-gpt/backend/internal/handler"
	"github.com/zhouzirui/placement-gpt/backend/internal/logging"
	"github.com/zhouzirui/placement-gpt/backend/internal/model/suggestion"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/events"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/reply"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Setup(cfg.Log, os.Stderr)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	bus, err := events.New(cfg.Events, events.NewLoggerAdapter(logger))
	if err != nil {
		logger.Fatal().Err(err).Str("backend", string(cfg.Events.Backend)).Msg("failed to initialize event bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn().Err(err).Msg("event bus close")
		}
	}()

	responder, err := reply.NewTemplateResponder(ctx, reply.DefaultAdvice())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build reply chain")
	}

	suggestions := suggestion.NewMemoryStore(suggestion.Seed())

	deps := chat.Dependencies{
		Responder:   responder,
		Suggestions: suggestions,
		Publisher:   bus,
		Delay:       chat.Delay{Base: cfg.Chat.ReplyDelay, Jitter: cfg.Chat.ReplyJitter},
		TimeLayout:  cfg.Chat.TimeLayout,
		Location:    cfg.Chat.Location,
	}
	if cfg.Clipboard.Enabled {
		deps.Clipboard = desktop.NewSystemClipboard()
		logger.Info().Msg("system clipboard enabled")
	}

	chatService, err := chat.NewService(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize chat service")
	}
	defer chatService.Close()

	router := handler.NewRouter(suggestions, chatService, bus, logger)

	startServer(ctx, logger, cfg.Server, router)
}

func startServer(ctx context.Context, logger zerolog.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Placement GPT backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Error().Err(err).Msg("server error")
		return
	}
	logger.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
