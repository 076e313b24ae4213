package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jaminalder/tictactoe-web/internal/app"
	"github.com/jaminalder/tictactoe-web/internal/bot"
	"github.com/jaminalder/tictactoe-web/internal/config"
	"github.com/jaminalder/tictactoe-web/internal/domain"
	"github.com/jaminalder/tictactoe-web/internal/history"
	"github.com/jaminalder/tictactoe-web/internal/storage"
	"github.com/jaminalder/tictactoe-web/internal/web"
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	conf := initConfig()
	logger := initLogger(conf)

	if err := run(logger, conf); err != nil {
		panic(fmt.Errorf("server run failed: %w", err))
	}
}

func initConfig() *config.Config {
	baseDir, err := os.Getwd()
	if err != nil {
		panic(fmt.Errorf("failed to get current directory: %w", err))
	}
	return config.MustLoad(filepath.Join(baseDir, "config.yml"))
}

func initLogger(conf *config.Config) *slog.Logger {
	var level slog.Level
	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func openStore(ctx context.Context, conf *config.Config) (storage.Store, error) {
	if conf.Store != config.StoreRedis {
		return storage.NewMemory(), nil
	}
	client, err := storage.NewRedisClient(ctx, conf.Redis.GetRedisAddr())
	if err != nil {
		return nil, err
	}
	return storage.NewRedis(client, conf.Redis.TTL), nil
}

func run(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aiMark, err := domain.ParseCell(conf.AIMark)
	if err != nil {
		return fmt.Errorf("ai-mark: %w", err)
	}
	first, err := domain.ParseCell(conf.FirstPlayer)
	if err != nil {
		return fmt.Errorf("first-player: %w", err)
	}

	store, err := openStore(ctx, conf)
	if err != nil {
		return fmt.Errorf("could not open session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("could not close session store", "error", err)
		}
	}()

	rec, err := history.Open(conf.HistoryPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Error("could not close history", "error", err)
		}
	}()

	svc := app.NewService(store, bot.New(nil), app.Options{
		Logger:      logger,
		Recorder:    rec,
		ThinkDelay:  conf.ThinkDelay,
		AIMark:      aiMark,
		FirstPlayer: first,
	})

	httpServer := &http.Server{
		Addr:              conf.HTTPAddr,
		Handler:           web.NewServer(svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
		// event streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server started", "addr", conf.HTTPAddr, "store", conf.Store)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err = <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
