package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/mathrush/mathrush-backend/internal/config"
	"github.com/mathrush/mathrush-backend/internal/history"
	"github.com/mathrush/mathrush-backend/internal/httpapi"
	"github.com/mathrush/mathrush-backend/internal/hub"
)

func main() {
	cfg := config.FromEnv()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var recorder history.Recorder = history.Nop{}
	if cfg.DatabaseURL != "" {
		rec, err := history.NewGormRecorder(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("history database unavailable", zap.Error(err))
		}
		recorder = rec
		logger.Info("match history recording enabled")
	}

	h := hub.NewHub(context.Background(), hub.Options{
		MaxPlayersPerLobby: cfg.MaxPlayersPerLobby,
		Recorder:           recorder,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.NewRouter(h, logger, cfg.AllowedOrigins),
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	h.Inbox() <- hub.ShutdownHub{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
