package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/zjoart/go-paystack-settlement/cmd/routes"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/database"
	"github.com/zjoart/go-paystack-settlement/pkg/events"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
)

func main() {
	defer logger.Sync()

	cfg := config.LoadConfig()

	database.Connect(cfg.DBUrl)

	redisClient := events.NewRedisClient(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := routes.NewApp(ctx, cfg, database.DB, redisClient)

	// start background worker
	app.RetryWorker.Start(ctx)

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, app)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, logger.EnvKey: cfg.Env, "settlement_mode": string(cfg.Settlement.Mode)})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", logger.WithError(err))
	}
	if err := app.Dispatcher.Close(); err != nil {
		logger.Warn("Failed to close notifier", logger.WithError(err))
	}
	if err := redisClient.Client.Close(); err != nil {
		logger.Warn("Failed to close redis client", logger.WithError(err))
	}
	logger.Info("Server gracefully shut down")
}
