package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hangle/salonbook/internal/auth"
	"github.com/hangle/salonbook/internal/config"
	"github.com/hangle/salonbook/internal/directory"
	"github.com/hangle/salonbook/internal/handlers"
	"github.com/hangle/salonbook/internal/sheet"
	"github.com/hangle/salonbook/internal/store"
)

func main() {
	// Setup structured logger
	handlerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// The workbook is the durable row table.
	table, err := sheet.Open(cfg.WorkbookPath)
	if err != nil {
		slog.Error("Failed to open workbook", "path", cfg.WorkbookPath, "error", err)
		os.Exit(1)
	}
	defer table.Close()

	// The directory decides who may call the API; edit it with salonctl
	// while the server runs.
	dir, err := directory.Open(cfg.DirectoryDB)
	if err != nil {
		slog.Error("Failed to open identity directory", "path", cfg.DirectoryDB, "error", err)
		os.Exit(1)
	}
	defer dir.Close()

	gate := &auth.Gate{
		Introspector: auth.NewTokenInfoClient(cfg.TokenInfoURL),
		AllowList:    dir,
		Audience:     cfg.Audience,
	}

	api := &handlers.API{
		Gate:   gate,
		Ledger: store.New(table, dir),
	}

	mux := http.NewServeMux()

	// One endpoint; the logical operation travels in the action field.
	rateLimiter := handlers.NewRateLimiter(time.Second)
	mux.Handle("/api", rateLimiter.Middleware(api))

	handler := handlers.LoggingMiddleware(
		handlers.CORSMiddleware(cfg.CORSOrigin, mux),
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "workbook", cfg.WorkbookPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	slog.Info("Server exited gracefully.")
}
