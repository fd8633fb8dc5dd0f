package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jcowley/roomcast/internal/api"
	"github.com/jcowley/roomcast/internal/chat"
	"github.com/jcowley/roomcast/internal/config"
	"github.com/jcowley/roomcast/internal/server"
	"github.com/jcowley/roomcast/internal/stats"
	"github.com/jcowley/roomcast/internal/store"
)

func main() {
	logger := log.New(os.Stderr, "[roomcast] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Fatal("load .env:", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("config:", err)
	}

	repo, err := store.NewSqliteRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("store open:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	svc := chat.NewService(logger, repo, statsUpdater, cfg.HistoryLimit)
	chatServer := server.NewChatServer(logger, svc)

	srv := api.NewApp(mux, logger, svc, chatServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
