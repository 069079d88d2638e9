// Package main starts the Confetti API: cached, live conference schedules and
// bookmarks over HTTP and server-sent events.
//
// @title Confetti API
// @version 1.0
// @description Conference sessions and bookmarks served from a normalized cache kept in sync with the Confetti GraphQL server.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"confetti/config"
	"confetti/internal/cmd/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
