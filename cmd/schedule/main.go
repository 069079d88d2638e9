// Package main prints a conference schedule from the local cache and the Confetti server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"confetti/config"
	"confetti/internal/cmd/schedule"
)

func main() {
	env, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg, err := schedule.ParseConfig(flag.CommandLine, os.Args[1:], env)
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	logger := config.NewLoggerTo(os.Stderr, env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := schedule.Run(ctx, cfg, os.Stdout, logger); err != nil {
		log.Fatalf("schedule: %v", err)
	}
}
