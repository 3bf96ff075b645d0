// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/locator/internal/app"
	"github.com/relabs-tech/locator/internal/config"
)

func main() {
	configPath := flag.String("config", "locator.conf", "configuration file (KEY=VALUE, or .yaml)")
	verbose := flag.Bool("v", false, "debug logging")
	demoMode := flag.Bool("demo", false, "simulate every radio, the network and the upload")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	log.Println("starting locator daemon")

	// Load configuration; demo mode runs on defaults when there is no file
	if _, statErr := os.Stat(*configPath); *demoMode && statErr != nil {
		cfg := config.Default()
		cfg.DeviceID = "demo"
		config.SetGlobal(cfg)
	} else if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunDaemon(ctx, config.Get(), *demoMode, logger); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	log.Println("locator daemon stopped")
}
