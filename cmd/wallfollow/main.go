// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/wall_follower/internal/app"
	"github.com/relabs-tech/wall_follower/internal/config"
)

func main() {
	configPath := flag.String("config", "wall_follower_config.txt", "path to the configuration file")
	prompt := flag.Bool("prompt", true, "read target speeds from stdin")
	flag.Parse()

	log.Println("starting wall follower")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunWallFollower(ctx, *prompt); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
