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
	flag.Parse()

	log.Println("starting wall-follower console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsoleMQTT(ctx, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
