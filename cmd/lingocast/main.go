package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lingocast/internal/app"
	"lingocast/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("lingocast: %v", err)
	}
}

func run() error {
	cfg := config.LoadWithPrecedence(os.Getenv("LINGOCAST_CONFIG_FILE"))

	application, err := app.New(cfg, app.Providers{})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start(context.Background())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return application.Stop(ctx)
}
