package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"job-log-relay/internal/actions"
	"job-log-relay/internal/agent"
	"job-log-relay/internal/config"
)

func main() {
	cfg := config.Load()

	if cfg.JobID == "" {
		log.Fatalf("JOB_ID is required")
	}
	if cfg.CollectorURL == "" {
		log.Fatalf("COLLECTOR_URL is required")
	}
	if cfg.SharedSecret == "" {
		log.Fatalf("SHARED_SECRET is required")
	}
	if cfg.ActionsRepo == "" {
		log.Fatalf("ACTIONS_REPO is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	client := actions.New(cfg, cfg.PushTimeout)
	shipper := agent.New(cfg, client, client)

	switch err := shipper.Run(ctx); {
	case err == nil:
		log.Printf("relay completed for job %s", cfg.JobID)
	case errors.Is(err, context.Canceled):
		log.Printf("relay stopped for job %s", cfg.JobID)
	default:
		log.Printf("relay failed for job %s: %v", cfg.JobID, err)
		os.Exit(1)
	}
}
