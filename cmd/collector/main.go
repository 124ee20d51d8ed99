package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"job-log-relay/internal/api"
	"job-log-relay/internal/archive"
	"job-log-relay/internal/config"
	"job-log-relay/internal/ratelimit"
	"job-log-relay/internal/signature"
	"job-log-relay/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if cfg.SharedSecret == "" {
		// The server still boots so the misconfiguration is visible at the
		// endpoint (every push gets a 500), but alarm loudly.
		log.Printf("ERROR: SHARED_SECRET is not set, all pushes will be rejected")
	}

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	var limiter *ratelimit.TokenBucket
	if cfg.RedisAddr != "" && cfg.RateLimitCapacity > 0 {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	sink, err := archive.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("init archive sink: %v", err)
	}
	if sink != nil {
		log.Printf("archive mirror enabled")
	}

	server := api.New(cfg, st, signature.StaticSecret(cfg.SharedSecret), limiter, sink)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("collector listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
