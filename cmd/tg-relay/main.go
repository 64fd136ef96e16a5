package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg-relay/internal/bot"
	"tg-relay/internal/config"
	"tg-relay/internal/crash"
	"tg-relay/internal/handler"
	"tg-relay/internal/logger"
	"tg-relay/internal/service"
	"tg-relay/internal/storage"
)

func main() {
	defer crash.RecoverWithStackAndExit("main")

	// Define command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging first
	if err := logger.Setup(cfg); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	// Initialize database
	db, err := storage.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database connection established")

	// Ephemeral store (Redis or in-process)
	store := storage.NewEphemeralStore(cfg)

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize bot with configuration
	botService, server, err := bot.Initialize(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize bot: %v", err)
	}

	// Wire the relay pipeline
	senders := storage.NewSenderRepository(db)
	mappings := storage.NewMappingRepository(db)
	limiter := service.NewRateLimiter(store, cfg.RateLimit.Messages, cfg.RateLimit.Window())
	resolver := service.NewReplyResolver(botService.Bot, mappings, cfg.Channel.ID)
	dispatcher := service.NewDispatcher(botService.Bot, cfg.Channel.ID)
	gate := service.NewNSFWGate(store, nil, cfg.Nsfw.Enabled, cfg.Nsfw.Enforced)
	coordinator := service.NewMediaGroupCoordinator(botService.Bot, store, mappings, resolver, gate, cfg.Channel.ID, cfg.Features.EnableEdit, cfg.Features.EnableDelete)
	forwarder := service.NewForwarder(botService.Bot, senders, mappings, limiter, resolver, dispatcher, coordinator, gate, cfg.Channel.ID, cfg.Features.EnableEdit, cfg.Features.EnableDelete)
	editor := service.NewEditSession(botService.Bot, store, mappings, cfg.Channel.ID)

	handlers := handler.New(botService.Bot, cfg, senders, mappings, forwarder, coordinator, gate, editor)

	// Start HTTP server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(500 * time.Millisecond)
	log.Println("HTTP server is ready, starting bot handler...")

	handlers.Setup(botService.Handler)
	go botService.Start()

	// Create a channel for receiving OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Printf("Received signal: %v, shutting down...", sig)

	// Gracefully shutdown server and in-flight album posts
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	botService.Stop()
	coordinator.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Server gracefully stopped")
}
