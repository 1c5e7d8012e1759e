/**
 * Whiteboard Tutor Worker - Main Entry Point
 *
 * Drains the persistence queue filled by cmd/server replicas.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed task queue
 * - PostgreSQL for participants and interaction logs
 * - Qdrant for the annotation explanation index (OpenAI embeddings)
 * - Artifact service for board snapshot images
 * - Redis pub/sub to hand snapshot URLs back to the servers
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/clients"
	"github.com/adverant/nexus/whiteboard-tutor/internal/config"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/queue"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.tutor"); err != nil {
		log.Printf("Warning: .env.tutor not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Invalid worker configuration: %v", err)
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.LogLevel))

	log.Printf("Whiteboard Tutor Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, PostgreSQL=%t, Qdrant=%s, Artifacts=%s, Workers=%d",
		cfg.RedisURL, cfg.DatabaseURL != "", cfg.QdrantURL, cfg.ArtifactAPIURL, cfg.WorkerConcurrency)

	ctx := context.Background()

	// Initialize unified storage manager (PostgreSQL + Qdrant)
	log.Printf("Connecting to storage (PostgreSQL + Qdrant)...")
	managerCfg := &storage.ManagerConfig{
		PostgresURL:      cfg.DatabaseURL,
		QdrantAddress:    cfg.QdrantURL,
		QdrantCollection: cfg.QdrantCollection,
		Dimensions:       clients.EmbeddingDims,
	}
	if cfg.OpenAIAPIKey != "" {
		managerCfg.Embedder = clients.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, 30*time.Second)
	}
	storageManager, err := storage.NewStorageManager(ctx, managerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage manager: %v", err)
	}
	log.Printf("Storage manager initialized (logs=%t, index=%t)", storageManager.HasLogStore(), storageManager.HasIndex())

	// Artifact storage for snapshots
	consumerCfg := &queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   queue.DefaultQueueName,
		Concurrency: cfg.WorkerConcurrency,
		Store:       storageManager,
		TaskTimeout: cfg.AnalysisTimeout,
	}
	if cfg.ArtifactAPIURL != "" {
		artifacts := clients.NewArtifactClient(cfg.ArtifactAPIURL)
		if err := healthCheck(artifacts); err != nil {
			log.Printf("Warning: %v", err)
		}
		consumerCfg.Uploader = artifacts
	}

	// Snapshot URLs go back to the servers over pub/sub
	bus, err := queue.NewRedisBus(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect event bus: %v", err)
	}
	defer bus.Close()
	consumerCfg.Publisher = bus

	// Initialize queue consumer
	log.Printf("Connecting to Redis queue...")
	queueConsumer, err := queue.NewConsumer(consumerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}
	log.Printf("Queue consumer initialized with concurrency=%d", cfg.WorkerConcurrency)

	// Start queue consumer
	log.Printf("Starting queue consumer...")
	if err := queueConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}
	log.Printf("Queue consumer started successfully")

	// Print startup summary
	log.Printf("===========================================")
	log.Printf("Whiteboard Tutor Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", queue.DefaultQueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Task timeout: %s", cfg.AnalysisTimeout)
	log.Printf("Snapshots: %t", consumerCfg.Uploader != nil)
	log.Printf("===========================================")
	log.Printf("Waiting for tasks...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal
	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	// Stop queue consumer
	log.Printf("Stopping queue consumer...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := queueConsumer.Stop(stopCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	// Close storage manager
	log.Printf("Closing storage manager...")
	if err := storageManager.Close(); err != nil {
		log.Printf("Error closing storage manager: %v", err)
	} else {
		log.Printf("Storage manager closed")
	}

	log.Printf("Shutdown complete")
}

// healthCheck probes the artifact service once at startup
func healthCheck(artifacts *clients.ArtifactClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := artifacts.HealthCheck(ctx); err != nil {
		return fmt.Errorf("artifact service health check failed: %w", err)
	}

	return nil
}
