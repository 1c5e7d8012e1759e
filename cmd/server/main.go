/**
 * Whiteboard Tutor Server - Main Entry Point
 *
 * Serves the tutoring HTTP API and owns the per-participant boards.
 *
 * Architecture:
 * - Gin HTTP server (pass-through collaborator routes and session routes)
 * - Analysis cycle: Google Vision / Tesseract terms, Mathpix equations,
 *   OpenAI or Gemini for analysis, verification and corrections
 * - With REDIS_URL: busy flags in Redis, persistence through the asynq
 *   queue drained by cmd/worker, snapshot URLs back over pub/sub
 * - Without REDIS_URL: in-process busy flags, direct PostgreSQL/Qdrant writes
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/api"
	"github.com/adverant/nexus/whiteboard-tutor/internal/clients"
	"github.com/adverant/nexus/whiteboard-tutor/internal/config"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
	"github.com/adverant/nexus/whiteboard-tutor/internal/processor"
	"github.com/adverant/nexus/whiteboard-tutor/internal/queue"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/gin-gonic/gin"
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
	logging.SetDefaultLevel(logging.ParseLevel(cfg.LogLevel))

	log.Printf("Whiteboard Tutor Server starting...")
	log.Printf("Configuration loaded: Port=%d, LLM=%s, Redis=%s, PostgreSQL=%t, Qdrant=%s",
		cfg.HTTPPort, cfg.LLMProvider, cfg.RedisURL, cfg.DatabaseURL != "", cfg.QdrantURL)

	ctx := context.Background()

	// OpenAI also carries speech and embeddings, whichever LLM is selected
	var openai *clients.OpenAIClient
	if cfg.OpenAIAPIKey != "" {
		openai = clients.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.AnalysisTimeout)
	}

	var completer llm.Completer
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		gemini, err := clients.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini client: %v", err)
		}
		completer = gemini
	default:
		completer = openai
	}
	log.Printf("LLM backend initialized (%s)", cfg.LLMProvider)

	// Term detection: Google Vision, else local Tesseract
	var terms processor.TermSource
	termBackend := "none"
	switch {
	case cfg.VisionConfigured():
		terms = clients.NewVisionClient(cfg.GoogleVisionURL, cfg.GoogleVisionAPIKey)
		termBackend = "google-vision"
	case cfg.OCRFallback == config.FallbackTesseract:
		terms = ocr.NewTesseractOCR(&ocr.TesseractConfig{Language: cfg.TesseractLanguage})
		termBackend = "tesseract"
	}
	log.Printf("Term detection: %s", termBackend)

	var equations processor.EquationSource
	if mathpix := clients.NewMathpixClient(cfg.MathpixURL, cfg.MathpixAppID, cfg.MathpixAppKey); mathpix.Configured() {
		equations = mathpix
	}
	log.Printf("Equation recognition: mathpix=%t", equations != nil)

	// Storage backs explanation search and, without Redis, direct writes
	var storageManager *storage.StorageManager
	if cfg.DatabaseURL != "" || cfg.QdrantURL != "" {
		log.Printf("Connecting to storage (PostgreSQL + Qdrant)...")
		managerCfg := &storage.ManagerConfig{
			PostgresURL:      cfg.DatabaseURL,
			QdrantAddress:    cfg.QdrantURL,
			QdrantCollection: cfg.QdrantCollection,
			Dimensions:       clients.EmbeddingDims,
		}
		if openai != nil {
			managerCfg.Embedder = openai
		}
		storageManager, err = storage.NewStorageManager(ctx, managerCfg)
		if err != nil {
			log.Fatalf("Failed to initialize storage manager: %v", err)
		}
		defer storageManager.Close()
		log.Printf("Storage manager initialized (logs=%t, index=%t)", storageManager.HasLogStore(), storageManager.HasIndex())
	}

	orchCfg := &processor.OrchestratorConfig{
		Registry:     processor.NewRegistry(),
		Terms:        terms,
		Equations:    equations,
		LLM:          completer,
		CycleTimeout: cfg.AnalysisTimeout,
	}

	var (
		bus    *queue.RedisBus
		direct *processor.DirectPersister
	)
	if cfg.RedisURL != "" {
		log.Printf("Connecting to Redis (busy locks, queue, events)...")
		bus, err = queue.NewRedisBus(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect event bus: %v", err)
		}
		defer bus.Close()

		producer, err := queue.NewProducer(cfg.RedisURL, queue.DefaultQueueName)
		if err != nil {
			log.Fatalf("Failed to initialize queue producer: %v", err)
		}
		defer producer.Close()

		orchCfg.Busy = queue.NewRedisBusyLock(bus, cfg.BusyLockTTL())
		orchCfg.Persister = producer
		orchCfg.Notifier = bus
	} else {
		var uploader processor.Uploader
		if cfg.ArtifactAPIURL != "" {
			uploader = clients.NewArtifactClient(cfg.ArtifactAPIURL)
		}
		direct = processor.NewDirectPersister(storageManager, uploader)
		orchCfg.Persister = direct
	}

	orch, err := processor.NewOrchestrator(orchCfg)
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}
	if bus != nil {
		if err := bus.Subscribe(orch.HandleEvent); err != nil {
			log.Fatalf("Failed to subscribe to board events: %v", err)
		}
	}
	if direct != nil {
		direct.OnSnapshot = orch.HandleEvent
	}

	deps := api.Deps{
		Orchestrator: orch,
		Terms:        terms,
		Equations:    equations,
	}
	if openai != nil {
		deps.Speech = openai
	}
	if storageManager != nil {
		if storageManager.HasIndex() {
			deps.Explanations = storageManager
		}
		deps.Health = storageManager.GetStats
	}

	gin.SetMode(cfg.GinMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewServer(deps).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Print startup summary
	log.Printf("===========================================")
	log.Printf("Whiteboard Tutor Server is READY")
	log.Printf("===========================================")
	log.Printf("Listening: :%d", cfg.HTTPPort)
	log.Printf("LLM: %s", cfg.LLMProvider)
	log.Printf("Terms: %s, Mathpix: %t", termBackend, equations != nil)
	log.Printf("Persistence: %s", persistenceMode(cfg))
	log.Printf("Cycle timeout: %s", cfg.AnalysisTimeout)
	log.Printf("===========================================")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal
	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	} else {
		log.Printf("HTTP server stopped")
	}

	log.Printf("Shutdown complete")
}

func persistenceMode(cfg *config.Config) string {
	switch {
	case cfg.RedisURL != "":
		return "queue (" + queue.DefaultQueueName + ")"
	case cfg.DatabaseURL != "" || cfg.QdrantURL != "":
		return "direct"
	default:
		return "memory only"
	}
}
