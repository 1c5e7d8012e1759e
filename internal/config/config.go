/**
 * Configuration for the whiteboard tutor
 *
 * Loads configuration from environment variables matching .env.tutor.
 * Both binaries share one Config; cmd/worker additionally calls
 * ValidateWorker for the settings only it needs.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM providers
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// OCR fallbacks used when Google Vision is not configured
const (
	FallbackTesseract = "tesseract"
	FallbackNone      = "none"
)

// Config holds tutor configuration
type Config struct {
	// HTTP server
	HTTPPort int
	GinMode  string

	// LLM backends
	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string

	// OCR backends
	GoogleVisionAPIKey string
	GoogleVisionURL    string
	MathpixAppID       string
	MathpixAppKey      string
	MathpixURL         string
	OCRFallback        string
	TesseractLanguage  string

	// Persistence
	DatabaseURL      string
	RedisURL         string
	QdrantURL        string
	QdrantCollection string
	ArtifactAPIURL   string

	// Cycle and worker tuning
	AnalysisTimeout   time.Duration
	WorkerConcurrency int

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPPort:           getEnvAsIntOrDefault("HTTP_PORT", 8080),
		GinMode:            getEnvOrDefault("GIN_MODE", "release"),
		LLMProvider:        strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:       getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:       getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GoogleVisionAPIKey: getEnvOrDefault("GOOGLE_VISION_API_KEY", ""),
		GoogleVisionURL:    getEnvOrDefault("GOOGLE_VISION_URL", "https://vision.googleapis.com/v1/images:annotate"),
		MathpixAppID:       getEnvOrDefault("MATHPIX_APP_ID", ""),
		MathpixAppKey:      getEnvOrDefault("MATHPIX_APP_KEY", ""),
		MathpixURL:         getEnvOrDefault("MATHPIX_URL", "https://api.mathpix.com/v3/text"),
		OCRFallback:        strings.ToLower(getEnvOrDefault("OCR_FALLBACK", FallbackTesseract)),
		TesseractLanguage:  getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		QdrantURL:          getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:   getEnvOrDefault("QDRANT_COLLECTION", "annotation_explanations"),
		ArtifactAPIURL:     getEnvOrDefault("ARTIFACT_API_URL", ""),
		AnalysisTimeout:    time.Duration(getEnvAsIntOrDefault("ANALYSIS_TIMEOUT", 120000)) * time.Millisecond,
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 5),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}

	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or gemini, got %q", c.LLMProvider)
	}

	if (c.MathpixAppID == "") != (c.MathpixAppKey == "") {
		return fmt.Errorf("MATHPIX_APP_ID and MATHPIX_APP_KEY must be set together")
	}

	if c.OCRFallback != FallbackTesseract && c.OCRFallback != FallbackNone {
		return fmt.Errorf("OCR_FALLBACK must be tesseract or none, got %q", c.OCRFallback)
	}

	if c.AnalysisTimeout < time.Second || c.AnalysisTimeout > 10*time.Minute {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be between 1000 and 600000 ms, got %d", c.AnalysisTimeout.Milliseconds())
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.QdrantURL != "" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("QDRANT_URL requires OPENAI_API_KEY for explanation embeddings")
	}

	return nil
}

// ValidateWorker checks the settings cmd/worker cannot run without
func (c *Config) ValidateWorker() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.DatabaseURL == "" && c.QdrantURL == "" && c.ArtifactAPIURL == "" {
		return fmt.Errorf("at least one of DATABASE_URL, QDRANT_URL or ARTIFACT_API_URL is required")
	}
	return nil
}

// VisionConfigured reports whether Google Vision term detection is available
func (c *Config) VisionConfigured() bool {
	return c.GoogleVisionAPIKey != ""
}

// BusyLockTTL bounds how long a crashed replica can keep a board busy
func (c *Config) BusyLockTTL() time.Duration {
	return c.AnalysisTimeout + 30*time.Second
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
