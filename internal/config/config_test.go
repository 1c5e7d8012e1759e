package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:          8080,
		LLMProvider:       ProviderOpenAI,
		OpenAIAPIKey:      "sk-test",
		OCRFallback:       FallbackTesseract,
		AnalysisTimeout:   120 * time.Second,
		WorkerConcurrency: 5,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTPPort = 0 }, "HTTP_PORT"},
		{"openai without key", func(c *Config) { c.OpenAIAPIKey = "" }, "OPENAI_API_KEY"},
		{"gemini without key", func(c *Config) { c.LLMProvider = ProviderGemini }, "GEMINI_API_KEY"},
		{"gemini with key", func(c *Config) { c.LLMProvider = ProviderGemini; c.GeminiAPIKey = "g" }, ""},
		{"unknown provider", func(c *Config) { c.LLMProvider = "claude" }, "LLM_PROVIDER"},
		{"mathpix half configured", func(c *Config) { c.MathpixAppID = "id" }, "MATHPIX_APP_ID"},
		{"mathpix pair", func(c *Config) { c.MathpixAppID = "id"; c.MathpixAppKey = "key" }, ""},
		{"bad fallback", func(c *Config) { c.OCRFallback = "easyocr" }, "OCR_FALLBACK"},
		{"timeout too short", func(c *Config) { c.AnalysisTimeout = 10 * time.Millisecond }, "ANALYSIS_TIMEOUT"},
		{"concurrency", func(c *Config) { c.WorkerConcurrency = 0 }, "WORKER_CONCURRENCY"},
		{"qdrant needs embeddings", func(c *Config) {
			c.LLMProvider = ProviderGemini
			c.GeminiAPIKey = "g"
			c.OpenAIAPIKey = ""
			c.QdrantURL = "localhost:6334"
		}, "QDRANT_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWorker(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateWorker(); err == nil {
		t.Error("expected REDIS_URL error")
	}
	cfg.RedisURL = "redis://localhost:6379"
	if err := cfg.ValidateWorker(); err == nil {
		t.Error("expected error without any persistence backend")
	}
	cfg.DatabaseURL = "postgres://localhost/tutor"
	if err := cfg.ValidateWorker(); err != nil {
		t.Errorf("ValidateWorker() error = %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ANALYSIS_TIMEOUT", "30000")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.HTTPPort != 9090 || cfg.AnalysisTimeout != 30*time.Second {
		t.Errorf("port=%d timeout=%v", cfg.HTTPPort, cfg.AnalysisTimeout)
	}
	if cfg.LLMProvider != ProviderOpenAI {
		t.Errorf("provider = %q, want lower-cased openai", cfg.LLMProvider)
	}
	if cfg.WorkerConcurrency != 5 {
		t.Errorf("unparseable WORKER_CONCURRENCY = %d, want default 5", cfg.WorkerConcurrency)
	}
	if cfg.QdrantCollection != "annotation_explanations" {
		t.Errorf("collection = %q", cfg.QdrantCollection)
	}
	if cfg.BusyLockTTL() != 60*time.Second {
		t.Errorf("BusyLockTTL() = %v", cfg.BusyLockTTL())
	}
}
