package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Claude generation
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	MaxOutputTokens  int

	// Upload limits
	MaxUploadBytes      int64
	MaxFiles            int
	MaxAttachmentTokens int

	// Generations
	MaxConcurrentGenerations int
	GenerationTimeout        time.Duration
	GenerationTTL            time.Duration

	// PDF export
	PDFMaxChars  int
	PDFStyleFile string

	// PDF attachments
	PDFFallbackPdftotext bool
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, fills in variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8090"),

		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:   envOr("ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
		AnthropicBaseURL: envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		MaxOutputTokens:  envInt("MAX_OUTPUT_TOKENS", 8192),

		MaxUploadBytes:      envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		MaxFiles:            envInt("MAX_FILES", 10),
		MaxAttachmentTokens: envInt("MAX_ATTACHMENT_TOKENS", 20000),

		MaxConcurrentGenerations: envInt("MAX_CONCURRENT_GENERATIONS", 4),
		GenerationTimeout:        envDuration("GENERATION_TIMEOUT", 5*time.Minute),
		GenerationTTL:            envDuration("GENERATION_TTL", 1*time.Hour),

		PDFMaxChars:  envInt("PDF_MAX_CHARS", 30000),
		PDFStyleFile: os.Getenv("PDF_STYLE_FILE"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 8192
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if cfg.MaxAttachmentTokens <= 0 {
		cfg.MaxAttachmentTokens = 20000
	}
	if cfg.MaxConcurrentGenerations <= 0 {
		cfg.MaxConcurrentGenerations = 4
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 5 * time.Minute
	}
	if cfg.GenerationTTL <= 0 {
		cfg.GenerationTTL = 1 * time.Hour
	}
	// PDF_MAX_CHARS=0 disables the cap; negative values fall back to the default.
	if cfg.PDFMaxChars < 0 {
		cfg.PDFMaxChars = 30000
	}

	return cfg
}

func (c Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.PDFStyleFile != "" {
		if _, err := os.Stat(c.PDFStyleFile); err != nil {
			return fmt.Errorf("PDF_STYLE_FILE: %w", err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
