package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"gemini"`

	GeminiAPIKey         string `env:"GEMINI_API_KEY"`
	GeminiModel          string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash-latest"`
	GeminiEmbeddingModel string `env:"GEMINI_EMBEDDING_MODEL" envDefault:"text-embedding-004"`

	OpenAIAPIKey         string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL        string `env:"OPENAI_BASE_URL"`
	OpenAIModel          string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIEmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"practicum_assistant.db"`

	HTTPPort  string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	JWTSecret string `env:"JWT_SECRET"`

	SystemInstructionPath string        `env:"SYSTEM_INSTRUCTION_PATH"`
	MaxPromptChars        int           `env:"MAX_PROMPT_CHARS" envDefault:"12000"`
	MaxHistoryTurns       int           `env:"MAX_HISTORY_TURNS" envDefault:"10"`
	ModelTimeout          time.Duration `env:"MODEL_TIMEOUT" envDefault:"30s"`
	ModelRetryDelay       time.Duration `env:"MODEL_RETRY_DELAY" envDefault:"300ms"`
	StoreTimeout          time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	RetrievalEnabled bool          `env:"RETRIEVAL_ENABLED" envDefault:"true"`
	RetrievalTimeout time.Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"5s"`
	KnowledgeFile    string        `env:"KNOWLEDGE_FILE" envDefault:"knowledge.md"`
}

// Load reads an optional .env file and then the process environment.
// A missing provider credential or reviewer secret is reported as an error so the
// process can refuse to start.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))

	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.MaxPromptChars <= 0 {
		return errors.New("MAX_PROMPT_CHARS must be positive")
	}
	if c.MaxHistoryTurns < 0 {
		return errors.New("MAX_HISTORY_TURNS cannot be negative")
	}
	return nil
}

// SystemInstruction returns the instruction text from SYSTEM_INSTRUCTION_PATH, or
// fallback when no path is configured.
func (c *Config) SystemInstruction(fallback string) (string, error) {
	if c.SystemInstructionPath == "" {
		return fallback, nil
	}
	b, err := os.ReadFile(c.SystemInstructionPath)
	if err != nil {
		return "", fmt.Errorf("failed to read system instruction %s: %w", c.SystemInstructionPath, err)
	}
	instruction := strings.TrimSpace(string(b))
	if instruction == "" {
		return "", fmt.Errorf("system instruction file %s is empty", c.SystemInstructionPath)
	}
	return instruction, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
