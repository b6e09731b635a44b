package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.ModelTimeout)
	assert.Equal(t, 5*time.Second, cfg.RetrievalTimeout)
	assert.Equal(t, 10, cfg.MaxHistoryTurns)
	assert.True(t, cfg.RetrievalEnabled)
}

func TestLoadRequiresProviderKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadOpenAIProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestSystemInstruction(t *testing.T) {
	cfg := &Config{}
	got, err := cfg.SystemInstruction("fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)

	path := filepath.Join(t.TempDir(), "instruction.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Responde solo sobre prácticas.\n"), 0o600))
	cfg.SystemInstructionPath = path

	got, err = cfg.SystemInstruction("fallback")
	require.NoError(t, err)
	assert.Equal(t, "Responde solo sobre prácticas.", got)

	require.NoError(t, os.WriteFile(path, []byte("   "), 0o600))
	_, err = cfg.SystemInstruction("fallback")
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "whatever"}).SlogLevel())
}
