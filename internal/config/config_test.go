// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9090"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"
  token_ttl: "12h"

providers:
  openai:
    api_key: "sk-test"
    chat_model: "gpt-4o-mini"
  elevenlabs:
    enabled: true
    api_key: "xi-test"
    voice: "rachel"
  dialogflow:
    enabled: true
    project_id: "proj"
    agent_id: "agent"
    language_code: "ro"

retrieval:
  docs_dir: "./knowledge"
  chunk_size: 200
  chunk_overlap: 20
  top_k: 3

resolver:
  default_locale: "ro"
  provider_timeout: "5s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9090")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 12h", cfg.Auth.TokenTTL)
	}
	if cfg.Providers.OpenAI.ChatModel != "gpt-4o-mini" {
		t.Errorf("OpenAI.ChatModel = %q, want %q", cfg.Providers.OpenAI.ChatModel, "gpt-4o-mini")
	}
	if cfg.Providers.ElevenLabs.Voice != "rachel" {
		t.Errorf("ElevenLabs.Voice = %q, want %q", cfg.Providers.ElevenLabs.Voice, "rachel")
	}
	if cfg.Providers.Dialogflow.LanguageCode != "ro" {
		t.Errorf("Dialogflow.LanguageCode = %q, want %q", cfg.Providers.Dialogflow.LanguageCode, "ro")
	}
	if cfg.Retrieval.ChunkSize != 200 {
		t.Errorf("Retrieval.ChunkSize = %d, want 200", cfg.Retrieval.ChunkSize)
	}
	if cfg.Resolver.DefaultLocale != "ro" {
		t.Errorf("Resolver.DefaultLocale = %q, want %q", cfg.Resolver.DefaultLocale, "ro")
	}
	if cfg.Resolver.ProviderTimeout != 5*time.Second {
		t.Errorf("Resolver.ProviderTimeout = %v, want 5s", cfg.Resolver.ProviderTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	configPath := writeConfig(t, `
providers:
  openai:
    api_key: "sk-test"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("default Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Providers.OpenAI.ChatModel != "gpt-4o" {
		t.Errorf("default OpenAI.ChatModel = %q", cfg.Providers.OpenAI.ChatModel)
	}
	if cfg.Retrieval.ChunkSize != 300 || cfg.Retrieval.ChunkOverlap != 30 {
		t.Errorf("default chunking = %d/%d", cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	}
	if cfg.Resolver.ProviderTimeout != 10*time.Second {
		t.Errorf("default Resolver.ProviderTimeout = %v", cfg.Resolver.ProviderTimeout)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("default Auth.TokenTTL = %v", cfg.Auth.TokenTTL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")

	configPath := writeConfig(t, `
providers:
  openai:
    api_key: "${TEST_OPENAI_KEY}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want %q", cfg.Providers.OpenAI.APIKey, "sk-from-env")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
providers:
  openai:
    api_key: "${DEFINITELY_NOT_SET_VAR_12345}"
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Errorf("expected api_key validation error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "server: [not: valid")
	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
providers:
  openai:
    api_key: "sk-test"
resolver:
  provider_timeout: "ten seconds"
`)
	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "provider_timeout") {
		t.Errorf("expected provider_timeout error, got %v", err)
	}
}

func TestValidate_EnabledProviderNeedsKeys(t *testing.T) {
	cfg := Default()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Providers.ElevenLabs.Enabled = true

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "elevenlabs.api_key") {
		t.Errorf("expected elevenlabs.api_key error, got %v", err)
	}
}

func TestValidate_DialogflowNeedsProject(t *testing.T) {
	cfg := Default()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Providers.Dialogflow.Enabled = true

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "dialogflow.project_id") {
		t.Errorf("expected dialogflow.project_id error, got %v", err)
	}
}

func TestValidate_ChunkOverlapBounds(t *testing.T) {
	cfg := Default()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Retrieval.ChunkOverlap = cfg.Retrieval.ChunkSize

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "chunk_overlap") {
		t.Errorf("expected chunk_overlap error, got %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("expected logging.level error, got %v", err)
	}
}

func TestLoad_LocaleOverride(t *testing.T) {
	configPath := writeConfig(t, `
providers:
  openai:
    api_key: "sk-test"

resolver:
  default_locale: "fr"
  locales:
    - locale: "fr"
      greeting: "Bonjour !"
      fallback_phrases:
        - "je ne sais pas"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	packs := cfg.LocalePacks()
	if len(packs) != 1 {
		t.Fatalf("LocalePacks() len = %d, want 1", len(packs))
	}
	if packs[0].Greeting != "Bonjour !" {
		t.Errorf("Greeting = %q", packs[0].Greeting)
	}
}

func TestLocalePacks_DefaultsWhenUnconfigured(t *testing.T) {
	cfg := Default()
	packs := cfg.LocalePacks()
	if len(packs) < 2 {
		t.Fatalf("expected built-in locale packs, got %d", len(packs))
	}

	locales := map[string]bool{}
	for _, p := range packs {
		locales[p.Locale] = true
	}
	if !locales["en"] || !locales["ro"] {
		t.Errorf("expected en and ro built-ins, got %v", locales)
	}
}
