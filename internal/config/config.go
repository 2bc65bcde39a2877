// ABOUTME: Configuration loading and parsing for call-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/call-gateway/internal/resolver"
)

// Config represents the complete call-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Providers ProvidersConfig `yaml:"providers"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// ProvidersConfig holds all external provider configuration
type ProvidersConfig struct {
	OpenAI     OpenAIConfig     `yaml:"openai"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Dialogflow DialogflowConfig `yaml:"dialogflow"`
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	ChatModel          string `yaml:"chat_model"`
	EmbeddingModel     string `yaml:"embedding_model"`
	TranscriptionModel string `yaml:"transcription_model"`
	MaxTokens          int    `yaml:"max_tokens"`
}

// ElevenLabsConfig holds ElevenLabs voice synthesis configuration
type ElevenLabsConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Voice   string `yaml:"voice"`
}

// DialogflowConfig holds Dialogflow CX intent detection configuration
type DialogflowConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ProjectID    string `yaml:"project_id"`
	Location     string `yaml:"location"`
	AgentID      string `yaml:"agent_id"`
	LanguageCode string `yaml:"language_code"`
	AccessToken  string `yaml:"access_token"`
}

// RetrievalConfig holds knowledge corpus and index configuration
type RetrievalConfig struct {
	DocsDir      string `yaml:"docs_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
}

// ResolverConfig holds resolution cascade configuration
type ResolverConfig struct {
	DefaultLocale string `yaml:"default_locale"`

	// Locales overrides the built-in locale packs when non-empty.
	Locales []resolver.LocalePack `yaml:"locales"`

	ProviderTimeout    time.Duration `yaml:"-"`
	ProviderTimeoutRaw string        `yaml:"provider_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with sensible defaults. Loading a file
// overlays the defaults, so a minimal config only needs the required fields.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "0.0.0.0:8080"},
		Database: DatabaseConfig{Path: "./call-gateway.db"},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				ChatModel:          "gpt-4o",
				EmbeddingModel:     "text-embedding-3-small",
				TranscriptionModel: "whisper-1",
				MaxTokens:          150,
			},
			Dialogflow: DialogflowConfig{
				Location:     "global",
				LanguageCode: "en",
			},
		},
		Retrieval: RetrievalConfig{
			DocsDir:      "./docs",
			ChunkSize:    300,
			ChunkOverlap: 30,
			TopK:         2,
		},
		Resolver: ResolverConfig{
			DefaultLocale:   "en",
			ProviderTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("providers.openai.api_key is required")
	}

	if c.Providers.ElevenLabs.Enabled {
		if c.Providers.ElevenLabs.APIKey == "" {
			return fmt.Errorf("providers.elevenlabs.api_key is required when elevenlabs is enabled")
		}
		if c.Providers.ElevenLabs.Voice == "" {
			return fmt.Errorf("providers.elevenlabs.voice is required when elevenlabs is enabled")
		}
	}

	if c.Providers.Dialogflow.Enabled {
		if c.Providers.Dialogflow.ProjectID == "" {
			return fmt.Errorf("providers.dialogflow.project_id is required when dialogflow is enabled")
		}
		if c.Providers.Dialogflow.AgentID == "" {
			return fmt.Errorf("providers.dialogflow.agent_id is required when dialogflow is enabled")
		}
	}

	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive")
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be non-negative and smaller than chunk_size")
	}

	for i, pack := range c.Resolver.Locales {
		if pack.Locale == "" {
			return fmt.Errorf("resolver.locales[%d].locale is required", i)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	return nil
}

// LocalePacks returns the configured locale packs, falling back to the
// built-in English and Romanian packs when none are configured.
func (c *Config) LocalePacks() []resolver.LocalePack {
	if len(c.Resolver.Locales) > 0 {
		return c.Resolver.Locales
	}
	return resolver.DefaultLocalePacks()
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Auth.TokenTTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
		cfg.Auth.TokenTTL = ttl
	}

	if cfg.Resolver.ProviderTimeoutRaw != "" {
		timeout, err := time.ParseDuration(cfg.Resolver.ProviderTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing provider_timeout %q: %w", cfg.Resolver.ProviderTimeoutRaw, err)
		}
		cfg.Resolver.ProviderTimeout = timeout
	}

	return nil
}
