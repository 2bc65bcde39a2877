// ABOUTME: Entry point for the call-gateway conversation server
// ABOUTME: Wires store, providers, resolver, and HTTP gateway together

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/call-gateway/internal/config"
	"github.com/2389/call-gateway/internal/gateway"
	"github.com/2389/call-gateway/internal/provider"
	"github.com/2389/call-gateway/internal/resolver"
	"github.com/2389/call-gateway/internal/retrieval"
	"github.com/2389/call-gateway/internal/store"
	"github.com/2389/call-gateway/internal/turns"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
          _ _                 _
  ___ __ _| | |      __ _  __ _| |_ _____      ____ _ _   _
 / __/ _' | | |_____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| (_| | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___\__,_|_|_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                     |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: CALL_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/call-gateway/config.yaml > ~/.config/call-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CALL_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "call-gateway", "config.yaml")
}

// getDataPath returns the path to the call-gateway data directory.
// Priority: XDG_DATA_HOME/call-gateway > ~/.local/share/call-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "call-gateway")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: call-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the gateway server")
		fmt.Println("  init       Create a new config file interactively")
		fmt.Println("  health     Check gateway health")
		fmt.Println("  sessions   List recorded sessions")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", dbPath(cfg))
	green.Print("    ▶ ")
	fmt.Printf("Docs:      %s\n", cfg.Retrieval.DocsDir)

	if cfg.Providers.ElevenLabs.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Voice:     ")
		cyan.Println(cfg.Providers.ElevenLabs.Voice)
	}
	if cfg.Providers.Dialogflow.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Intents:   ")
		yellow.Println(cfg.Providers.Dialogflow.ProjectID + "/" + cfg.Providers.Dialogflow.AgentID)
	}

	fmt.Println()

	logger.Info("starting call-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	s, err := store.NewSQLiteStore(dbPath(cfg))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	opts, err := buildGatewayOptions(cfg, s, logger)
	if err != nil {
		return err
	}

	gw, err := gateway.New(*opts)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// dbPath resolves the database path, allowing an environment override.
func dbPath(cfg *config.Config) string {
	if envPath := os.Getenv("CALL_GATEWAY_DB_PATH"); envPath != "" {
		return envPath
	}
	return cfg.Database.Path
}

// buildGatewayOptions wires providers, retrieval, and the resolver cascade
// into the option set the gateway consumes.
func buildGatewayOptions(cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) (*gateway.Options, error) {
	ai, err := provider.NewOpenAI(cfg.Providers.OpenAI.APIKey, provider.OpenAIOptions{
		ChatModel:      cfg.Providers.OpenAI.ChatModel,
		EmbeddingModel: cfg.Providers.OpenAI.EmbeddingModel,
		WhisperModel:   cfg.Providers.OpenAI.TranscriptionModel,
		MaxTokens:      cfg.Providers.OpenAI.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating openai provider: %w", err)
	}

	knowledge := retrieval.NewHandle(retrieval.Config{
		DocsDir:      cfg.Retrieval.DocsDir,
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
	}, ai)

	res := resolver.New(ai, knowledge, resolver.Options{
		Packs:           cfg.LocalePacks(),
		TopK:            cfg.Retrieval.TopK,
		ProviderTimeout: cfg.Resolver.ProviderTimeout,
	})

	opts := &gateway.Options{
		Config:      cfg,
		Store:       s,
		Processor:   turns.New(s, res, logger),
		Transcriber: ai,
		Logger:      logger,
	}

	if cfg.Providers.ElevenLabs.Enabled {
		opts.Synthesizer = provider.NewElevenLabs(cfg.Providers.ElevenLabs.APIKey, cfg.Providers.ElevenLabs.Voice)
	}

	if cfg.Providers.Dialogflow.Enabled {
		intents, err := provider.NewDialogflow(provider.DialogflowConfig{
			ProjectID:    cfg.Providers.Dialogflow.ProjectID,
			Location:     cfg.Providers.Dialogflow.Location,
			AgentID:      cfg.Providers.Dialogflow.AgentID,
			LanguageCode: cfg.Providers.Dialogflow.LanguageCode,
			AccessToken:  cfg.Providers.Dialogflow.AccessToken,
		})
		if err != nil {
			return nil, fmt.Errorf("creating dialogflow provider: %w", err)
		}
		opts.Intents = intents
	}

	return opts, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runSessions(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/sessions", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing sessions failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing sessions failed: status %d", resp.StatusCode)
	}

	var listing struct {
		Sessions []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			StartedAt string `json:"started_at"`
			TurnCount int    `json:"turn_count"`
		} `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(listing.Sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	for _, s := range listing.Sessions {
		fmt.Printf("%s  %-7s  %2d turns  %s\n", s.ID, s.Status, s.TurnCount, s.StartedAt)
	}
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("call-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "sessions.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbFile := prompt(reader, "SQLite database path", defaultDbPath)

	// Providers
	fmt.Println("\n--- Provider Configuration ---")
	fmt.Println("The OpenAI key is read from the OPENAI_API_KEY environment variable.")
	chatModel := prompt(reader, "Chat model", "gpt-4o")
	enableVoice := prompt(reader, "Enable ElevenLabs voice replies?", "no")
	voiceEnabled := strings.ToLower(enableVoice) == "yes" || strings.ToLower(enableVoice) == "y"
	var voice string
	if voiceEnabled {
		voice = prompt(reader, "ElevenLabs voice id", "EXAVITQu4vr4xnSDxMaL")
	}

	// Retrieval
	fmt.Println("\n--- Retrieval Configuration ---")
	docsDir := prompt(reader, "Knowledge docs directory", "./docs")

	// Resolver
	fmt.Println("\n--- Resolver Configuration ---")
	defaultLocale := prompt(reader, "Default locale (en/ro)", "en")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# call-gateway configuration\n")
	cfg.WriteString("# Generated by call-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbFile))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString("  jwt_secret: \"${CALL_GATEWAY_JWT_SECRET}\"\n")
	cfg.WriteString("  token_ttl: \"24h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	cfg.WriteString("  openai:\n")
	cfg.WriteString("    api_key: \"${OPENAI_API_KEY}\"\n")
	cfg.WriteString(fmt.Sprintf("    chat_model: \"%s\"\n", chatModel))
	cfg.WriteString("  elevenlabs:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", voiceEnabled))
	if voiceEnabled {
		cfg.WriteString("    api_key: \"${ELEVENLABS_API_KEY}\"\n")
		cfg.WriteString(fmt.Sprintf("    voice: \"%s\"\n", voice))
	}
	cfg.WriteString("\n")

	cfg.WriteString("retrieval:\n")
	cfg.WriteString(fmt.Sprintf("  docs_dir: \"%s\"\n", docsDir))
	cfg.WriteString("  chunk_size: 300\n")
	cfg.WriteString("  chunk_overlap: 30\n")
	cfg.WriteString("  top_k: 2\n")
	cfg.WriteString("\n")

	cfg.WriteString("resolver:\n")
	cfg.WriteString(fmt.Sprintf("  default_locale: \"%s\"\n", defaultLocale))
	cfg.WriteString("  provider_timeout: \"10s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbFile)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  call-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
