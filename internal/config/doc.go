// Package config handles configuration loading for call-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "24h"
//	resolver:
//	  provider_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/call-gateway/sessions.db"
//
// Providers:
//
//	providers:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//	    chat_model: "gpt-4o"
//	    embedding_model: "text-embedding-3-small"
//	    transcription_model: "whisper-1"
//	  elevenlabs:
//	    enabled: true
//	    api_key: "${ELEVENLABS_API_KEY}"
//	    voice: "EXAVITQu4vr4xnSDxMaL"
//	  dialogflow:
//	    enabled: false
//	    project_id: "my-project"
//	    agent_id: "my-agent"
//
// Retrieval:
//
//	retrieval:
//	  docs_dir: "./docs"
//	  chunk_size: 300
//	  chunk_overlap: 30
//	  top_k: 2
//
// Resolver:
//
//	resolver:
//	  default_locale: "en"
//	  provider_timeout: "10s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Required addresses, paths, and API keys
//   - Provider sections that are enabled but incomplete
//   - Chunking parameters
//   - Duration format validity
//
// # Usage
//
//	cfg, err := config.Load("/etc/call-gateway/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
