// ABOUTME: Gateway orchestrator that owns the HTTP server and wires the pipeline
// ABOUTME: Manages store, providers, resolver, and graceful shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/call-gateway/internal/auth"
	"github.com/2389/call-gateway/internal/channel"
	"github.com/2389/call-gateway/internal/config"
	"github.com/2389/call-gateway/internal/provider"
	"github.com/2389/call-gateway/internal/store"
)

// Gateway orchestrates the call-gateway server components.
// It manages the HTTP server for the REST API and websocket conversations.
type Gateway struct {
	config     *config.Config
	store      store.SessionStore
	processor  channel.TurnProcessor
	httpServer *http.Server
	logger     *slog.Logger

	// Optional providers; nil disables the corresponding surface.
	transcriber provider.Transcriber
	synthesizer provider.Synthesizer
	intents     provider.IntentDetector

	// verifier issues and checks channel tokens; nil disables auth.
	verifier *auth.JWTVerifier

	// serverID identifies this gateway instance
	serverID string
}

// Options carries the dependencies for New. Config, Store, and Processor are
// required; the rest degrade gracefully when absent.
type Options struct {
	Config      *config.Config
	Store       store.SessionStore
	Processor   channel.TurnProcessor
	Transcriber provider.Transcriber
	Synthesizer provider.Synthesizer
	Intents     provider.IntentDetector
	Logger      *slog.Logger
}

// New creates a new Gateway instance with the given dependencies.
func New(opts Options) (*Gateway, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("turn processor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gw := &Gateway{
		config:      opts.Config,
		store:       opts.Store,
		processor:   opts.Processor,
		transcriber: opts.Transcriber,
		synthesizer: opts.Synthesizer,
		intents:     opts.Intents,
		logger:      logger.With("component", "gateway"),
		serverID:    generateServerID(),
	}

	if secret := opts.Config.Auth.JWTSecret; secret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(secret))
		gw.logger.Info("channel token auth enabled")
	} else {
		gw.logger.Warn("channel token auth disabled - no jwt_secret configured")
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	mux.HandleFunc("/api/chat", gw.handleChat)
	mux.HandleFunc("/api/sessions", gw.handleListSessions)
	mux.HandleFunc("/api/sessions/", gw.handleSessionByID)
	mux.HandleFunc("/api/consent", gw.handleConsent)
	mux.HandleFunc("/api/intent", gw.handleIntent)
	mux.HandleFunc("/ws/call", gw.handleCall)

	gw.httpServer = &http.Server{
		Addr:              opts.Config.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler exposes the HTTP handler for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server. Open websocket channels close
// their own sessions as their connections drop.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the session store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListSessions(r.Context(), store.SessionFilter{Limit: 1}); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("call-gateway-%d", time.Now().UnixNano()%1000000)
}
