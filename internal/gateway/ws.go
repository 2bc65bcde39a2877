// ABOUTME: Websocket endpoint that upgrades /ws/call requests into conversation channels
// ABOUTME: Handles token auth, locale selection, and channel lifecycle per connection

package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/2389/call-gateway/internal/channel"
	"github.com/2389/call-gateway/internal/resolver"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary origins; token auth is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleCall handles GET /ws/call requests.
// Query parameters: token (required when auth is enabled), session_id
// (optional, binds an existing session), locale (optional).
func (g *Gateway) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var userID string
	if g.verifier != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			g.sendJSONError(w, http.StatusUnauthorized, "token is required")
			return
		}
		var err error
		userID, err = g.verifier.Verify(token)
		if err != nil {
			g.sendJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = g.config.Resolver.DefaultLocale
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	voice := ""
	if g.synthesizer != nil {
		voice = g.config.Providers.ElevenLabs.Voice
	}

	ch := channel.New(conn, g.processor, g.store, g.transcriber, g.synthesizer,
		resolver.GreetingFor(g.config.LocalePacks(), locale),
		channel.Config{
			SessionID: r.URL.Query().Get("session_id"),
			Locale:    locale,
			Voice:     voice,
		}, g.logger)

	g.logger.Info("call connected", "user_id", userID, "locale", locale, "remote", r.RemoteAddr)
	if err := ch.Run(r.Context()); err != nil {
		g.logger.Warn("call ended with error", "session_id", ch.SessionID(), "error", err)
		return
	}
	g.logger.Info("call ended", "session_id", ch.SessionID())
}
