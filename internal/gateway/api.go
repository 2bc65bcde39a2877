// ABOUTME: HTTP API handlers for chat turns, session management, consent, and intent detection
// ABOUTME: Provides the REST surface mirrored by the websocket channel

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/call-gateway/internal/provider"
	"github.com/2389/call-gateway/internal/store"
	"github.com/2389/call-gateway/internal/turns"
)

// ChatRequest is the JSON request body for POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
	Time      string `json:"time"`
}

// TurnResponse is the JSON view of one transcript turn.
type TurnResponse struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SessionResponse is the JSON response for GET /api/sessions/{id}.
type SessionResponse struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	StartedAt    string         `json:"started_at"`
	EndedAt      string         `json:"ended_at,omitempty"`
	VoiceEnabled bool           `json:"voice_enabled"`
	VideoEnabled bool           `json:"video_enabled"`
	Turns        []TurnResponse `json:"turns"`
}

// SessionSummaryResponse is one entry in the GET /api/sessions listing.
type SessionSummaryResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at"`
	EndedAt      string `json:"ended_at,omitempty"`
	VoiceEnabled bool   `json:"voice_enabled"`
	TurnCount    int    `json:"turn_count"`
}

// ListSessionsResponse is the JSON response for GET /api/sessions.
type ListSessionsResponse struct {
	Sessions []SessionSummaryResponse `json:"sessions"`
}

// ConsentRequest is the JSON request body for POST /api/consent.
type ConsentRequest struct {
	UserName string `json:"user_name"`
	Consent  bool   `json:"consent"`
}

// ConsentResponse is the JSON response for POST /api/consent.
type ConsentResponse struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// IntentRequest is the JSON request body for POST /api/intent.
type IntentRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// IntentResponse is the JSON response for POST /api/intent.
type IntentResponse struct {
	Text       string  `json:"text"`
	Intent     string  `json:"intent,omitempty"`
	Confidence float64 `json:"confidence"`
}

// handleChat handles POST /api/chat requests.
// A missing session_id allocates a fresh session, so one-shot clients can
// chat without managing the session lifecycle.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		session, err := g.store.OpenSession(r.Context(), false, false)
		if err != nil {
			g.logger.Error("failed to open session", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		sessionID = session.ID
	}

	locale := req.Locale
	if locale == "" {
		locale = g.config.Resolver.DefaultLocale
	}

	result, err := g.processor.ProcessTurn(r.Context(), sessionID, req.Message, locale)
	switch {
	case errors.Is(err, turns.ErrInvalidInput):
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	case errors.Is(err, store.ErrSessionNotFound):
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, store.ErrSessionClosed):
		g.sendJSONError(w, http.StatusConflict, "session is closed")
		return
	case err != nil:
		g.logger.Error("failed to process turn", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, ChatResponse{
		Response:  result.Text,
		Source:    result.Source,
		SessionID: sessionID,
		Time:      result.Elapsed.Round(time.Millisecond).String(),
	})
}

// handleListSessions handles GET /api/sessions requests.
// Supports optional ?status=active|closed and ?limit=N query parameters.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter := store.SessionFilter{Status: r.URL.Query().Get("status")}
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	summaries, err := g.store.ListSessions(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListSessionsResponse{Sessions: make([]SessionSummaryResponse, 0, len(summaries))}
	for _, s := range summaries {
		entry := SessionSummaryResponse{
			ID:           s.ID,
			Status:       s.Status,
			StartedAt:    s.StartedAt.Format(time.RFC3339),
			VoiceEnabled: s.VoiceEnabled,
			TurnCount:    s.TurnCount,
		}
		if s.EndedAt != nil {
			entry.EndedAt = s.EndedAt.Format(time.RFC3339)
		}
		response.Sessions = append(response.Sessions, entry)
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleSessionByID handles GET and DELETE /api/sessions/{id} requests.
func (g *Gateway) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.getSession(w, r, sessionID)
	case http.MethodDelete:
		g.deleteSession(w, r, sessionID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := g.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := SessionResponse{
		ID:           session.ID,
		Status:       session.Status,
		StartedAt:    session.StartedAt.Format(time.RFC3339),
		VoiceEnabled: session.VoiceEnabled,
		VideoEnabled: session.VideoEnabled,
		Turns:        make([]TurnResponse, 0, len(session.Turns)),
	}
	if session.EndedAt != nil {
		response.EndedAt = session.EndedAt.Format(time.RFC3339)
	}
	for _, turn := range session.Turns {
		response.Turns = append(response.Turns, TurnResponse{
			Sender:    turn.Role,
			Content:   turn.Content,
			Source:    turn.Source,
			Timestamp: turn.Timestamp.Format(time.RFC3339),
		})
	}
	g.sendJSON(w, http.StatusOK, response)
}

func (g *Gateway) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	err := g.store.DeleteSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to delete session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConsent handles POST /api/consent requests.
// A consenting user receives a channel token for /ws/call access.
func (g *Gateway) handleConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.verifier == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "token auth is not configured")
		return
	}

	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.UserName) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_name is required")
		return
	}
	if !req.Consent {
		g.sendJSONError(w, http.StatusForbidden, "consent is required")
		return
	}

	userID := uuid.New().String()
	ttl := g.config.Auth.TokenTTL
	token, err := g.verifier.Generate(userID, ttl)
	if err != nil {
		g.logger.Error("failed to generate token", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("consent granted", "user_name", req.UserName, "user_id", userID, "ttl", ttl)
	g.sendJSON(w, http.StatusOK, ConsentResponse{
		UserID:    userID,
		Token:     token,
		ExpiresIn: int64(ttl.Seconds()),
	})
}

// handleIntent handles POST /api/intent requests.
// Intent detection is a diagnostic surface over the NLU provider; it does not
// touch session transcripts.
func (g *Gateway) handleIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.intents == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "intent detection is not configured")
		return
	}

	var req IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	intent, err := g.intents.DetectIntent(r.Context(), req.Message, req.SessionID)
	if err != nil {
		if errors.Is(err, provider.ErrServiceUnavailable) {
			g.sendJSONError(w, http.StatusBadGateway, "intent provider unavailable")
			return
		}
		g.logger.Error("intent detection failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, IntentResponse{
		Text:       intent.Text,
		Intent:     intent.Label,
		Confidence: intent.Confidence,
	})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseChatRequest parses and validates a ChatRequest from the given reader.
// Returns an error if the JSON is invalid or the message field is missing.
func parseChatRequest(r io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}
