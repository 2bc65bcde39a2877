// ABOUTME: ConversationChannel drives a duplex websocket conversation for one session
// ABOUTME: State machine Opening -> Active -> Closing -> Terminated; audio units fail soft

package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/call-gateway/internal/provider"
	"github.com/2389/call-gateway/internal/resolver"
	"github.com/2389/call-gateway/internal/store"
	"github.com/2389/call-gateway/internal/turns"
)

// State is the channel lifecycle state.
type State int32

const (
	StateOpening State = iota
	StateActive
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Inbound/outbound frame types on the wire.
const (
	frameText          = "text"
	frameAudio         = "audio"
	frameTranscription = "transcription"
	frameError         = "error"
)

// inboundMessage is one unit received from the client.
type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Bytes   string `json:"bytes,omitempty"` // base64 audio
	Format  string `json:"format,omitempty"`
}

// outboundMessage is one unit emitted to the client.
type outboundMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"` // what the user said (typed or transcribed)
	Response string `json:"response,omitempty"`
	Source   string `json:"source,omitempty"`
	Bytes    string `json:"bytes,omitempty"` // base64 audio rendition of Response
	Error    string `json:"error,omitempty"`
}

// Conn captures the subset of *websocket.Conn the channel uses, so tests can
// substitute a scripted connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// TurnProcessor defines what the channel needs from the turn layer.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sessionID, utterance, locale string) (resolver.Result, error)
}

// SessionOpener defines what the channel needs from the session store.
type SessionOpener interface {
	OpenSession(ctx context.Context, voiceEnabled, videoEnabled bool) (*store.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// Config tunes one channel.
type Config struct {
	SessionID   string        // bind to an existing session; empty allocates one
	Locale      string        // greeting and resolution locale hint
	Voice       string        // TTS voice selector; empty disables audio replies
	TurnTimeout time.Duration // per-turn processing limit, default 30s
}

// Channel owns one duplex conversation. Not safe for concurrent Run calls;
// one goroutine drives the whole lifecycle, which is what guarantees that
// turns within a session are processed strictly in order.
type Channel struct {
	conn        Conn
	processor   TurnProcessor
	sessions    SessionOpener
	transcriber provider.Transcriber
	synthesizer provider.Synthesizer
	greeting    string
	cfg         Config
	logger      *slog.Logger

	mu        sync.Mutex
	state     State
	sessionID string
}

// New creates a channel. transcriber may be nil (text-only clients);
// synthesizer may be nil or Voice empty to disable audio replies.
func New(conn Conn, processor TurnProcessor, sessions SessionOpener,
	transcriber provider.Transcriber, synthesizer provider.Synthesizer,
	greeting string, cfg Config, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	return &Channel{
		conn:        conn,
		processor:   processor,
		sessions:    sessions,
		transcriber: transcriber,
		synthesizer: synthesizer,
		greeting:    greeting,
		cfg:         cfg,
		logger:      logger.With("component", "channel"),
		state:       StateOpening,
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the bound session id (empty until Opening completes).
func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drives the channel until disconnect, transport error, or context
// cancellation. It always terminates with the session durably closed: even
// when the peer vanishes mid-turn, the in-flight turn settles and the
// transcript is flushed before resources are released.
func (c *Channel) Run(ctx context.Context) error {
	sessionID, err := c.open(ctx)
	if err != nil {
		c.setState(StateTerminated)
		c.conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}

	runErr := c.serve(ctx, sessionID)

	c.setState(StateClosing)
	// Close with a fresh context: the request context may already be
	// cancelled, and losing the transcript is worse than a slow shutdown.
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.sessions.CloseSession(closeCtx, sessionID); err != nil {
		c.logger.Error("failed to close session", "session_id", sessionID, "error", err)
	}
	cancel()

	c.setState(StateTerminated)
	c.conn.Close()
	c.logger.Info("channel terminated", "session_id", sessionID)
	return runErr
}

// open allocates or binds the session and emits the greeting.
func (c *Channel) open(ctx context.Context) (string, error) {
	sessionID := c.cfg.SessionID
	if sessionID == "" {
		session, err := c.sessions.OpenSession(ctx, c.voiceEnabled(), false)
		if err != nil {
			return "", err
		}
		sessionID = session.ID
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.state = StateActive
	c.mu.Unlock()
	c.logger.Info("channel active", "session_id", sessionID, "voice", c.voiceEnabled())

	if c.greeting != "" {
		c.emit(outboundMessage{
			Type:     frameTranscription,
			Response: c.greeting,
		})
	}
	return sessionID, nil
}

// serve is the Active loop: one inbound unit in, at most one outbound turn out.
func (c *Channel) serve(ctx context.Context, sessionID string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				// Disconnect is a normal termination signal, not an error.
				return nil
			}
			c.logger.Warn("channel transport error", "session_id", sessionID, "error", err)
			return fmt.Errorf("channel transport: %w", err)
		}

		var msg inboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.emit(outboundMessage{Type: frameError, Error: "malformed message"})
			continue
		}

		utterance, ok := c.extractUtterance(ctx, msg)
		if !ok {
			continue // dropped audio unit, stay Active
		}

		turnCtx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
		result, err := c.processor.ProcessTurn(turnCtx, sessionID, utterance, c.cfg.Locale)
		cancel()
		if err != nil {
			if errors.Is(err, turns.ErrInvalidInput) {
				c.emit(outboundMessage{Type: frameError, Error: "empty message"})
				continue
			}
			// Transcript violations are unrecoverable for this channel.
			c.logger.Error("turn processing failed", "session_id", sessionID, "error", err)
			return fmt.Errorf("processing turn: %w", err)
		}

		out := outboundMessage{
			Type:     frameTranscription,
			Text:     utterance,
			Response: result.Text,
			Source:   result.Source,
		}
		if c.voiceEnabled() {
			out.Bytes = c.synthesizeReply(ctx, result.Text)
		}
		c.emit(out)
	}
}

// extractUtterance turns an inbound unit into text. Audio that cannot be
// decoded or transcribed is dropped silently: no turn is recorded and the
// channel stays Active.
func (c *Channel) extractUtterance(ctx context.Context, msg inboundMessage) (string, bool) {
	switch msg.Type {
	case frameText:
		return msg.Message, true

	case frameAudio:
		if c.transcriber == nil {
			c.logger.Warn("audio unit received but transcription is disabled")
			return "", false
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Bytes)
		if err != nil {
			c.logger.Debug("dropping undecodable audio unit", "error", err)
			return "", false
		}
		sttCtx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
		defer cancel()
		text, err := c.transcriber.Transcribe(sttCtx, audio, msg.Format)
		if err != nil {
			c.logger.Debug("dropping unintelligible audio unit", "error", err)
			return "", false
		}
		return text, true

	default:
		c.emit(outboundMessage{Type: frameError, Error: "unknown message type"})
		return "", false
	}
}

// synthesizeReply renders the response as base64 audio. TTS failure degrades
// to text-only output, never a dropped turn.
func (c *Channel) synthesizeReply(ctx context.Context, text string) string {
	ttsCtx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
	defer cancel()
	audio, err := c.synthesizer.Synthesize(ttsCtx, text, c.cfg.Voice)
	if err != nil {
		c.logger.Warn("voice synthesis failed, sending text only", "error", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(audio)
}

func (c *Channel) voiceEnabled() bool {
	return c.synthesizer != nil && c.cfg.Voice != ""
}

func (c *Channel) emit(msg outboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal outbound message", "error", err)
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("failed to write outbound message", "error", err)
	}
}
