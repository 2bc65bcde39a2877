// ABOUTME: Tests for the duplex conversation channel
// ABOUTME: Uses a scripted connection; covers lifecycle, audio drop, voice, and close guarantees

package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/call-gateway/internal/provider"
	"github.com/2389/call-gateway/internal/resolver"
	"github.com/2389/call-gateway/internal/store"
	"github.com/2389/call-gateway/internal/turns"
)

// scriptConn feeds a fixed sequence of inbound frames and records writes.
type scriptConn struct {
	mu      sync.Mutex
	frames  [][]byte
	next    int
	readErr error // returned after the script runs out; defaults to a normal close
	writes  [][]byte
	closed  bool
}

func (s *scriptConn) ReadMessage() (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.frames) {
		if s.readErr != nil {
			return 0, nil, s.readErr
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	frame := s.frames[s.next]
	s.next++
	return websocket.TextMessage, frame, nil
}

func (s *scriptConn) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, data)
	return nil
}

func (s *scriptConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptConn) sent(t *testing.T) []outboundMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outboundMessage, 0, len(s.writes))
	for _, data := range s.writes {
		var msg outboundMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		out = append(out, msg)
	}
	return out
}

type fakeProcessor struct {
	mu     sync.Mutex
	calls  []string
	result resolver.Result
	err    error
}

func (f *fakeProcessor) ProcessTurn(_ context.Context, _, utterance, _ string) (resolver.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, utterance)
	if f.err != nil {
		return resolver.Result{}, f.err
	}
	return f.result, nil
}

type fakeSessions struct {
	mu      sync.Mutex
	opened  int
	closed  []string
	openErr error
}

func (f *fakeSessions) OpenSession(_ context.Context, voice, video bool) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &store.Session{ID: fmt.Sprintf("session-%d", f.opened), Status: store.StatusActive,
		VoiceEnabled: voice, VideoEnabled: video}, nil
}

func (f *fakeSessions) CloseSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	audio []byte
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _, _ string) ([]byte, error) {
	return f.audio, f.err
}

func textFrame(t *testing.T, message string) []byte {
	t.Helper()
	data, err := json.Marshal(inboundMessage{Type: "text", Message: message})
	require.NoError(t, err)
	return data
}

func audioFrame(t *testing.T, audio []byte) []byte {
	t.Helper()
	data, err := json.Marshal(inboundMessage{
		Type:   "audio",
		Bytes:  base64.StdEncoding.EncodeToString(audio),
		Format: "webm",
	})
	require.NoError(t, err)
	return data
}

func TestChannel_TextTurn(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{textFrame(t, "how many countries are there?")}}
	proc := &fakeProcessor{result: resolver.Result{Text: "There are 195 countries.", Source: resolver.SourceExactMatch}}
	sessions := &fakeSessions{}

	ch := New(conn, proc, sessions, nil, nil, "Hello!", Config{Locale: "en"}, nil)
	require.NoError(t, ch.Run(context.Background()))

	sent := conn.sent(t)
	require.Len(t, sent, 2, "greeting plus one turn")
	assert.Equal(t, "Hello!", sent[0].Response)
	assert.Equal(t, "how many countries are there?", sent[1].Text)
	assert.Equal(t, "There are 195 countries.", sent[1].Response)
	assert.Equal(t, resolver.SourceExactMatch, sent[1].Source)
	assert.Empty(t, sent[1].Bytes, "no audio without a voice")
}

func TestChannel_LifecycleStates(t *testing.T) {
	conn := &scriptConn{}
	sessions := &fakeSessions{}
	ch := New(conn, &fakeProcessor{}, sessions, nil, nil, "", Config{}, nil)

	assert.Equal(t, StateOpening, ch.State())
	require.NoError(t, ch.Run(context.Background()))
	assert.Equal(t, StateTerminated, ch.State())
	assert.True(t, conn.closed)
	assert.Equal(t, []string{"session-1"}, sessions.closed)
}

func TestChannel_ClosesSessionOnTransportError(t *testing.T) {
	conn := &scriptConn{readErr: errors.New("connection reset")}
	sessions := &fakeSessions{}
	ch := New(conn, &fakeProcessor{}, sessions, nil, nil, "", Config{}, nil)

	err := ch.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateTerminated, ch.State())
	assert.Len(t, sessions.closed, 1, "session closed even on abnormal disconnect")
}

func TestChannel_NormalCloseFrame(t *testing.T) {
	conn := &scriptConn{readErr: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
	sessions := &fakeSessions{}
	ch := New(conn, &fakeProcessor{}, sessions, nil, nil, "", Config{}, nil)

	require.NoError(t, ch.Run(context.Background()))
	assert.Len(t, sessions.closed, 1)
}

func TestChannel_BindsExistingSession(t *testing.T) {
	conn := &scriptConn{}
	sessions := &fakeSessions{}
	ch := New(conn, &fakeProcessor{}, sessions, nil, nil, "", Config{SessionID: "existing"}, nil)

	require.NoError(t, ch.Run(context.Background()))
	assert.Zero(t, sessions.opened, "no new session allocated")
	assert.Equal(t, []string{"existing"}, sessions.closed)
	assert.Equal(t, "existing", ch.SessionID())
}

func TestChannel_AudioTurn(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{audioFrame(t, []byte("pcm bytes"))}}
	proc := &fakeProcessor{result: resolver.Result{Text: "answer", Source: resolver.SourceGenerativeFallback}}
	stt := &fakeTranscriber{text: "spoken question"}

	ch := New(conn, proc, &fakeSessions{}, stt, nil, "", Config{}, nil)
	require.NoError(t, ch.Run(context.Background()))

	assert.Equal(t, []string{"spoken question"}, proc.calls)
	sent := conn.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "spoken question", sent[0].Text)
}

func TestChannel_UnintelligibleAudioDroppedSilently(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{
		audioFrame(t, []byte("noise")),
		textFrame(t, "still here"),
	}}
	proc := &fakeProcessor{result: resolver.Result{Text: "yes", Source: resolver.SourceExactMatch}}
	stt := &fakeTranscriber{err: provider.ErrUnintelligible}

	ch := New(conn, proc, &fakeSessions{}, stt, nil, "", Config{}, nil)
	require.NoError(t, ch.Run(context.Background()))

	assert.Equal(t, []string{"still here"}, proc.calls, "audio unit produced no turn")
	sent := conn.sent(t)
	require.Len(t, sent, 1, "no error frame for dropped audio")
	assert.Equal(t, "still here", sent[0].Text)
}

func TestChannel_UndecodableAudioDropped(t *testing.T) {
	frame, err := json.Marshal(inboundMessage{Type: "audio", Bytes: "not base64!!!"})
	require.NoError(t, err)
	conn := &scriptConn{frames: [][]byte{frame}}
	proc := &fakeProcessor{result: resolver.Result{Text: "yes"}}

	ch := New(conn, proc, &fakeSessions{}, &fakeTranscriber{text: "x"}, nil, "", Config{}, nil)
	require.NoError(t, ch.Run(context.Background()))
	assert.Empty(t, proc.calls)
}

func TestChannel_VoiceReply(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{textFrame(t, "hello")}}
	proc := &fakeProcessor{result: resolver.Result{Text: "hi there", Source: resolver.SourceExactMatch}}
	tts := &fakeSynthesizer{audio: []byte("mp3 bytes")}

	ch := New(conn, proc, &fakeSessions{}, nil, tts, "", Config{Voice: "rachel"}, nil)
	require.NoError(t, ch.Run(context.Background()))

	sent := conn.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3 bytes")), sent[0].Bytes)
}

func TestChannel_SynthesisFailureDegradesToText(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{textFrame(t, "hello")}}
	proc := &fakeProcessor{result: resolver.Result{Text: "hi there", Source: resolver.SourceExactMatch}}
	tts := &fakeSynthesizer{err: errors.New("tts down")}

	ch := New(conn, proc, &fakeSessions{}, nil, tts, "", Config{Voice: "rachel"}, nil)
	require.NoError(t, ch.Run(context.Background()))

	sent := conn.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "hi there", sent[0].Response, "turn still delivered")
	assert.Empty(t, sent[0].Bytes)
}

func TestChannel_EmptyUtteranceErrorFrame(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{textFrame(t, "   ")}}
	proc := &fakeProcessor{err: turns.ErrInvalidInput}

	ch := New(conn, proc, &fakeSessions{}, nil, nil, "", Config{}, nil)
	require.NoError(t, ch.Run(context.Background()))

	sent := conn.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "error", sent[0].Type)
	assert.Equal(t, StateTerminated, ch.State())
}

func TestChannel_UnknownMessageType(t *testing.T) {
	frame, err := json.Marshal(inboundMessage{Type: "video"})
	require.NoError(t, err)
	conn := &scriptConn{frames: [][]byte{frame}}
	proc := &fakeProcessor{}

	ch := New(conn, proc, &fakeSessions{}, nil, nil, "", Config{}, nil)
	require.NoError(t, ch.Run(context.Background()))

	sent := conn.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "error", sent[0].Type)
	assert.Empty(t, proc.calls)
}

func TestChannel_MalformedJSON(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{[]byte("{not json")}}
	ch := New(conn, &fakeProcessor{}, &fakeSessions{}, nil, nil, "", Config{}, nil)
	require.NoError(t, ch.Run(context.Background()))

	sent := conn.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "error", sent[0].Type)
}

func TestChannel_TurnFailureTerminatesButCloses(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{
		textFrame(t, "first"),
		textFrame(t, "never processed"),
	}}
	proc := &fakeProcessor{err: store.ErrSessionClosed}
	sessions := &fakeSessions{}

	ch := New(conn, proc, sessions, nil, nil, "", Config{}, nil)
	err := ch.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSessionClosed)
	assert.Len(t, proc.calls, 1)
	assert.Len(t, sessions.closed, 1)
}

func TestChannel_OpenFailure(t *testing.T) {
	conn := &scriptConn{}
	sessions := &fakeSessions{openErr: errors.New("db down")}

	ch := New(conn, &fakeProcessor{}, sessions, nil, nil, "", Config{}, nil)
	err := ch.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateTerminated, ch.State())
	assert.True(t, conn.closed)
	assert.Empty(t, sessions.closed, "nothing to close when open failed")
}

func TestChannel_ContextCancellationStopsServing(t *testing.T) {
	conn := &scriptConn{frames: [][]byte{textFrame(t, "hello")}}
	sessions := &fakeSessions{}
	ch := New(conn, &fakeProcessor{}, sessions, nil, nil, "", Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, ch.Run(ctx))
	assert.Len(t, sessions.closed, 1, "session still closed after cancellation")
}
