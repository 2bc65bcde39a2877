// ABOUTME: TurnProcessor is the central layer keeping transcript and resolution consistent
// ABOUTME: A resolution is never computed without being recorded, and vice versa

package turns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/call-gateway/internal/resolver"
	"github.com/2389/call-gateway/internal/store"
)

// ErrInvalidInput is returned for empty or whitespace-only utterances,
// before any provider call.
var ErrInvalidInput = errors.New("invalid input: empty utterance")

// TranscriptStore defines what the processor needs from storage.
type TranscriptStore interface {
	AppendTurn(ctx context.Context, sessionID, role, content, source string) error
}

// Resolver defines what the processor needs from the resolution engine.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) resolver.Result
}

// Processor orchestrates one conversational turn: validate, record the user
// side, resolve, record the agent side, return the result.
type Processor struct {
	store    TranscriptStore
	resolver Resolver
	logger   *slog.Logger
}

// New creates a turn processor.
func New(transcripts TranscriptStore, res Resolver, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    transcripts,
		resolver: res,
		logger:   logger.With("component", "turns"),
	}
}

// ProcessTurn handles one utterance for a session.
//
// Key principle: record first, then act. The user turn is appended BEFORE
// resolution so the transcript keeps the question even if resolution
// produces only the apology fallback. Resolution itself never fails; only
// transcript violations (unknown or closed session) and invalid input
// surface as errors.
func (p *Processor) ProcessTurn(ctx context.Context, sessionID, utterance, locale string) (resolver.Result, error) {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return resolver.Result{}, ErrInvalidInput
	}

	if err := p.store.AppendTurn(ctx, sessionID, store.RoleUser, trimmed, ""); err != nil {
		return resolver.Result{}, fmt.Errorf("recording user turn: %w", err)
	}

	result := p.resolver.Resolve(ctx, resolver.Request{
		Utterance: trimmed,
		SessionID: sessionID,
		Locale:    locale,
	})

	if err := p.store.AppendTurn(ctx, sessionID, store.RoleAgent, result.Text, result.Source); err != nil {
		return resolver.Result{}, fmt.Errorf("recording agent turn: %w", err)
	}

	p.logger.Debug("turn processed",
		"session_id", sessionID,
		"source", result.Source,
		"elapsed", result.Elapsed)
	return result, nil
}
