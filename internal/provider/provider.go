// ABOUTME: Provider adapter contracts for the external speech/language services
// ABOUTME: Uniform fail-soft interfaces; callers absorb failures, adapters never panic

package provider

import (
	"context"
	"errors"
)

// Provider failure taxonomy. Callers match with errors.Is; none of these is
// ever surfaced raw past the resolver.
var (
	// ErrServiceError is any NLU or LLM provider failure.
	ErrServiceError = errors.New("provider service error")

	// ErrServiceUnavailable means the speech-to-text service could not be reached.
	ErrServiceUnavailable = errors.New("speech service unavailable")

	// ErrUnintelligible means audio reached the transcriber but produced no usable text.
	ErrUnintelligible = errors.New("audio unintelligible")

	// ErrGenerationError is a text-to-speech synthesis failure.
	ErrGenerationError = errors.New("voice generation error")
)

// Generator is the generative-LLM collaborator: prompt in, answer text out.
// Grounding passages, when present, are folded into the request context.
type Generator interface {
	Generate(ctx context.Context, prompt string, grounding []string) (string, error)
}

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	// Transcribe converts raw audio bytes to transcript text. The format hint
	// names the container ("wav", "webm", "mp3"). Fails with ErrUnintelligible
	// when no speech could be recognized, ErrServiceUnavailable otherwise.
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Synthesizer is the text-to-speech collaborator.
type Synthesizer interface {
	// Synthesize renders text as audio bytes using the selected voice.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Intent is an NLU detection result.
type Intent struct {
	Text       string  `json:"text"`
	Label      string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// IntentDetector is the natural-language-understanding collaborator.
type IntentDetector interface {
	DetectIntent(ctx context.Context, text, sessionID string) (*Intent, error)
}
