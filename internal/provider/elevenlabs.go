// ABOUTME: ElevenLabs text-to-speech adapter over the plain HTTP synthesis endpoint
// ABOUTME: Implements Synthesizer; returns mp3 audio bytes for a rendered response

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const elevenLabsDefaultBaseURL = "https://api.elevenlabs.io/v1"

// elevenLabsModel is the multilingual model; responses may be Romanian or English.
const elevenLabsModel = "eleven_multilingual_v2"

// ElevenLabs implements Synthesizer against the ElevenLabs HTTP API.
type ElevenLabs struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	httpClient   *http.Client
}

// NewElevenLabs creates the adapter. defaultVoice is used when the caller
// passes an empty voice selector.
func NewElevenLabs(apiKey, defaultVoice string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      elevenLabsDefaultBaseURL,
		defaultVoice: defaultVoice,
		httpClient:   &http.Client{},
	}
}

// WithBaseURL overrides the API base URL. Tests point this at a local server.
func (e *ElevenLabs) WithBaseURL(base string) *ElevenLabs {
	base = strings.TrimSpace(base)
	if base != "" {
		e.baseURL = strings.TrimRight(base, "/")
	}
	return e
}

type elevenLabsRequest struct {
	Text          string                 `json:"text"`
	ModelID       string                 `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize renders text as audio bytes using the selected voice.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrGenerationError)
	}
	if voice == "" {
		voice = e.defaultVoice
	}
	if voice == "" {
		return nil, fmt.Errorf("%w: no voice selected", ErrGenerationError)
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: elevenLabsModel,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationError, err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", e.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationError, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationError, err)
	}
	return audio, nil
}
