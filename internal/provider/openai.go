// ABOUTME: OpenAI-backed Generator, Transcriber, and embedding adapter
// ABOUTME: Wraps github.com/sashabaranov/go-openai behind narrow client interfaces

package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient captures the subset of the go-openai client used for generation,
// so tests can pass a fake instead of the real SDK client.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AudioClient captures the transcription subset of the go-openai client.
type AudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// EmbeddingClient captures the embeddings subset of the go-openai client.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIOptions configures the OpenAI adapter.
type OpenAIOptions struct {
	ChatModel      string // default: gpt-4o
	EmbeddingModel string // default: text-embedding-3-small
	WhisperModel   string // default: whisper-1
	Temperature    float32
	MaxTokens      int // completion cap, keeps spoken answers short
}

// OpenAI adapts the OpenAI API to the Generator and Transcriber contracts and
// provides embeddings for the retrieval index.
type OpenAI struct {
	chat      ChatClient
	audio     AudioClient
	embedding EmbeddingClient
	opts      OpenAIOptions
	logger    *slog.Logger
}

// NewOpenAI builds the adapter from an API key using the default SDK client.
func NewOpenAI(apiKey string, opts OpenAIOptions) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	client := openai.NewClient(apiKey)
	return NewOpenAIFromClients(client, client, client, opts), nil
}

// NewOpenAIFromClients builds the adapter from explicit client subsets.
// Tests use this to substitute fakes.
func NewOpenAIFromClients(chat ChatClient, audio AudioClient, embedding EmbeddingClient, opts OpenAIOptions) *OpenAI {
	if opts.ChatModel == "" {
		opts.ChatModel = openai.GPT4o
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if opts.WhisperModel == "" {
		opts.WhisperModel = openai.Whisper1
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 150
	}
	return &OpenAI{
		chat:      chat,
		audio:     audio,
		embedding: embedding,
		opts:      opts,
		logger:    slog.Default().With("component", "openai"),
	}
}

// Generate renders a chat completion for the prompt. Grounding passages are
// supplied to the model as a context system message.
func (o *OpenAI) Generate(ctx context.Context, prompt string, grounding []string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if len(grounding) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Use the following context to answer:\n\n" + strings.Join(grounding, "\n\n"),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := o.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.opts.ChatModel,
		Messages:    messages,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceError, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrServiceError)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcribe converts audio bytes to text via the Whisper endpoint.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", ErrUnintelligible
	}
	if format == "" {
		format = "wav"
	}

	resp, err := o.audio.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.opts.WhisperModel,
		Reader:   bytes.NewReader(audio),
		FilePath: "utterance." + format, // name only; the SDK uses it for format detection
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}

// Embed returns one embedding vector per input text.
func (o *OpenAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	resp, err := o.embedding.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: inputs,
		Model: openai.EmbeddingModel(o.opts.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceError, err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrServiceError, len(resp.Data), len(inputs))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
