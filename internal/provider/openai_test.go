// ABOUTME: Tests for the OpenAI adapter using fake client subsets
// ABOUTME: Verifies grounding message composition and failure mapping

package provider

import (
	"context"
	"errors"
	"io"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	lastReq openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeAudioClient struct {
	lastReq openai.AudioRequest
	resp    openai.AudioResponse
	err     error
}

func (f *fakeAudioClient) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeEmbeddingClient struct {
	resp openai.EmbeddingResponse
	err  error
}

func (f *fakeEmbeddingClient) CreateEmbeddings(_ context.Context, _ openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return f.resp, f.err
}

func newTestAdapter(chat *fakeChatClient, audio *fakeAudioClient, emb *fakeEmbeddingClient) *OpenAI {
	if chat == nil {
		chat = &fakeChatClient{}
	}
	if audio == nil {
		audio = &fakeAudioClient{}
	}
	if emb == nil {
		emb = &fakeEmbeddingClient{}
	}
	return NewOpenAIFromClients(chat, audio, emb, OpenAIOptions{})
}

func TestOpenAI_Generate(t *testing.T) {
	chat := &fakeChatClient{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "  195 countries.  "}},
			},
		},
	}
	adapter := newTestAdapter(chat, nil, nil)

	got, err := adapter.Generate(context.Background(), "how many countries", nil)
	require.NoError(t, err)
	assert.Equal(t, "195 countries.", got)

	require.Len(t, chat.lastReq.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, chat.lastReq.Messages[0].Role)
}

func TestOpenAI_Generate_WithGrounding(t *testing.T) {
	chat := &fakeChatClient{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "answer"}},
			},
		},
	}
	adapter := newTestAdapter(chat, nil, nil)

	_, err := adapter.Generate(context.Background(), "question", []string{"passage one", "passage two"})
	require.NoError(t, err)

	require.Len(t, chat.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, chat.lastReq.Messages[0].Role)
	assert.Contains(t, chat.lastReq.Messages[0].Content, "passage one")
	assert.Contains(t, chat.lastReq.Messages[0].Content, "passage two")
}

func TestOpenAI_Generate_ServiceError(t *testing.T) {
	chat := &fakeChatClient{err: errors.New("rate limited")}
	adapter := newTestAdapter(chat, nil, nil)

	_, err := adapter.Generate(context.Background(), "question", nil)
	assert.ErrorIs(t, err, ErrServiceError)
}

func TestOpenAI_Transcribe(t *testing.T) {
	audio := &fakeAudioClient{resp: openai.AudioResponse{Text: " hello there "}}
	adapter := newTestAdapter(nil, audio, nil)

	got, err := adapter.Transcribe(context.Background(), []byte{1, 2, 3}, "webm")
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
	assert.Equal(t, "utterance.webm", audio.lastReq.FilePath)

	data, err := io.ReadAll(audio.lastReq.Reader)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestOpenAI_Transcribe_EmptyResult(t *testing.T) {
	audio := &fakeAudioClient{resp: openai.AudioResponse{Text: "   "}}
	adapter := newTestAdapter(nil, audio, nil)

	_, err := adapter.Transcribe(context.Background(), []byte{1}, "wav")
	assert.ErrorIs(t, err, ErrUnintelligible)
}

func TestOpenAI_Transcribe_NoAudio(t *testing.T) {
	adapter := newTestAdapter(nil, nil, nil)

	_, err := adapter.Transcribe(context.Background(), nil, "wav")
	assert.ErrorIs(t, err, ErrUnintelligible)
}

func TestOpenAI_Transcribe_ServiceDown(t *testing.T) {
	audio := &fakeAudioClient{err: errors.New("connection refused")}
	adapter := newTestAdapter(nil, audio, nil)

	_, err := adapter.Transcribe(context.Background(), []byte{1}, "wav")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestOpenAI_Embed(t *testing.T) {
	emb := &fakeEmbeddingClient{
		resp: openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Embedding: []float32{0.1, 0.2}},
				{Embedding: []float32{0.3, 0.4}},
			},
		},
	}
	adapter := newTestAdapter(nil, nil, emb)

	vectors, err := adapter.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestOpenAI_Embed_CountMismatch(t *testing.T) {
	emb := &fakeEmbeddingClient{
		resp: openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: []float32{0.1}}}},
	}
	adapter := newTestAdapter(nil, nil, emb)

	_, err := adapter.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrServiceError)
}
