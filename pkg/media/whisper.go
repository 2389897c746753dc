package media

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// OpenAIWhisper transcribes through the hosted Whisper API.
type OpenAIWhisper struct {
	client *openai.Client
	model  string
}

// NewOpenAIWhisper creates a hosted-Whisper transcriber.
func NewOpenAIWhisper(apiKey, model string) (*OpenAIWhisper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("whisper transcription requires OPENAI_API_KEY")
	}
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIWhisper{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Transcribe implements Transcriber.
func (w *OpenAIWhisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return resp.Text, nil
}
