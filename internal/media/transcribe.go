package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// AudioClient is the transcription slice of the OpenAI client.
type AudioClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Transcriber turns decrypted voice notes into text through the Whisper API.
type Transcriber struct {
	client AudioClient
	logger *logging.Logger
}

// NewTranscriber builds a Transcriber. A nil client is allowed; Transcribe
// then reports the service as unavailable.
func NewTranscriber(client AudioClient, logger *logging.Logger) *Transcriber {
	if logger == nil {
		logger = logging.Default()
	}
	return &Transcriber{client: client, logger: logger}
}

// Available reports whether a transcription backend is configured.
func (t *Transcriber) Available() bool { return t.client != nil }

// Transcribe sends decrypted OGG audio to Whisper and returns the text.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if t.client == nil {
		return "", fmt.Errorf("media: transcription client not configured")
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "voice-note.ogg",
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("media: whisper transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	t.logger.Info("audio transcribed", "chars", len(text))
	return text, nil
}
