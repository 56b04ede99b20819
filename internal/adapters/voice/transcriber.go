package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/garagegate/internal/adapters"
)

// Transcriber converts audio to text. An empty string means no speech
// was recognised, which is not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// HTTPTranscriber posts WAV audio to a speech-to-text service which
// answers {"text": "..."}, or 204 when it heard no speech.
type HTTPTranscriber struct {
	client *http.Client
	url    string
}

// NewHTTPTranscriber creates a transcriber client. client may be nil.
func NewHTTPTranscriber(client *http.Client, url string) *HTTPTranscriber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTranscriber{client: client, url: url}
}

// Transcribe implements Transcriber.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", adapters.ErrServiceFailure, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return "", nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: transcriber status %d: %s", adapters.ErrServiceFailure, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding transcript: %v", adapters.ErrServiceFailure, err)
	}
	return out.Text, nil
}
