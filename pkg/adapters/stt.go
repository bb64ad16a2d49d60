// Package adapters wraps the external AI collaborators (speech-to-text,
// generation models, voice synthesis, image classification, document
// extraction) behind the fallback.Adapter contract. Every call is
// context-bounded; availability problems surface as plain errors for
// the chain executor to absorb.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Marker returned when transcription produced nothing usable. Paired
// with the cached "didn't catch that" response by the orchestrator.
const TranscriptionFailed = "[TRANSCRIPTION_FAILED]"

// TranscriptValid is the transcription chain's validity predicate:
// anything shorter than two characters is unusable.
func TranscriptValid(text string) bool {
	return len(strings.TrimSpace(text)) >= 2
}

// RemoteSTT calls a hosted transcription API. It is the fast primary
// tier of the transcription chain.
type RemoteSTT struct {
	url    string
	apiKey string
	client *http.Client
}

func NewRemoteSTT(url, apiKey string) *RemoteSTT {
	return &RemoteSTT{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *RemoteSTT) Name() string { return "remote_stt" }

func (s *RemoteSTT) Call(ctx context.Context, audio []byte) (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("remote stt not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Token "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote stt status %d", resp.StatusCode)
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("remote stt decode: %w", err)
	}

	return strings.TrimSpace(body.Text), nil
}

// LocalSTT calls a self-hosted transcription server. Slower than the
// remote API, used as the second tier.
type LocalSTT struct {
	url    string
	client *http.Client
}

func NewLocalSTT(url string) *LocalSTT {
	return &LocalSTT{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *LocalSTT) Name() string { return "local_stt" }

func (s *LocalSTT) Call(ctx context.Context, audio []byte) (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("local stt not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("local stt status %d", resp.StatusCode)
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("local stt decode: %w", err)
	}

	return strings.TrimSpace(body.Text), nil
}
