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

// Extractor calls the OCR + PII-redaction collaborator for document
// images. It is an external collaborator, not a fallback chain: a
// failed extraction means the document route cannot proceed and the
// orchestrator answers with the document-unreadable response.
type Extractor struct {
	url    string
	client *http.Client
}

func NewExtractor(url string) *Extractor {
	return &Extractor{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Extract returns the redacted structured text of a document image.
// Output shorter than 30 characters is treated as a failed extraction,
// matching the collaborator's own noise threshold.
func (s *Extractor) Extract(ctx context.Context, document []byte) (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("extractor not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(document))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("extractor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extractor status %d", resp.StatusCode)
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("extractor decode: %w", err)
	}

	text := strings.TrimSpace(body.Text)
	if len(text) < 30 {
		return "", fmt.Errorf("extraction output too short (%d chars)", len(text))
	}

	return text, nil
}
