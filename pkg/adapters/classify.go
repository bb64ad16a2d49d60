package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClassifyInput is one clinical image plus its declared subtype.
type ClassifyInput struct {
	ImageType string // xray, skin
	Image     []byte
}

// ClassifyResult is the non-diagnostic risk assessment.
type ClassifyResult struct {
	Risk       string  `json:"risk"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message,omitempty"`
}

// ClassifyValid is the classification chain's validity predicate.
func ClassifyValid(r ClassifyResult) bool {
	return r.Risk != "" || r.Message != ""
}

// ConsultFallback is the classification chain's terminal static
// payload: a generic disclaimer when no model tier is reachable.
func ConsultFallback(ClassifyInput) ClassifyResult {
	return ClassifyResult{
		Message: "I couldn't analyze this image right now. For any concern about a medical image, please consult a professional.",
	}
}

// ImageClassifier calls the risk-model inference server. With refresh
// set the server is asked to re-fetch model weights before inference,
// which is the slower second tier used when the cached model errors.
type ImageClassifier struct {
	url     string
	refresh bool
	client  *http.Client
}

func NewImageClassifier(url string, refresh bool) *ImageClassifier {
	return &ImageClassifier{
		url:     url,
		refresh: refresh,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *ImageClassifier) Name() string {
	if s.refresh {
		return "fresh_model"
	}
	return "cached_model"
}

func (s *ImageClassifier) Call(ctx context.Context, in ClassifyInput) (ClassifyResult, error) {
	if s.url == "" {
		return ClassifyResult{}, fmt.Errorf("classifier not configured")
	}

	url := fmt.Sprintf("%s?image_type=%s", s.url, in.ImageType)
	if s.refresh {
		url += "&refresh=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(in.Image))
	if err != nil {
		return ClassifyResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return ClassifyResult{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ClassifyResult{}, fmt.Errorf("classifier status %d", resp.StatusCode)
	}

	var result ClassifyResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return ClassifyResult{}, fmt.Errorf("classifier decode: %w", err)
	}

	return result, nil
}
