package adapters

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SynthResult is the synthesis chain's output. When every voiced tier
// fails the static fallback returns Failed=true with no audio: the
// response degrades to text-only rather than erroring.
type SynthResult struct {
	Audio  []byte
	Failed bool
}

// SynthValid is the synthesis chain's validity predicate.
func SynthValid(r SynthResult) bool {
	return r.Failed || len(r.Audio) > 0
}

// TextOnly is the synthesis chain's terminal static fallback.
func TextOnly(string) SynthResult {
	return SynthResult{Failed: true}
}

// LocalTTS calls the voice synthesis server.
type LocalTTS struct {
	url    string
	client *http.Client
}

func NewLocalTTS(url string) *LocalTTS {
	return &LocalTTS{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *LocalTTS) Name() string { return "local_tts" }

func (s *LocalTTS) Call(ctx context.Context, text string) (SynthResult, error) {
	if s.url == "" {
		return SynthResult{}, fmt.Errorf("tts not configured")
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return SynthResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return SynthResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SynthResult{}, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SynthResult{}, fmt.Errorf("tts status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return SynthResult{}, fmt.Errorf("tts read audio: %w", err)
	}

	return SynthResult{Audio: audio}, nil
}

// EmergencyClip serves a minimal canned voice clip without any external
// call. Second tier of the synthesis chain: worse than real synthesis,
// better than silence.
type EmergencyClip struct {
	clip []byte
}

func NewEmergencyClip() *EmergencyClip {
	return &EmergencyClip{clip: silentWAV(500 * time.Millisecond)}
}

func (s *EmergencyClip) Name() string { return "emergency_clip" }

func (s *EmergencyClip) Call(ctx context.Context, text string) (SynthResult, error) {
	return SynthResult{Audio: s.clip}, nil
}

// silentWAV builds a valid mono 16-bit 16kHz PCM WAV of silence.
func silentWAV(d time.Duration) []byte {
	const sampleRate = 16000
	samples := int(d.Seconds() * sampleRate)
	dataLen := samples * 2

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}
