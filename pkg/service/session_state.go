// Live session state: sliding window, condensed history, attachments.
package service

import (
	"strings"
	"time"
)

// WindowTurn is one turn held in the sliding window.
type WindowTurn struct {
	Author   string    `json:"author"` // user, assistant
	Text     string    `json:"text"`
	Modality string    `json:"modality"`
	Index    int       `json:"index"` // position in the full session transcript
	At       time.Time `json:"at"`
}

// AttachmentClass distinguishes the two attachment slots.
type AttachmentClass string

const (
	AttachmentDocument AttachmentClass = "document"
	AttachmentImage    AttachmentClass = "image"
)

// Attachment is the persistent context of the most recent upload of one
// class. At most one live attachment per class; a new upload replaces
// the prior one.
type Attachment struct {
	Class       AttachmentClass `json:"class"`
	Content     string          `json:"content"` // extracted text or serialized analysis
	Risk        string          `json:"risk,omitempty"`
	Confidence  float64         `json:"confidence,omitempty"`
	ImageType   string          `json:"image_type,omitempty"`
	UploadIndex int             `json:"upload_index"`
	UploadedAt  time.Time       `json:"uploaded_at"`
	LastRef     time.Time       `json:"last_ref"`
	Topic       string          `json:"topic,omitempty"`
}

// SessionState is the in-memory conversational state of one session.
// It is a cache over the durable store: it can be discarded at any time
// and rebuilt from the redis snapshot or started fresh. All access goes
// through the MemoryService session lock.
type SessionState struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// Sliding window of the most recent turns, FIFO evicted.
	Window []WindowTurn `json:"window"`

	// Topics folded out of evicted turns; lossy by design.
	CondensedTopics []string `json:"condensed_topics"`

	// Count of turns ever recorded, source of window turn indices.
	TurnCount int `json:"turn_count"`

	Document *Attachment `json:"document,omitempty"`
	Image    *Attachment `json:"image,omitempty"`

	Intent   string `json:"intent"`
	Severity string `json:"severity"`
	Emotion  string `json:"emotion"`
	Topic    string `json:"topic,omitempty"`

	// Running tag history, consumed by the summarizer at close.
	Intents    []string `json:"intents,omitempty"`
	Severities []string `json:"severities,omitempty"`
	Emotions   []string `json:"emotions,omitempty"`

	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// NewSessionState returns a fresh state with neutral tags.
func NewSessionState(sessionID, userID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:    sessionID,
		UserID:       userID,
		Intent:       "casual_chat",
		Severity:     "low",
		Emotion:      "neutral",
		StartedAt:    now,
		LastActivity: now,
	}
}

// Touch updates the activity timestamp.
func (s *SessionState) Touch(now time.Time) {
	s.LastActivity = now
}

// AddTurn appends a turn to the window, evicting the oldest when the
// window exceeds maxWindow. The evicted turn is returned so the caller
// can fold it into the condensed history; nil when nothing was evicted.
func (s *SessionState) AddTurn(author, text, modality string, now time.Time, maxWindow int) *WindowTurn {
	turn := WindowTurn{
		Author:   author,
		Text:     text,
		Modality: modality,
		Index:    s.TurnCount,
		At:       now,
	}
	s.TurnCount++
	s.Window = append(s.Window, turn)
	s.LastActivity = now

	if len(s.Window) <= maxWindow {
		return nil
	}

	evicted := s.Window[0]
	s.Window = append(s.Window[:0], s.Window[1:]...)
	return &evicted
}

// Health topic vocabulary used when condensing evicted turns.
var condenseKeywords = []string{
	"headache", "pain", "stress", "anxiety", "sleep", "tired",
	"fatigue", "nausea", "fever", "cough", "document", "report",
	"x-ray", "image",
}

// Condense folds an evicted turn into the condensed topic digest. Only
// topic keywords are retained, never verbatim text, so the digest stays
// bounded and privacy-light no matter how long the session runs.
func (s *SessionState) Condense(turn *WindowTurn) {
	lowered := strings.ToLower(turn.Text)
	for _, kw := range condenseKeywords {
		if !strings.Contains(lowered, kw) {
			continue
		}
		seen := false
		for _, t := range s.CondensedTopics {
			if t == kw {
				seen = true
				break
			}
		}
		if !seen {
			s.CondensedTopics = append(s.CondensedTopics, kw)
		}
	}
}

// CondensedSummary renders the digest of everything evicted so far.
// Empty when nothing has been evicted.
func (s *SessionState) CondensedSummary() string {
	if s.TurnCount <= len(s.Window) {
		return ""
	}
	if len(s.CondensedTopics) == 0 {
		return "Earlier conversation covered general health topics"
	}
	return "Earlier in conversation, discussed: " + strings.Join(s.CondensedTopics, ", ")
}

// SetAttachment installs or replaces the attachment of the given class.
func (s *SessionState) SetAttachment(a *Attachment) {
	switch a.Class {
	case AttachmentDocument:
		s.Document = a
	case AttachmentImage:
		s.Image = a
	}
}

// AttachmentFor returns the live attachment of a class, nil when unset.
func (s *SessionState) AttachmentFor(class AttachmentClass) *Attachment {
	switch class {
	case AttachmentDocument:
		return s.Document
	case AttachmentImage:
		return s.Image
	}
	return nil
}

// ClearAttachment drops the attachment of the given class.
func (s *SessionState) ClearAttachment(class AttachmentClass) {
	switch class {
	case AttachmentDocument:
		s.Document = nil
	case AttachmentImage:
		s.Image = nil
	}
}

// UpdateTags records the tags of the served response into both the
// current markers and the running history.
func (s *SessionState) UpdateTags(intent, severity, emotion string) {
	if intent != "" {
		s.Intent = intent
		s.Intents = append(s.Intents, intent)
	}
	if severity != "" {
		s.Severity = severity
		s.Severities = append(s.Severities, severity)
	}
	if emotion != "" {
		s.Emotion = emotion
		s.Emotions = append(s.Emotions, emotion)
	}
}

// SeverityPeak returns the highest severity seen this session.
func (s *SessionState) SeverityPeak() string {
	peak := "low"
	rank := map[string]int{"low": 0, "informational": 0, "moderate": 1, "high": 2}
	for _, sev := range s.Severities {
		if rank[sev] > rank[peak] {
			peak = sev
		}
	}
	return peak
}
