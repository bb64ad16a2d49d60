// Database models for conversation turns
package db

import "time"

// Turn author
const (
	TurnAuthorUser      = "user"
	TurnAuthorAssistant = "assistant"
)

// Turn is one request/response half of an exchange. Turns are
// append-only: rows are never updated after creation.
type Turn struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	SessionID string `json:"session_id" gorm:"index;size:36;not null"`

	Author   string `json:"author" gorm:"size:20;not null"`  // user, assistant
	Modality string `json:"modality" gorm:"size:20"`         // text, audio, image_document, image_clinical
	RawRef   string `json:"raw_ref,omitempty" gorm:"size:128"` // reference to raw payload (blob key), never inline bytes

	// DerivedText is what the pipelines operate on: transcription for
	// audio, extracted text for documents, the message itself for text.
	DerivedText string `json:"derived_text" gorm:"type:text"`

	Intent   string `json:"intent,omitempty" gorm:"size:40"`
	Severity string `json:"severity,omitempty" gorm:"size:20"`
	Emotion  string `json:"emotion,omitempty" gorm:"size:20"`

	// Pipeline records which route actually served the exchange and
	// Tier which fallback tier produced the result.
	Pipeline string `json:"pipeline,omitempty" gorm:"size:30"`
	Tier     string `json:"tier,omitempty" gorm:"size:30"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (Turn) TableName() string {
	return "turns"
}
