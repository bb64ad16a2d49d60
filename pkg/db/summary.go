// Database models for cross-session summaries
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringList stores a []string as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return errors.New("unsupported type for StringList")
	}
}

// SessionSummary is the durable, privacy-filtered record produced when
// a session closes with memory consent active. It belongs to the user,
// not the session, and never contains raw message text or identifiers.
type SessionSummary struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	UserID    string `json:"user_id" gorm:"index;size:64;not null"`
	SessionID string `json:"session_id" gorm:"index;size:36"`

	SummaryText      string     `json:"summary_text" gorm:"type:text"`
	PrimaryIntent    string     `json:"primary_intent" gorm:"size:40"`
	PrimaryEmotion   string     `json:"primary_emotion" gorm:"size:20"`
	OverallSentiment string     `json:"overall_sentiment" gorm:"size:20"`
	SeverityPeak     string     `json:"severity_peak" gorm:"size:20"`
	HealthTopics     StringList `json:"health_topics" gorm:"type:text"`

	// Context details captured from the conversation.
	Duration      string `json:"duration,omitempty" gorm:"size:100"`
	Triggers      string `json:"triggers,omitempty" gorm:"size:200"`
	SeverityNotes string `json:"severity_notes,omitempty" gorm:"size:200"`
	ActionsTaken  string `json:"actions_taken,omitempty" gorm:"size:200"`

	EndedAt   time.Time `json:"ended_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (SessionSummary) TableName() string {
	return "session_summaries"
}
