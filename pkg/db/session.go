// Database models for sessions
package db

import "time"

// Session represents one continuous conversation owned by a user.
// The row is the durable record; live conversational state is cached
// in memory and snapshotted to redis while the session is active.
type Session struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	UserID string `json:"user_id" gorm:"index;size:64;not null"`

	// Consent snapshot taken when the session was created. The live
	// consent record may change mid-session; gating always reads the
	// live record, the snapshot is kept for auditability.
	ConsentMemory   bool `json:"consent_memory"`
	ConsentVoice    bool `json:"consent_voice"`
	ConsentDocument bool `json:"consent_document"`
	ConsentImage    bool `json:"consent_image"`

	Topic  string `json:"topic,omitempty" gorm:"size:64"`
	Status string `json:"status" gorm:"size:20;default:'active'"` // active, closed

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity" gorm:"index"`
}

func (Session) TableName() string {
	return "sessions"
}

// Session status
const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)
