// Database models for user consent
package db

import "time"

// ConsentRecord holds the per-user capability authorization flags.
// Mutable by the user at any time; read by the consent gate on every
// request and never mutated by it.
type ConsentRecord struct {
	UserID string `json:"user_id" gorm:"primaryKey;size:64"`

	Memory   bool `json:"memory"`
	Voice    bool `json:"voice"`
	Document bool `json:"document"`
	Image    bool `json:"image"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ConsentRecord) TableName() string {
	return "consent_records"
}
