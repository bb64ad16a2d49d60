package event

// Event names.
const (
	TurnRecorded      = "turn.recorded"
	SessionStarted    = "session.started"
	SessionClosed     = "session.closed"
	AttachmentAdded   = "attachment.added"
	AttachmentExpired = "attachment.expired"
	ConsentUpdated    = "consent.updated"
	SummaryCreated    = "summary.created"
	EmergencyDetected = "safety.emergency"
)

// TurnRecordedEvent is emitted after an exchange is persisted.
type TurnRecordedEvent struct {
	SessionID string `json:"session_id"`
	Pipeline  string `json:"pipeline"`
	Severity  string `json:"severity"`
}

func (e TurnRecordedEvent) EventName() string { return TurnRecorded }

// SessionStartedEvent is emitted when a new session is created.
type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (e SessionStartedEvent) EventName() string { return SessionStarted }

// SessionClosedEvent is emitted when a session ends.
type SessionClosedEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (e SessionClosedEvent) EventName() string { return SessionClosed }

// AttachmentAddedEvent is emitted when an upload enters session context.
type AttachmentAddedEvent struct {
	SessionID string `json:"session_id"`
	Class     string `json:"class"`
}

func (e AttachmentAddedEvent) EventName() string { return AttachmentAdded }

// AttachmentExpiredEvent is emitted when an attachment leaves context.
type AttachmentExpiredEvent struct {
	SessionID string `json:"session_id"`
	Class     string `json:"class"`
	Reason    string `json:"reason"` // "age" or "topic"
}

func (e AttachmentExpiredEvent) EventName() string { return AttachmentExpired }

// ConsentUpdatedEvent is emitted when a user changes capability grants.
type ConsentUpdatedEvent struct {
	UserID string `json:"user_id"`
}

func (e ConsentUpdatedEvent) EventName() string { return ConsentUpdated }

// SummaryCreatedEvent is emitted after a cross-session summary is stored.
type SummaryCreatedEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (e SummaryCreatedEvent) EventName() string { return SummaryCreated }

// EmergencyDetectedEvent is emitted when the safety guard trips.
type EmergencyDetectedEvent struct {
	SessionID string `json:"session_id"`
}

func (e EmergencyDetectedEvent) EventName() string { return EmergencyDetected }
