package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/havenai/haven/pkg/adapters"
	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/event"
	"github.com/havenai/haven/pkg/fallback"
	"github.com/havenai/haven/pkg/models"
	"github.com/havenai/haven/pkg/utils"
)

const summaryInstruction = `You summarize a health-companion conversation for continuity of care. Respond ONLY with a JSON object: {"summary_text": "...", "primary_intent": "...", "primary_emotion": "...", "overall_sentiment": "positive|neutral|negative", "severity_peak": "low|moderate|high", "health_topics": ["..."], "context_details": {"duration": "...", "triggers": "...", "severity_notes": "...", "actions_taken": "..."}}. Never include names, emails, phone numbers, or addresses in any field.`

// summaryPayload mirrors the JSON the model is asked to produce.
type summaryPayload struct {
	SummaryText      string   `json:"summary_text"`
	PrimaryIntent    string   `json:"primary_intent"`
	PrimaryEmotion   string   `json:"primary_emotion"`
	OverallSentiment string   `json:"overall_sentiment"`
	SeverityPeak     string   `json:"severity_peak"`
	HealthTopics     []string `json:"health_topics"`
	ContextDetails   struct {
		Duration      string `json:"duration"`
		Triggers      string `json:"triggers"`
		SeverityNotes string `json:"severity_notes"`
		ActionsTaken  string `json:"actions_taken"`
	} `json:"context_details"`
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// SummaryService condenses a finished session into a durable summary
// row. Summaries are only written for users who granted memory
// consent; everyone else's session ends without a trace beyond the
// turn log.
type SummaryService struct {
	db       *gorm.DB
	consent  *ConsentService
	generate *fallback.Chain[adapters.GenInput, string]
	logger   *slog.Logger
}

func NewSummaryService(database *gorm.DB, consent *ConsentService, generate *fallback.Chain[adapters.GenInput, string]) *SummaryService {
	return &SummaryService{
		db:       database,
		consent:  consent,
		generate: generate,
		logger:   utils.GetLogger(),
	}
}

// Summarize builds and stores the cross-session summary for a closed
// session. Safe to call with a nil state (session was never live).
func (s *SummaryService) Summarize(ctx context.Context, sessionID, userID string, state *SessionState) {
	snapshot := s.consent.Snapshot(userID)
	if !snapshot.Allows(models.CapabilityMemory) {
		s.logger.Info("summary skipped, memory consent not granted", "session_id", sessionID)
		return
	}

	transcript, firstAt, lastAt := s.loadTranscript(sessionID)
	if transcript == "" {
		s.logger.Info("summary skipped, empty transcript", "session_id", sessionID)
		return
	}

	payload := s.modelSummary(ctx, transcript)
	if payload == nil {
		payload = heuristicSummary(state)
	}
	if payload == nil {
		return
	}
	if payload.ContextDetails.Duration == "" && !firstAt.IsZero() {
		payload.ContextDetails.Duration = lastAt.Sub(firstAt).Round(time.Minute).String()
	}
	if payload.SeverityPeak == "" && state != nil {
		payload.SeverityPeak = state.SeverityPeak()
	}

	row := db.SessionSummary{
		ID:               uuid.New().String(),
		UserID:           userID,
		SessionID:        sessionID,
		SummaryText:      scrubPII(payload.SummaryText),
		PrimaryIntent:    payload.PrimaryIntent,
		PrimaryEmotion:   payload.PrimaryEmotion,
		OverallSentiment: payload.OverallSentiment,
		SeverityPeak:     payload.SeverityPeak,
		HealthTopics:     db.StringList(payload.HealthTopics),
		Duration:         payload.ContextDetails.Duration,
		Triggers:         scrubPII(payload.ContextDetails.Triggers),
		SeverityNotes:    scrubPII(payload.ContextDetails.SeverityNotes),
		ActionsTaken:     scrubPII(payload.ContextDetails.ActionsTaken),
		EndedAt:          time.Now(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Warn("summary persistence failed", "session_id", sessionID, "error", err)
		return
	}

	s.logger.Info("session summary stored", "session_id", sessionID, "severity_peak", row.SeverityPeak)
	event.Emit(event.SummaryCreatedEvent{SessionID: sessionID, UserID: userID})
}

// Recent returns the newest summaries for a user, most recent first.
func (s *SummaryService) Recent(userID string, limit int) ([]db.SessionSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []db.SessionSummary
	err := s.db.Where("user_id = ?", userID).
		Order("ended_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *SummaryService) loadTranscript(sessionID string) (string, time.Time, time.Time) {
	var turns []db.Turn
	if err := s.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").Find(&turns).Error; err != nil {
		s.logger.Warn("transcript load failed", "session_id", sessionID, "error", err)
		return "", time.Time{}, time.Time{}
	}
	if len(turns) == 0 {
		return "", time.Time{}, time.Time{}
	}

	var b strings.Builder
	for _, t := range turns {
		speaker := "User"
		if t.Author == db.TurnAuthorAssistant {
			speaker = "Haven"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.DerivedText)
	}
	return b.String(), turns[0].CreatedAt, turns[len(turns)-1].CreatedAt
}

func (s *SummaryService) modelSummary(ctx context.Context, transcript string) *summaryPayload {
	out := s.generate.Run(ctx, adapters.GenInput{
		System: summaryInstruction,
		Prompt: "Conversation transcript:\n" + transcript,
	})
	if out.Static {
		return nil
	}

	cleaned := out.Result
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil
	}
	var p summaryPayload
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &p); err != nil {
		s.logger.Warn("summary parse failed", "error", err)
		return nil
	}
	if strings.TrimSpace(p.SummaryText) == "" {
		return nil
	}
	return &p
}

// heuristicSummary builds a minimal summary from session tags when no
// model tier produced one.
func heuristicSummary(state *SessionState) *summaryPayload {
	if state == nil {
		return nil
	}
	p := &summaryPayload{
		PrimaryIntent:    state.Intent,
		PrimaryEmotion:   state.Emotion,
		OverallSentiment: "neutral",
		SeverityPeak:     state.SeverityPeak(),
	}
	if state.Topic != "" {
		p.HealthTopics = []string{state.Topic}
		p.SummaryText = "Discussed " + state.Topic + "."
	} else {
		p.SummaryText = "General wellness conversation."
	}
	return p
}

// scrubPII removes emails and phone numbers as a backstop to the
// prompt-level instruction.
func scrubPII(text string) string {
	text = emailPattern.ReplaceAllString(text, "[redacted]")
	text = phonePattern.ReplaceAllString(text, "[redacted]")
	return text
}
